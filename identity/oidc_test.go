package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "session-cli"
	testClientSecret = "secret-1"
)

type oidcFixture struct {
	server      *httptest.Server
	revocations atomic.Int32
	revoked     atomic.Value
}

func setupOIDCProvider(t *testing.T, withRevocation bool) *oidcFixture {
	t.Helper()

	f := &oidcFixture{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		issuer := f.server.URL
		doc := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/authorize",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
			"userinfo_endpoint":      issuer + "/userinfo",
		}
		if withRevocation {
			doc["revocation_endpoint"] = issuer + "/revoke"
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "password":
			if r.PostForm.Get("username") != testEmail || r.PostForm.Get("password") != testPassword {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error":             "invalid_grant",
					"error_description": "Invalid user credentials",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  testAccessToken,
				"token_type":    "Bearer",
				"refresh_token": testRefreshToken,
				"expires_in":    900,
			})
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != testRefreshToken {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			// Providers may keep the refresh token unchanged and omit it
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "access-2",
				"token_type":   "Bearer",
				"expires_in":   300,
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		}
	})

	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":         "user-1",
			"email":       testEmail,
			"given_name":  "Jane",
			"family_name": "Doe",
			"roles":       []string{"operator", "platform-admin"},
		})
	})

	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.revocations.Add(1)
		f.revoked.Store(r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func TestOIDCClient_Login(t *testing.T) {
	f := setupOIDCProvider(t, true)
	ctx := context.Background()

	client, err := identity.NewOIDCClient(ctx, f.server.URL, testClientID, testClientSecret)
	require.NoError(t, err)

	t.Run("password grant", func(t *testing.T) {
		before := time.Now().UnixMilli()
		tr, err := client.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.Equal(t, testAccessToken, *tr.AccessToken)
		require.Equal(t, testRefreshToken, *tr.RefreshToken)
		// Expiry comes back as an absolute instant
		require.GreaterOrEqual(t, *tr.Expires, before+890000)
	})

	t.Run("invalid grant", func(t *testing.T) {
		_, err := client.Login(ctx, testEmail, "wrong")
		require.Error(t, err)
		require.Equal(t, http.StatusBadRequest, identity.StatusCode(err))
		require.Equal(t, "invalid_grant", identity.ErrorCode(err))
	})
}

func TestOIDCClient_Refresh(t *testing.T) {
	f := setupOIDCProvider(t, true)
	ctx := context.Background()

	client, err := identity.NewOIDCClient(ctx, f.server.URL, testClientID, testClientSecret)
	require.NoError(t, err)

	tr, err := client.Refresh(ctx, testRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "access-2", *tr.AccessToken)
	require.Equal(t, testRefreshToken, *tr.RefreshToken)

	_, err = client.Refresh(ctx, "stale")
	require.Equal(t, "invalid_grant", identity.ErrorCode(err))
}

func TestOIDCClient_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation endpoint", func(t *testing.T) {
		f := setupOIDCProvider(t, true)
		client, err := identity.NewOIDCClient(ctx, f.server.URL, testClientID, testClientSecret)
		require.NoError(t, err)

		require.NoError(t, client.Logout(ctx, testRefreshToken))
		require.Equal(t, int32(1), f.revocations.Load())
		require.Equal(t, testRefreshToken, f.revoked.Load())
	})

	t.Run("no revocation endpoint", func(t *testing.T) {
		f := setupOIDCProvider(t, false)
		client, err := identity.NewOIDCClient(ctx, f.server.URL, testClientID, testClientSecret)
		require.NoError(t, err)

		require.NoError(t, client.Logout(ctx, testRefreshToken))
		require.Equal(t, int32(0), f.revocations.Load())
	})
}

func TestOIDCClient_Me(t *testing.T) {
	f := setupOIDCProvider(t, true)
	ctx := context.Background()

	client, err := identity.NewOIDCClient(ctx, f.server.URL, testClientID, testClientSecret, identity.WithAdminRole("platform-admin"))
	require.NoError(t, err)

	u, err := client.WithToken(testAccessToken).Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-1", u.ID)
	require.Equal(t, testEmail, u.Email)
	require.Equal(t, "Jane Doe", u.FullName())
	require.Equal(t, "operator", u.RoleName())
	require.True(t, u.Role.HasAdminAccess())

	_, err = client.WithToken("expired").Me(ctx)
	require.Equal(t, http.StatusUnauthorized, identity.StatusCode(err))
}

func TestNewOIDCClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	issuer := server.URL
	server.Close()

	_, err := identity.NewOIDCClient(context.Background(), issuer, testClientID, "")
	require.ErrorIs(t, err, identity.ErrUnreachable)
}

func TestOIDCClient_DiscoveryMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"issuer": "https://elsewhere.example.com"})
	}))
	defer server.Close()

	_, err := identity.NewOIDCClient(context.Background(), server.URL, testClientID, "")
	require.Error(t, err)
}
