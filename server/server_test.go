package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-session/guard"
	"github.com/jrsteele09/go-auth-session/identity/identityfake"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/store/memstore"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail   = "admin@example.com"
	viewerEmail  = "viewer@example.com"
	testPassword = "password123"
)

type testFixture struct {
	service *identityfake.Service
	manager *session.Manager
	server  *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{service: identityfake.New()}
	require.NoError(t, f.service.AddUser(users.User{
		ID: "u-admin", Email: adminEmail, FirstName: "Ada", LastName: "Admin",
		Role: &users.Role{ID: "r-admin", Name: "Admin", AdminAccess: utils.Ptr(true)},
	}, testPassword))
	require.NoError(t, f.service.AddUser(users.User{
		ID: "u-viewer", Email: viewerEmail,
		Role: &users.Role{ID: "r-viewer", Name: "Viewer"},
	}, testPassword))

	f.manager = session.NewManager(f.service,
		session.WithStore(store.New(memstore.New(), store.WithLogger(zerolog.Nop()))),
		session.WithLogger(zerolog.Nop()),
	)
	g := guard.New(f.manager, guard.WithRules(server.Rules...), guard.WithExempt(server.RouteHealth), guard.WithLogger(zerolog.Nop()))
	f.server = server.New(f.manager, g, server.WithLogger(zerolog.Nop()))
	return f
}

func (f *testFixture) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) login(t *testing.T, email string) {
	t.Helper()
	_, _, err := f.manager.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
}

func TestServer_Health(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_LoginFlow(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodGet, server.RouteAdminUsers, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loginURL := rec.Header().Get("Location")
	require.Equal(t, "/login?redirect=%2Fadmin%2Fusers", loginURL)

	rec = f.do(http.MethodGet, loginURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="redirect" value="/admin/users"`)

	rec = f.do(http.MethodPost, server.RouteAuthLogin, url.Values{
		"email":    {adminEmail},
		"password": {testPassword},
		"redirect": {"/admin/users"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/admin/users", rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, server.RouteAdminUsers, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestServer_LoginErrors(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		setup    func(f *testFixture)
		expected string
	}{
		{"missing fields", url.Values{"email": {adminEmail}}, nil, "Email and password are required"},
		{"wrong password", url.Values{"email": {adminEmail}, "password": {"nope"}}, nil, session.MsgInvalidCredentials},
		{"unreachable", url.Values{"email": {adminEmail}, "password": {testPassword}}, func(f *testFixture) {
			f.service.LoginErr = identityfake.ErrUnavailable
		}, session.MsgNetworkUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			rec := f.do(http.MethodPost, server.RouteAuthLogin, tc.form)
			require.Equal(t, http.StatusSeeOther, rec.Code)

			loc, err := url.Parse(rec.Header().Get("Location"))
			require.NoError(t, err)
			require.Equal(t, "/login", loc.Path)
			require.Equal(t, tc.expected, loc.Query().Get("error"))
			require.Equal(t, "/", loc.Query().Get(guard.RedirectParam))
			require.False(t, f.manager.State().IsAuthenticated())
		})
	}
}

func TestServer_LoginPageWhenSignedIn(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, viewerEmail)

	rec := f.do(http.MethodGet, "/login?redirect=%2Fproducts", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/products", rec.Header().Get("Location"))
}

func TestServer_Roles(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, viewerEmail)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, server.RouteProducts, nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, server.RouteProducts+"/edit/7", nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, server.RouteOperations, nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, server.RouteAdminUsers, nil).Code)

	rec := f.do(http.MethodGet, server.RouteIndex, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Signed in as viewer@example.com (Viewer)\n", rec.Body.String())
}

func TestServer_Me(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, adminEmail)

	rec := f.do(http.MethodGet, server.RouteAPIMe, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User         users.User `json:"user"`
		Capabilities []string   `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, adminEmail, body.User.Email)
	require.Equal(t, []string{"admin", "operator", "viewer", "edit", "delete"}, body.Capabilities)
	require.Equal(t, 2, f.service.Calls("me"))
}

func TestServer_MeRemoteFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, adminEmail)
	f.service.MeErr = identityfake.ErrUnavailable

	rec := f.do(http.MethodGet, server.RouteAPIMe, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "Unable to connect")
}

func TestServer_Session(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, adminEmail)

	rec := f.do(http.MethodGet, server.RouteAPISession, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, adminEmail, body["email"])
	require.Equal(t, "Admin", body["role"])
	require.Equal(t, false, body["expired"])
	require.NotNil(t, body["login_info"])
}

func TestServer_Logout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, adminEmail)

	rec := f.do(http.MethodGet, server.RouteAuthLogout, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.True(t, f.manager.State().IsAuthenticated())
	require.Equal(t, 0, f.service.Calls("logout"))

	rec = f.do(http.MethodPost, server.RouteAuthLogout, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
	require.False(t, f.manager.State().IsAuthenticated())
	require.Equal(t, 1, f.service.Calls("logout"))

	rec = f.do(http.MethodGet, server.RouteIndex, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	f := setupTestFixture(t)
	h := f.server.RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
