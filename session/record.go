package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/users"
)

// Persisted record keys. All six are written on login and removed together.
const (
	KeyAccessToken  = "auth_access_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyExpires      = "auth_expires"
	KeyUser         = "auth_user"
	KeyLoginTime    = "auth_login_time"
	KeyLoginInfo    = "auth_login_info"
)

// RecordKeys lists every persisted key.
var RecordKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpires, KeyUser, KeyLoginTime, KeyLoginInfo}

// loginTimeLayout matches an ISO-8601 UTC timestamp with milliseconds.
const loginTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Device describes where a login happened.
type Device struct {
	ID        string `json:"id"`
	UserAgent string `json:"userAgent"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

// LoginInfo is the envelope persisted under KeyLoginInfo.
type LoginInfo struct {
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	LoginTime  string `json:"loginTime"`
	DeviceInfo Device `json:"deviceInfo"`
}

func newLoginInfo(u *users.User, userAgent string, now time.Time) LoginInfo {
	return LoginInfo{
		Email:     u.Email,
		Role:      u.RoleName(),
		LoginTime: now.UTC().Format(loginTimeLayout),
		DeviceInfo: Device{
			ID:        uuid.NewString(),
			UserAgent: userAgent,
			Timestamp: now.UnixMilli(),
		},
	}
}

func saveTokens(ctx context.Context, st *store.Store, t *Tokens) {
	st.Save(ctx, KeyAccessToken, t.AccessToken)
	st.Save(ctx, KeyRefreshToken, t.RefreshToken)
	st.Save(ctx, KeyExpires, t.Expires)
}

func saveRecord(ctx context.Context, st *store.Store, u *users.User, t *Tokens, info LoginInfo) {
	saveTokens(ctx, st, t)
	st.Save(ctx, KeyUser, u)
	st.Save(ctx, KeyLoginTime, info.LoginTime)
	st.Save(ctx, KeyLoginInfo, info)
}

func removeRecord(ctx context.Context, st *store.Store) {
	for _, key := range RecordKeys {
		st.Remove(ctx, key)
	}
}

// loadRecord rehydrates a session. The access token, expiry and user must all
// be present; a missing refresh token reads as "".
func loadRecord(ctx context.Context, st *store.Store) (*users.User, *Tokens, bool) {
	var (
		t Tokens
		u users.User
	)
	if !st.Get(ctx, KeyAccessToken, &t.AccessToken) || t.AccessToken == "" {
		return nil, nil, false
	}
	if !st.Get(ctx, KeyExpires, &t.Expires) || t.Expires == 0 {
		return nil, nil, false
	}
	if !st.Get(ctx, KeyUser, &u) {
		return nil, nil, false
	}
	_ = st.Get(ctx, KeyRefreshToken, &t.RefreshToken)
	return &u, &t, true
}
