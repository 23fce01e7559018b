package authz_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-session/authz"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/stretchr/testify/require"
)

type staticView struct {
	user *users.User
}

func (v staticView) User() *users.User       { return v.user.Clone() }
func (v staticView) Tokens() *session.Tokens { return nil }
func (v staticView) Loading() bool           { return false }
func (v staticView) IsAuthenticated() bool   { return v.user != nil }
func (v staticView) IsTokenExpired() bool    { return true }
func (v staticView) Snapshot() session.Snapshot {
	return session.Snapshot{User: v.User(), Authenticated: v.IsAuthenticated()}
}
func (v staticView) Subscribe(func(session.Snapshot)) func() { return func() {} }

func withRole(name string, admin *bool) *users.User {
	return &users.User{ID: "user-1", Email: "jane@example.com", Role: &users.Role{ID: "role-1", Name: name, AdminAccess: admin}}
}

type verdict struct {
	admin, operator, viewer, edit, delete bool
}

func verdictOf(u *users.User) verdict {
	return verdict{
		admin:    authz.IsAdmin(u),
		operator: authz.IsOperator(u),
		viewer:   authz.IsViewer(u),
		edit:     authz.CanEdit(u),
		delete:   authz.CanDelete(u),
	}
}

func TestPredicates(t *testing.T) {
	tests := map[string]struct {
		user *users.User
		want verdict
	}{
		"signed out": {
			user: nil,
			want: verdict{},
		},
		"roleless": {
			user: &users.User{ID: "user-1", Email: "jane@example.com"},
			want: verdict{viewer: true, edit: true, delete: true},
		},
		"unnamed role": {
			user: withRole("", nil),
			want: verdict{viewer: true, edit: true, delete: true},
		},
		"viewer": {
			user: withRole("Viewer", nil),
			want: verdict{viewer: true},
		},
		"operator": {
			user: withRole("Operator", nil),
			want: verdict{operator: true, viewer: true, edit: true},
		},
		"admin by name": {
			user: withRole("ADMIN", nil),
			want: verdict{admin: true, operator: true, viewer: true, edit: true, delete: true},
		},
		"admin by flag": {
			user: withRole("Warehouse Lead", utils.Ptr(true)),
			want: verdict{admin: true, operator: true, viewer: true, edit: true, delete: true},
		},
		"flag false": {
			user: withRole("Warehouse Lead", utils.Ptr(false)),
			want: verdict{},
		},
		"unknown role": {
			user: withRole("Auditor", nil),
			want: verdict{},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, verdictOf(tc.user))
		})
	}
}

func TestRolelessThenViewer(t *testing.T) {
	u := &users.User{ID: "user-1", Email: "jane@example.com"}
	require.True(t, authz.IsViewer(u))
	require.True(t, authz.CanEdit(u))
	require.True(t, authz.CanDelete(u))

	u.Role = &users.Role{ID: "role-viewer", Name: "Viewer"}
	require.False(t, authz.CanDelete(u))
	require.False(t, authz.CanEdit(u))
	require.True(t, authz.IsViewer(u))
}

func TestRolelessDefaultGrantPolicy(t *testing.T) {
	authz.RolelessDefaultGrant = false
	t.Cleanup(func() { authz.RolelessDefaultGrant = true })

	u := &users.User{ID: "user-1", Email: "jane@example.com"}
	require.Equal(t, verdict{}, verdictOf(u))
}

func TestHasRole(t *testing.T) {
	u := withRole("Operator", nil)
	require.True(t, authz.HasRole(u, "Operator"))
	require.False(t, authz.HasRole(u, "operator"))
	require.False(t, authz.HasRole(nil, "Operator"))
	require.False(t, authz.HasRole(&users.User{}, ""))
}

func TestEvaluator(t *testing.T) {
	e := authz.NewEvaluator(staticView{user: withRole("Viewer", nil)})

	require.True(t, e.HasRole("Viewer"))
	require.True(t, e.IsViewer())
	require.False(t, e.IsOperator())
	require.False(t, e.IsAdmin())
	require.False(t, e.CanEdit())
	require.False(t, e.CanDelete())

	require.NoError(t, e.Require(authz.CapabilityViewer))

	err := e.Require(authz.CapabilityAdmin)
	require.ErrorIs(t, err, authz.ErrRoleInsufficient)
	require.NotErrorIs(t, err, session.ErrAccessDenied)
	require.Equal(t, "Access denied. Admin role required.", err.Error())

	err = e.Require(authz.CapabilityOperator)
	require.Equal(t, "Access denied. Operator role or higher required.", err.Error())

	require.ErrorIs(t, e.Require(authz.Capability("owner")), authz.ErrRoleInsufficient)
}

func TestParseCapability(t *testing.T) {
	c, err := authz.ParseCapability(" Delete ")
	require.NoError(t, err)
	require.Equal(t, authz.CapabilityDelete, c)

	_, err = authz.ParseCapability("owner")
	require.Error(t, err)
}
