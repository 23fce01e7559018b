package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/stretchr/testify/require"
)

func TestUser_Roleless(t *testing.T) {
	t.Run("no role", func(t *testing.T) {
		require.True(t, (&users.User{ID: "u1"}).Roleless())
	})

	t.Run("role without name", func(t *testing.T) {
		require.True(t, (&users.User{ID: "u1", Role: &users.Role{ID: "r1"}}).Roleless())
	})

	t.Run("named role", func(t *testing.T) {
		require.False(t, (&users.User{ID: "u1", Role: &users.Role{ID: "r1", Name: "Viewer"}}).Roleless())
	})

	t.Run("nil user", func(t *testing.T) {
		var u *users.User
		require.False(t, u.Roleless())
		require.Equal(t, "", u.RoleName())
	})
}

func TestUser_Clone(t *testing.T) {
	original := &users.User{
		ID:    "u1",
		Email: "jane@example.com",
		Role:  &users.Role{ID: "r1", Name: "Admin", AdminAccess: utils.Ptr(true)},
	}

	clone := original.Clone()
	clone.Role.Name = "Viewer"
	*clone.Role.AdminAccess = false

	require.Equal(t, "Admin", original.Role.Name)
	require.True(t, original.Role.HasAdminAccess())
	require.False(t, clone.Role.HasAdminAccess())
}

func TestUser_FullName(t *testing.T) {
	require.Equal(t, "Jane Doe", (&users.User{FirstName: "Jane", LastName: "Doe"}).FullName())
	require.Equal(t, "Jane", (&users.User{FirstName: "Jane"}).FullName())
	require.Equal(t, "jane@example.com", (&users.User{Email: "jane@example.com"}).FullName())
}

func TestUser_JSONShape(t *testing.T) {
	payload := `{"id":"u1","email":"jane@example.com","first_name":"Jane","role":{"id":"r1","name":"Operator"}}`

	var u users.User
	require.NoError(t, json.Unmarshal([]byte(payload), &u))
	require.Equal(t, "Operator", u.RoleName())
	require.Nil(t, u.Role.AdminAccess)
	require.False(t, u.Role.HasAdminAccess())
}
