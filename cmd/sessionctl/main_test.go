package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ENV", "TEST")

	t.Run("check unauthenticated", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"check", "/admin/users"}, &out))
		require.Equal(t, "redirect (unauthenticated)\nLocation: /login?redirect=%2Fadmin%2Fusers\n", out.String())
	})

	t.Run("check exempt", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"check", "/health"}, &out))
		require.Equal(t, "proceed (unchecked)\n", out.String())
	})

	t.Run("info without a session", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"info"}, &out))
		require.Equal(t, "Not signed in\n", out.String())
	})

	t.Run("refresh without a session", func(t *testing.T) {
		var out bytes.Buffer
		err := run([]string{"refresh"}, &out)
		require.EqualError(t, err, "No refresh token available")
	})

	t.Run("unknown command", func(t *testing.T) {
		var out bytes.Buffer
		require.Error(t, run([]string{"dance"}, &out))
	})

	t.Run("no command", func(t *testing.T) {
		var out bytes.Buffer
		require.EqualError(t, run(nil, &out), "no command given")
	})
}
