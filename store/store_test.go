package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/store/filestore"
	"github.com/jrsteele09/go-auth-session/store/memstore"
	"github.com/jrsteele09/go-auth-session/store/redisstore"
	"github.com/jrsteele09/go-auth-session/store/sqlitestore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type record struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

func newRedisBackend(t *testing.T) store.Backend {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return redisstore.New(rdb, "test")
}

func newSQLiteBackend(t *testing.T) store.Backend {
	t.Helper()

	s, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]store.Backend {
	t.Helper()
	return map[string]store.Backend{
		"memory": memstore.New(),
		"file":   filestore.New(filepath.Join(t.TempDir(), "nested", "session.json")),
		"redis":  newRedisBackend(t),
		"sqlite": newSQLiteBackend(t),
	}
}

func TestStore_Backends(t *testing.T) {
	ctx := context.Background()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := store.New(backend, store.WithLogger(zerolog.Nop()))
			require.True(t, s.Available())

			var missing record
			require.False(t, s.Get(ctx, "absent", &missing))

			s.Save(ctx, "auth_user", record{Email: "jane@example.com", Count: 2})
			s.Save(ctx, "auth_expires", int64(1700000000000))
			s.Save(ctx, "auth_refresh_token", "")

			var got record
			require.True(t, s.Get(ctx, "auth_user", &got))
			require.Equal(t, record{Email: "jane@example.com", Count: 2}, got)

			var expires int64
			require.True(t, s.Get(ctx, "auth_expires", &expires))
			require.Equal(t, int64(1700000000000), expires)

			var refresh string
			require.True(t, s.Get(ctx, "auth_refresh_token", &refresh))
			require.Equal(t, "", refresh)

			s.Save(ctx, "auth_user", record{Email: "john@example.com"})
			require.True(t, s.Get(ctx, "auth_user", &got))
			require.Equal(t, "john@example.com", got.Email)

			s.Remove(ctx, "auth_user")
			s.Remove(ctx, "auth_user")
			require.False(t, s.Get(ctx, "auth_user", &got))
			require.True(t, s.Get(ctx, "auth_expires", &expires))
		})
	}
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.Unavailable())

	require.False(t, s.Available())
	require.NotPanics(t, func() {
		s.Save(ctx, "auth_access_token", "token")
		s.Remove(ctx, "auth_access_token")
	})

	var token string
	require.False(t, s.Get(ctx, "auth_access_token", &token))
	require.Empty(t, token)
}

func TestStore_NilBackend(t *testing.T) {
	s := store.New(nil)
	require.False(t, s.Available())

	var nilStore *store.Store
	require.False(t, nilStore.Available())
}

func TestStore_UndecodableValue(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	require.NoError(t, backend.Set(ctx, "auth_expires", []byte(`"not-a-number"`)))

	s := store.New(backend, store.WithLogger(zerolog.Nop()))
	var expires int64
	require.False(t, s.Get(ctx, "auth_expires", &expires))
}

func TestFileStore_RemovesFileWhenEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	backend := filestore.New(path)

	require.NoError(t, backend.Set(ctx, "k", []byte(`"v"`)))
	require.FileExists(t, path)

	require.NoError(t, backend.Delete(ctx, "k"))
	require.NoFileExists(t, path)

	require.Error(t, backend.Set(ctx, "k", []byte("not json")))
	require.False(t, filestore.New("").Available())
}

func TestRedisStore_Prefix(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	backend, err := redisstore.Dial(ctx, "redis://"+mr.Addr(), "agent-1")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Set(ctx, "auth_access_token", []byte(`"abc"`)))
	require.True(t, mr.Exists("agent-1:auth_access_token"))

	_, err = backend.Get(ctx, "auth_refresh_token")
	require.ErrorIs(t, err, store.ErrNotFound)
}
