package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/go-auth-session/guard"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/store/filestore"
	"github.com/jrsteele09/go-auth-session/store/memstore"
	"github.com/jrsteele09/go-auth-session/store/redisstore"
	"github.com/jrsteele09/go-auth-session/store/sqlitestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type app struct {
	config  config.Config
	out     io.Writer
	logger  zerolog.Logger
	manager *session.Manager
	closers []io.Closer
}

func newApp(ctx context.Context, c config.Config, out io.Writer) (*app, error) {
	a := &app{
		config: c,
		out:    out,
		logger: log.Logger.With().Str("component", "sessionctl").Logger(),
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	client, err := newIdentityClient(ctx, c)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.manager = session.NewManager(client,
		session.WithStore(store.New(backend, store.WithLogger(log.Logger))),
		session.WithLogger(log.Logger),
		session.WithDefaultLease(c.GetDefaultLease()),
		session.WithLoginPath(c.GetLoginPath()),
		session.WithUserAgent(c.GetUserAgent()),
		session.WithNavigator(session.NavigatorFunc(func(_ context.Context, path string) {
			a.logger.Info().Str("path", path).Msg("Signed out, sign in again to continue")
		})),
	)
	a.manager.LoadPersisted(ctx)
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	c := a.config
	switch c.GetStoreBackend() {
	case config.StoreFile:
		return filestore.New(c.GetStorePath()), nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, c.GetStorePath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.StoreRedis:
		s, err := redisstore.Dial(ctx, c.GetRedisURL(), c.GetStorePrefix())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StoreNone:
		return store.Unavailable(), nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", c.GetStoreBackend())
}

func newIdentityClient(ctx context.Context, c config.Config) (identity.Client, error) {
	if c.GetIdentityKind() == config.IdentityOIDC {
		var opts []identity.OIDCOption
		if role := c.GetOIDCAdminRole(); role != "" {
			opts = append(opts, identity.WithAdminRole(role))
		}
		client, err := identity.NewOIDCClient(ctx, c.GetIdentityURL(), c.GetOIDCClientID(), c.GetOIDCClientSecret(), opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	client, err := identity.NewRESTClient(c.GetIdentityURL())
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) newGuard() *guard.Guard {
	return guard.New(a.manager,
		guard.WithLoginPath(a.config.GetLoginPath()),
		guard.WithExempt(server.RouteHealth),
		guard.WithRules(server.Rules...),
		guard.WithLogger(log.Logger),
	)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Err(err).Msg("Failed to close store")
		}
	}
}
