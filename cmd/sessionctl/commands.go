package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/authz"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/rs/zerolog/log"
)

// PasswordVar lets scripts pass the password without a flag.
const PasswordVar = "SESSION_PASSWORD"

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (default $SESSION_PASSWORD or stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("login: -email is required")
	}
	if *password == "" {
		*password = os.Getenv(PasswordVar)
	}
	if *password == "" {
		fmt.Fprint(a.out, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("login: reading password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	u, t, err := a.manager.Login(ctx, *email, *password)
	if err != nil {
		return errors.New(session.UserMessage(err))
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.FullName(), roleLabel(u))
	fmt.Fprintf(a.out, "Session expires %s\n", t.ExpiresAt().Format(time.RFC3339))
	if t.RefreshToken == "" {
		fmt.Fprintln(a.out, "No refresh token issued, sign in again when the session expires")
	}
	return nil
}

func (a *app) logout(ctx context.Context) error {
	a.manager.Logout(ctx)
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) refresh(ctx context.Context) error {
	t, err := a.manager.Refresh(ctx)
	if err != nil {
		return errors.New(session.UserMessage(err))
	}
	fmt.Fprintf(a.out, "Session renewed until %s\n", t.ExpiresAt().Format(time.RFC3339))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if !a.manager.State().IsAuthenticated() {
		return errors.New("not signed in")
	}
	if a.manager.State().IsTokenExpired() {
		if _, err := a.manager.RefreshOrClear(ctx); err != nil {
			return errors.New(session.UserMessage(err))
		}
	}
	u, err := a.manager.CurrentUser(ctx)
	if err != nil {
		return errors.New(session.UserMessage(err))
	}

	fmt.Fprintf(a.out, "%s <%s>\n", u.FullName(), u.Email)
	fmt.Fprintf(a.out, "Role: %s\n", roleLabel(u))
	var granted []string
	for _, c := range []authz.Capability{authz.CapabilityAdmin, authz.CapabilityOperator, authz.CapabilityViewer, authz.CapabilityEdit, authz.CapabilityDelete} {
		if authz.Allows(u, c) {
			granted = append(granted, string(c))
		}
	}
	fmt.Fprintf(a.out, "Capabilities: %s\n", strings.Join(granted, ", "))
	return nil
}

func (a *app) info(ctx context.Context) error {
	view := a.manager.State()
	if !view.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	t := view.Tokens()
	fmt.Fprintf(a.out, "User:       %s\n", view.User().Email)
	fmt.Fprintf(a.out, "Expires:    %s (expired: %t)\n", t.ExpiresAt().Format(time.RFC3339), view.IsTokenExpired())
	fmt.Fprintf(a.out, "Refresh:    %t\n", t.RefreshToken != "")

	if at, ok := a.manager.LoginTime(ctx); ok {
		fmt.Fprintf(a.out, "Signed in:  %s\n", at.Format(time.RFC3339))
	}
	if li, ok := a.manager.LoginInfo(ctx); ok {
		fmt.Fprintf(a.out, "Device:     %s (%s)\n", li.DeviceInfo.ID, li.DeviceInfo.UserAgent)
	}
	if claims, err := a.manager.AccessTokenClaims(); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			fmt.Fprintf(a.out, "Subject:    %s\n", sub)
		}
		if iss, err := claims.GetIssuer(); err == nil && iss != "" {
			fmt.Fprintf(a.out, "Issuer:     %s\n", iss)
		}
	}
	m := a.manager.MetricsSnapshot()
	a.logger.Debug().Uint64("login_success", m.LoginSuccess).Uint64("refresh_success", m.RefreshSuccess).Msg("Session metrics")
	return nil
}

func (a *app) check(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("check: expected exactly one path")
	}
	d := a.newGuard().Check(ctx, args[0])
	fmt.Fprintf(a.out, "%s (%s)\n", d.Outcome, d.Status)
	if d.Location != "" {
		fmt.Fprintf(a.out, "Location: %s\n", d.Location)
	}
	if d.Err != nil {
		fmt.Fprintf(a.out, "Reason: %s\n", d.Err)
	}
	return nil
}

func (a *app) watch(ctx context.Context) error {
	cancel := a.manager.State().Subscribe(func(s session.Snapshot) {
		if s.Loading {
			return
		}
		if !s.Authenticated {
			a.logger.Warn().Msg("Session ended")
			return
		}
		a.logger.Info().Str("email", s.User.Email).Time("expires", s.Tokens.ExpiresAt()).Msg("Session updated")
	})
	defer cancel()

	renewer := session.NewRenewer(a.manager, session.WithInterval(a.config.GetRenewInterval()))
	renewer.Start(ctx)
	defer renewer.Stop()

	a.logger.Info().Dur("interval", a.config.GetRenewInterval()).Msg("Watching session")
	<-ctx.Done()
	return nil
}

func (a *app) serve(ctx context.Context) error {
	renewer := session.NewRenewer(a.manager, session.WithInterval(a.config.GetRenewInterval()))
	renewer.Start(ctx)
	defer renewer.Stop()

	handler := server.New(a.manager, a.newGuard(), server.WithEnv(a.config.GetEnv()))
	srv := &http.Server{Addr: a.config.GetListenAddr(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- listenAndServe(srv) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	return shutdown(srv)
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func roleLabel(u *users.User) string {
	if name := u.RoleName(); name != "" {
		return name
	}
	return "no role"
}
