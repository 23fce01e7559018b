package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRenewInterval is how often the Renewer checks the lease.
const DefaultRenewInterval = 5 * time.Minute

// Renewer refreshes an expired session on a fixed cadence so idle sessions
// renew without waiting for the next navigation.
type Renewer struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// RenewerOption configures a Renewer.
type RenewerOption func(*Renewer)

// WithInterval overrides DefaultRenewInterval.
func WithInterval(d time.Duration) RenewerOption {
	return func(r *Renewer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRenewer creates a stopped Renewer for m.
func NewRenewer(m *Manager, options ...RenewerOption) *Renewer {
	r := &Renewer{
		manager:  m,
		interval: DefaultRenewInterval,
		logger:   m.logger.With().Str("component", "renewer").Logger(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Start runs one check immediately, then one per interval until ctx is done
// or Stop is called. Calling Start more than once has no effect.
func (r *Renewer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	r.mu.Unlock()

	r.Check(ctx)
	go r.run(ctx)
}

func (r *Renewer) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// Check refreshes the session when it is authenticated and expired. A failed
// refresh clears the session it was attempted for.
func (r *Renewer) Check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	view := r.manager.State()
	if !view.IsAuthenticated() || !view.IsTokenExpired() {
		return
	}

	r.logger.Info().Msg("Refreshing expired session")
	if _, err := r.manager.RefreshOrClear(ctx); err != nil {
		r.logger.Err(err).Msg("Automatic token refresh failed")
		return
	}
	r.logger.Info().Msg("Session refreshed")
}

// Stop cancels the loop and waits for an in-flight check to finish. It is
// safe to call more than once and before Start.
func (r *Renewer) Stop() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		cancel := r.cancel
		r.started = true
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		r.wg.Wait()
	})
}
