package session

import "sync/atomic"

type metrics struct {
	loginSuccess   atomic.Uint64
	loginFailure   atomic.Uint64
	refreshSuccess atomic.Uint64
	refreshFailure atomic.Uint64
	logout         atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the exchange counters.
type MetricsSnapshot struct {
	LoginSuccess   uint64 `json:"login_success"`
	LoginFailure   uint64 `json:"login_failure"`
	RefreshSuccess uint64 `json:"refresh_success"`
	RefreshFailure uint64 `json:"refresh_failure"`
	Logout         uint64 `json:"logout"`
}

// MetricsSnapshot returns the current counter values.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		LoginSuccess:   m.metrics.loginSuccess.Load(),
		LoginFailure:   m.metrics.loginFailure.Load(),
		RefreshSuccess: m.metrics.refreshSuccess.Load(),
		RefreshFailure: m.metrics.refreshFailure.Load(),
		Logout:         m.metrics.logout.Load(),
	}
}
