package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/users"
)

// Tokens is the token pair of an active session. Expires is always an
// absolute epoch-millisecond instant.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
}

// ExpiresAt returns Expires as a time.
func (t Tokens) ExpiresAt() time.Time {
	return time.UnixMilli(t.Expires)
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	User          *users.User
	Tokens        *Tokens
	Loading       bool
	Authenticated bool
}

// View is the read-only projection of the session handed to consumers.
type View interface {
	User() *users.User
	Tokens() *Tokens
	Loading() bool
	IsAuthenticated() bool
	IsTokenExpired() bool
	Snapshot() Snapshot
	// Subscribe calls fn with a fresh snapshot after every change until
	// cancel is called.
	Subscribe(fn func(Snapshot)) (cancel func())
}

var _ View = (*State)(nil)

// State owns the in-memory session and mirrors it into the store. Only the
// Manager mutates it. Every successful write replaces user and tokens
// wholesale and every failure clears both, so readers never observe a half
// session.
type State struct {
	mu         sync.RWMutex
	user       *users.User
	tokens     *Tokens
	generation uint64

	loading atomic.Int32
	store   *store.Store
	nowTime func() time.Time

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

func newState(st *store.Store, nowTime func() time.Time) *State {
	return &State{
		store:   st,
		nowTime: nowTime,
		subs:    make(map[int]func(Snapshot)),
	}
}

func (s *State) User() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

func (s *State) Tokens() *Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTokens(s.tokens)
}

func (s *State) Loading() bool {
	return s.loading.Load() > 0
}

func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.tokens != nil
}

// IsTokenExpired reports true when there are no tokens or the lease has run
// out. It performs no I/O.
func (s *State) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return true
	}
	return s.nowTime().UnixMilli() >= s.tokens.Expires
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		User:          s.user.Clone(),
		Tokens:        copyTokens(s.tokens),
		Loading:       s.Loading(),
		Authenticated: s.user != nil && s.tokens != nil,
	}
}

func (s *State) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify() {
	snap := s.Snapshot()

	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// read returns copies of the current session and its generation. The
// generation changes on every commit and clear.
func (s *State) read() (*users.User, *Tokens, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone(), copyTokens(s.tokens), s.generation
}

// beginLoading raises the loading flag until the returned func is called.
func (s *State) beginLoading() (done func()) {
	s.loading.Add(1)
	s.notify()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.loading.Add(-1)
			s.notify()
		})
	}
}

// Store writes below ignore cancellation of ctx: memory and the persisted
// record must never disagree once the lock is released.

// commit installs a new session and writes the full persisted record.
func (s *State) commit(ctx context.Context, u *users.User, t *Tokens, info LoginInfo) {
	s.mu.Lock()
	s.user = u.Clone()
	s.tokens = copyTokens(t)
	s.generation++
	saveRecord(context.WithoutCancel(ctx), s.store, u, t, info)
	s.mu.Unlock()

	s.notify()
}

// commitTokens replaces the token pair if the session is still the one seen at
// generation gen. Only the token keys are persisted.
func (s *State) commitTokens(ctx context.Context, gen uint64, t *Tokens) bool {
	s.mu.Lock()
	if s.generation != gen || s.user == nil {
		s.mu.Unlock()
		return false
	}
	s.tokens = copyTokens(t)
	s.generation++
	saveTokens(context.WithoutCancel(ctx), s.store, t)
	s.mu.Unlock()

	s.notify()
	return true
}

// commitUser replaces the user if the session is still the one seen at
// generation gen. Only the user key is persisted.
func (s *State) commitUser(ctx context.Context, gen uint64, u *users.User) bool {
	s.mu.Lock()
	if s.generation != gen || s.tokens == nil {
		s.mu.Unlock()
		return false
	}
	s.user = u.Clone()
	s.generation++
	s.store.Save(context.WithoutCancel(ctx), KeyUser, u)
	s.mu.Unlock()

	s.notify()
	return true
}

// clear drops the session and removes the persisted record.
func (s *State) clear(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.tokens = nil
	s.generation++
	removeRecord(context.WithoutCancel(ctx), s.store)
	s.mu.Unlock()

	s.notify()
}

// clearIf clears only when nothing replaced the session since generation gen.
// A newer session is left alone; a stale failure has nothing to say about it.
func (s *State) clearIf(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.user = nil
	s.tokens = nil
	s.generation++
	removeRecord(context.WithoutCancel(ctx), s.store)
	s.mu.Unlock()

	s.notify()
	return true
}

// load rehydrates the session from the store.
func (s *State) load(ctx context.Context) bool {
	s.mu.Lock()
	u, t, ok := loadRecord(ctx, s.store)
	if ok {
		s.user = u
		s.tokens = t
		s.generation++
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

func copyTokens(t *Tokens) *Tokens {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
