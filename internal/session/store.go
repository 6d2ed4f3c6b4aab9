// Package session holds each visitor's authentication state.
//
// The persisted cookie token is only a hint. A Store starts in the loading
// state and becomes definite once CheckAuth has asked the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/domain"
	"golang.org/x/sync/singleflight"
)

const defaultCheckTimeout = 10 * time.Second

// Snapshot is a copy of a Store's state.
type Snapshot struct {
	Authenticated bool
	Loading       bool
	User          *domain.UserSummary
	Token         string
	CheckedAt     time.Time
}

// Marker persists the client-side login hint (a cookie in practice).
type Marker interface {
	Save(token string, remember bool) error
	Clear() error
}

// Observer receives auth check outcomes.
type Observer interface {
	AuthCheck(outcome string, shared bool)
}

type Option func(*Store)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithCheckTimeout bounds a single backend check.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Store) { s.checkTimeout = d }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

type Store struct {
	api          domain.AuthAPI
	clock        clockwork.Clock
	checkTimeout time.Duration
	observer     Observer

	group   singleflight.Group
	waiting atomic.Int32

	mu       sync.Mutex
	state    Snapshot
	checked  bool // CheckAuth has been started at least once
	epoch    uint64
	settled  chan struct{}
	disposed bool
}

// NewStore creates a store in the loading state. token is the persisted hint
// and may be empty.
func NewStore(api domain.AuthAPI, token string, opts ...Option) *Store {
	s := &Store{
		api:          api,
		clock:        clockwork.NewRealClock(),
		checkTimeout: defaultCheckTimeout,
		state:        Snapshot{Loading: true, Token: token},
		settled:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Waiting is the number of callers currently inside CheckAuth.
func (s *Store) Waiting() int {
	return int(s.waiting.Load())
}

// CheckAuth asks the backend whether the persisted token is still valid.
// Concurrent calls share one backend request. Errors resolve to
// unauthenticated. If ctx ends first the current (loading) snapshot is
// returned and the check keeps running.
func (s *Store) CheckAuth(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.disposed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.checked = true
	if !s.state.Loading {
		s.state.Loading = true
		s.settled = make(chan struct{})
	}
	token, epoch := s.state.Token, s.epoch
	s.waiting.Add(1)
	s.mu.Unlock()
	defer s.waiting.Add(-1)

	// Keyed by epoch so a reconcile, login or logout never joins a check
	// that was started for the previous token.
	ch := s.group.DoChan("check:"+strconv.FormatUint(epoch, 10), func() (any, error) {
		return s.check(ctx, token, epoch), nil
	})

	select {
	case res := <-ch:
		outcome, _ := res.Val.(string)
		if s.observer != nil {
			s.observer.AuthCheck(outcome, res.Shared)
		}
		return s.Snapshot()
	case <-ctx.Done():
		return s.Snapshot()
	}
}

// EnsureChecked starts CheckAuth in the background the first time it is
// called for this store and is a no-op afterwards.
func (s *Store) EnsureChecked(ctx context.Context) {
	s.mu.Lock()
	start := !s.checked && !s.disposed
	s.checked = true
	s.mu.Unlock()

	if start {
		go s.CheckAuth(context.WithoutCancel(ctx))
	}
}

// Await blocks until the store leaves the loading state or ctx ends.
func (s *Store) Await(ctx context.Context) Snapshot {
	s.mu.Lock()
	settled := s.settled
	loading := s.state.Loading
	s.mu.Unlock()

	if loading {
		select {
		case <-settled:
		case <-ctx.Done():
		}
	}
	return s.Snapshot()
}

// Reconcile resets the store when the persisted token no longer matches,
// e.g. after a login or logout handled by another instance.
func (s *Store) Reconcile(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || token == s.state.Token {
		return
	}
	s.epoch++
	s.checked = false
	if !s.state.Loading {
		s.settled = make(chan struct{})
	}
	s.state = Snapshot{Loading: true, Token: token}
}

// Login submits credentials. On success the store is authenticated and the
// marker persists the token. On failure the store is left unauthenticated.
func (s *Store) Login(ctx context.Context, creds domain.Credentials, marker Marker) error {
	result, err := s.api.Login(ctx, creds)
	if err != nil {
		s.commit(s.currentEpoch(), Snapshot{})
		return fmt.Errorf("login failed: %w", err)
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.checked = true
	s.mu.Unlock()

	user := result.User
	s.commit(epoch, Snapshot{Authenticated: true, User: &user, Token: result.Token})

	if err := marker.Save(result.Token, creds.Remember); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Register creates an account. It never authenticates the store since the
// email must be verified first; the returned token is only good for
// requesting verification emails.
func (s *Store) Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error) {
	result, err := s.api.Register(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return result, nil
}

// Logout clears the user, token and marker. Calling it while logged out is fine.
func (s *Store) Logout(marker Marker) error {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.checked = true
	s.mu.Unlock()

	s.commit(epoch, Snapshot{})
	if err := marker.Clear(); err != nil {
		return fmt.Errorf("failed to clear session marker: %w", err)
	}
	return nil
}

// Dispose drops the store; results of checks still in flight are discarded.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.epoch++
	if s.state.Loading {
		s.state.Loading = false
		close(s.settled)
	}
}

func (s *Store) check(ctx context.Context, token string, epoch uint64) string {
	if token == "" {
		s.commit(epoch, Snapshot{})
		return "no_token"
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.checkTimeout)
	defer cancel()

	user, err := s.api.CurrentUser(ctx, token)
	switch {
	case err == nil:
		s.commit(epoch, Snapshot{Authenticated: true, User: user, Token: token})
		return "authenticated"
	case errors.Is(err, domain.ErrUnauthenticated):
		s.commit(epoch, Snapshot{})
		return "rejected"
	default:
		slog.WarnContext(ctx, "Auth check failed, treating visitor as logged out", "error", err)
		s.commit(epoch, Snapshot{Token: token})
		return "error"
	}
}

// commit installs next unless a newer login, logout or reconcile happened.
func (s *Store) commit(epoch uint64, next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || epoch != s.epoch {
		return
	}
	next.Loading = false
	next.CheckedAt = s.clock.Now()
	wasLoading := s.state.Loading
	s.state = next
	if wasLoading {
		close(s.settled)
	}
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.state
	if s.state.User != nil {
		u := *s.state.User
		snap.User = &u
	}
	return snap
}
