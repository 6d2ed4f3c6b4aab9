package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	"github.com/pscheid92/abrenfund/internal/session"
)

// Config holds the timings the service applies to flows.
type Config struct {
	FlowTTL              time.Duration
	BusyTimeout          time.Duration
	PaymentRedirectDelay time.Duration
	ResendCooldown       time.Duration
}

// FlowObserver is told about every resolved flow transition.
type FlowObserver interface {
	Transition(flow, event, result string)
}

// LoginObserver is told about every login attempt.
type LoginObserver interface {
	Login(err error)
}

type Option func(*Service)

func WithFlowObserver(o FlowObserver) Option {
	return func(s *Service) { s.flowObserver = o }
}

func WithLoginObserver(o LoginObserver) Option {
	return func(s *Service) { s.loginObserver = o }
}

// disposable is implemented by every flow kind the service caches.
type disposable interface {
	Close()
	Dispose(ctx context.Context)
	Disposed() bool
}

type flowEntry struct {
	visitor string
	flow    disposable
}

// Service is the application layer. It owns the per-visitor flow instances
// and turns backend errors into user-facing ones.
type Service struct {
	backend       domain.Backend
	sessions      *session.Registry
	store         flow.Store
	clock         clockwork.Clock
	cfg           Config
	flowObserver  FlowObserver
	loginObserver LoginObserver

	mu    sync.Mutex
	flows map[string]flowEntry
}

// NewService creates the service. Flows of a visitor are released when the
// registry evicts that visitor's session; their persisted state stays.
func NewService(backend domain.Backend, sessions *session.Registry, store flow.Store, clock clockwork.Clock, cfg Config, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		sessions: sessions,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		flows:    make(map[string]flowEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	sessions.OnEvict(s.ReleaseVisitor)
	return s
}

// Session returns the visitor's session store.
func (s *Service) Session(visitorID, token string) *session.Store {
	return s.sessions.Get(visitorID, token)
}

// Ping checks the backend API.
func (s *Service) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// DisposeVisitor disposes every cached flow of the visitor and deletes
// their persisted state.
func (s *Service) DisposeVisitor(ctx context.Context, visitorID string) {
	victims := s.takeVisitor(visitorID)
	for _, f := range victims {
		f.Dispose(ctx)
	}
	if len(victims) > 0 {
		slog.DebugContext(ctx, "Disposed visitor flows", "visitor", visitorID, "count", len(victims))
	}
}

// ReleaseVisitor closes the visitor's cached flows. Persisted state is kept
// so another instance can continue them.
func (s *Service) ReleaseVisitor(visitorID string) {
	for _, f := range s.takeVisitor(visitorID) {
		f.Close()
	}
}

// Stop closes all cached flows. Persisted state survives the restart.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	all := s.flows
	s.flows = make(map[string]flowEntry)
	s.mu.Unlock()

	for _, e := range all {
		e.flow.Close()
	}
	slog.DebugContext(ctx, "Released cached flows", "count", len(all))
}

func (s *Service) takeVisitor(visitorID string) []disposable {
	s.mu.Lock()
	defer s.mu.Unlock()
	var taken []disposable
	for key, e := range s.flows {
		if e.visitor == visitorID {
			taken = append(taken, e.flow)
			delete(s.flows, key)
		}
	}
	return taken
}

// FlowCount is the number of live flow instances.
func (s *Service) FlowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

func flowKey(visitorID string, parts ...string) string {
	return visitorID + ":" + strings.Join(parts, ":")
}

// cachedFlow returns the live flow stored under key or builds a new one.
// Disposed flows are rebuilt.
func cachedFlow[F disposable](s *Service, visitorID, key string, build func() (F, error)) (F, error) {
	s.mu.Lock()
	if e, ok := s.flows[key]; ok && !e.flow.Disposed() {
		s.mu.Unlock()
		return e.flow.(F), nil
	}
	s.mu.Unlock()

	f, err := build()
	if err != nil {
		var zero F
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.flows[key]; ok && !e.flow.Disposed() {
		// Lost a race with another request; keep the first instance.
		f.Close()
		return e.flow.(F), nil
	}
	s.flows[key] = flowEntry{visitor: visitorID, flow: f}
	return f, nil
}

func (s *Service) dropFlow(ctx context.Context, key string) {
	s.mu.Lock()
	e, ok := s.flows[key]
	delete(s.flows, key)
	s.mu.Unlock()
	if ok {
		e.flow.Dispose(ctx)
	}
}

// flowOptions are the options shared by every flow the service builds.
func flowOptions[S flow.Step](s *Service, key string) []flow.Option[S] {
	return []flow.Option[S]{
		flow.WithClock[S](s.clock),
		flow.WithBusyTimeout[S](s.cfg.BusyTimeout),
		flow.WithErrorMapper[S](mapFlowError),
		flow.WithStore[S](s.store, key, s.cfg.FlowTTL),
		flow.OnTransition(func(tr flow.Transition[S]) {
			if s.flowObserver != nil {
				s.flowObserver.Transition(tr.Flow, string(tr.Event), tr.Result.String())
			}
		}),
	}
}
