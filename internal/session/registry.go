package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/domain"
)

type entry struct {
	store    *Store
	lastSeen time.Time
}

// Registry keeps one Store per visitor and evicts stores that have been idle
// longer than the TTL.
type Registry struct {
	api   domain.AuthAPI
	ttl   time.Duration
	clock clockwork.Clock
	opts  []Option

	mu      sync.Mutex
	stores  map[string]*entry
	onEvict []func(visitorID string)
}

func NewRegistry(api domain.AuthAPI, ttl time.Duration, clock clockwork.Clock, opts ...Option) *Registry {
	return &Registry{
		api:    api,
		ttl:    ttl,
		clock:  clock,
		opts:   append([]Option{WithClock(clock)}, opts...),
		stores: make(map[string]*entry),
	}
}

// OnEvict registers fn to run after a visitor's store has been dropped.
func (r *Registry) OnEvict(fn func(visitorID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

// Get returns the visitor's store, creating it on first use. tokenHint is the
// token from the visitor's cookie; a mismatch resets the store to loading.
func (r *Registry) Get(visitorID, tokenHint string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if e, ok := r.stores[visitorID]; ok {
		e.lastSeen = now
		e.store.Reconcile(tokenHint)
		return e.store
	}

	s := NewStore(r.api, tokenHint, r.opts...)
	r.stores[visitorID] = &entry{store: s, lastSeen: now}
	return s
}

func (r *Registry) Peek(visitorID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[visitorID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Remove disposes and drops the visitor's store.
func (r *Registry) Remove(visitorID string) {
	r.mu.Lock()
	e, ok := r.stores[visitorID]
	delete(r.stores, visitorID)
	hooks := r.onEvict
	r.mu.Unlock()

	if !ok {
		return
	}
	e.store.Dispose()
	for _, fn := range hooks {
		fn(visitorID)
	}
}

// Sweep evicts idle stores and returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.ttl)

	r.mu.Lock()
	var idle []string
	for id, e := range r.stores {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Remove(id)
	}
	return len(idle)
}

// Stop disposes every store.
func (r *Registry) Stop() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
