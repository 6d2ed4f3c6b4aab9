// Package memory keeps flow state in process for single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type record struct {
	data      []byte
	expiresAt time.Time
}

// FlowStore implements flow.Store in memory. Expired entries are dropped
// lazily on access and by Sweep.
type FlowStore struct {
	clock clockwork.Clock

	mu      sync.Mutex
	records map[string]record
}

func NewFlowStore(clock clockwork.Clock) *FlowStore {
	return &FlowStore{clock: clock, records: make(map[string]record)}
}

func (s *FlowStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(r) {
		delete(s.records, key)
		return nil, false, nil
	}
	return append([]byte(nil), r.data...), true, nil
}

func (s *FlowStore) Save(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record{data: append([]byte(nil), data...)}
	if ttl > 0 {
		r.expiresAt = s.clock.Now().Add(ttl)
	}
	s.records[key] = r
	return nil
}

func (s *FlowStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *FlowStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, r := range s.records {
		if s.expired(r) {
			delete(s.records, k)
			n++
		}
	}
	return n
}

func (s *FlowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *FlowStore) expired(r record) bool {
	return !r.expiresAt.IsZero() && !s.clock.Now().Before(r.expiresAt)
}
