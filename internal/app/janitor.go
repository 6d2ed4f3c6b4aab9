package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/abrenfund/internal/platform/correlation"
)

const defaultSweepInterval = time.Minute

// Sweeper drops expired entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

type SweeperFunc func() int

func (f SweeperFunc) Sweep() int { return f() }

// Janitor periodically evicts idle sessions, expired flow state and
// disposed flow instances.
type Janitor struct {
	clock    clockwork.Clock
	interval time.Duration
	sweepers map[string]Sweeper
}

func NewJanitor(clock clockwork.Clock, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Janitor{clock: clock, interval: interval, sweepers: make(map[string]Sweeper)}
}

// Add registers a sweeper under name. Not safe to call after Run.
func (j *Janitor) Add(name string, s Sweeper) {
	j.sweepers[name] = s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	tickCtx := correlation.WithID(ctx, correlation.NewID())
	for name, s := range j.sweepers {
		if n := s.Sweep(); n > 0 {
			slog.DebugContext(tickCtx, "Janitor: swept", "target", name, "count", n)
		}
	}
}

// PruneFlows forgets cached flows that were disposed from outside the
// service, e.g. by their own timers or a failed restore.
func (s *Service) PruneFlows() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.flows {
		if e.flow.Disposed() {
			delete(s.flows, key)
			n++
		}
	}
	return n
}
