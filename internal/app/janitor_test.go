package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_SweepsOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := NewJanitor(clock, 30*time.Second)

	var sweeps atomic.Int32
	j.Add("counter", SweeperFunc(func() int {
		sweeps.Add(1)
		return 1
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return sweeps.Load() == 1 }, time.Second, time.Millisecond)
}

func TestJanitor_EvictsIdleSessionsAndTheirFlows(t *testing.T) {
	env := newTestEnv(&mockBackend{})
	ctx := context.Background()

	env.svc.Session("idle", "")
	_, err := env.svc.Payment(ctx, "idle", "p1")
	require.NoError(t, err)

	j := NewJanitor(env.clock, time.Minute)
	j.Add("sessions", env.registry)
	j.Add("flows", SweeperFunc(env.svc.PruneFlows))
	j.Add("flow_state", SweeperFunc(env.store.Sweep))

	env.clock.Advance(2 * time.Hour)
	j.sweep(ctx)

	assert.Zero(t, env.registry.Len())
	assert.Zero(t, env.svc.FlowCount())
	assert.Zero(t, env.store.Len())
}

func TestService_PruneFlows(t *testing.T) {
	env := newTestEnv(&mockBackend{})
	ctx := context.Background()

	p, err := env.svc.Payment(ctx, "v1", "p1")
	require.NoError(t, err)
	_, err = env.svc.Payment(ctx, "v1", "p2")
	require.NoError(t, err)

	p.Dispose(ctx)

	assert.Equal(t, 1, env.svc.PruneFlows())
	assert.Equal(t, 1, env.svc.FlowCount())
}
