package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrBusy        = errors.New("flow is busy")
	ErrDisposed    = errors.New("flow is disposed")
	ErrBusyTimeout = errors.New("flow operation timed out")
	ErrFatal       = errors.New("unrecoverable flow error")
)

const (
	defaultBusyTimeout = 30 * time.Second
	persistTimeout     = 2 * time.Second

	genericFailureMessage = "Something went wrong. Please try again."
	timeoutMessage        = "The request took too long. Please try again."
	interruptedMessage    = "The previous request was interrupted. Please try again."
)

// Operation is the asynchronous part of a transition. Values it returns on
// success are merged into the flow context.
type Operation func(ctx context.Context) (map[string]string, error)

// AsFatal marks err as unrecoverable: the flow moves to its terminal error step.
func AsFatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// ErrorMapper turns an operation error into what the step displays.
type ErrorMapper func(err error) ErrorInfo

type Option[S Step] func(*Flow[S])

func WithClock[S Step](clock clockwork.Clock) Option[S] {
	return func(f *Flow[S]) { f.clock = clock }
}

// WithBusyTimeout bounds every busy period.
func WithBusyTimeout[S Step](d time.Duration) Option[S] {
	return func(f *Flow[S]) { f.busyTimeout = d }
}

func WithErrorMapper[S Step](m ErrorMapper) Option[S] {
	return func(f *Flow[S]) { f.mapErr = m }
}

// WithStore persists every state change under key.
func WithStore[S Step](store Store, key string, ttl time.Duration) Option[S] {
	return func(f *Flow[S]) {
		f.store = store
		f.key = key
		f.ttl = ttl
	}
}

// OnTransition registers a hook called after each resolved transition,
// outside the flow lock.
func OnTransition[S Step](fn func(Transition[S])) Option[S] {
	return func(f *Flow[S]) { f.hooks = append(f.hooks, fn) }
}

func WithContext[S Step](values map[string]string) Option[S] {
	return func(f *Flow[S]) { f.state.Context = maps.Clone(values) }
}

type Flow[S Step] struct {
	def         Definition[S]
	clock       clockwork.Clock
	busyTimeout time.Duration
	mapErr      ErrorMapper
	hooks       []func(Transition[S])

	store Store
	key   string
	ttl   time.Duration

	mu       sync.Mutex
	state    State[S]
	gen      uint64
	running  bool // an operation of this process is in flight
	disposed bool
	timers   map[uint64]clockwork.Timer
	timerSeq uint64
}

func New[S Step](def Definition[S], opts ...Option[S]) *Flow[S] {
	f := &Flow[S]{
		def:         def,
		clock:       clockwork.NewRealClock(),
		busyTimeout: defaultBusyTimeout,
		mapErr:      defaultErrorMapper,
		timers:      make(map[uint64]clockwork.Timer),
		state:       State[S]{Current: def.Initial},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.state.Context == nil {
		f.state.Context = make(map[string]string)
	}
	f.state.UpdatedAt = f.clock.Now()
	return f
}

// Restore builds a flow and loads its last persisted state, if any. A busy
// period that outlived the busy timeout is resolved as a retryable failure.
func Restore[S Step](ctx context.Context, def Definition[S], opts ...Option[S]) (*Flow[S], error) {
	f := New(def, opts...)
	if f.store == nil {
		return f, nil
	}

	found, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		f.persist(ctx, f.Snapshot())
	}
	return f, nil
}

func (f *Flow[S]) Definition() Definition[S] { return f.def }

// Snapshot returns a copy of the current state.
func (f *Flow[S]) Snapshot() State[S] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recoverStaleLocked()
	return f.state.clone()
}

// Sync reloads state written by another process while that process owns the
// busy period. It is a no-op otherwise.
func (f *Flow[S]) Sync(ctx context.Context) error {
	f.mu.Lock()
	remote := f.state.Busy && !f.running && f.store != nil && !f.disposed
	f.mu.Unlock()
	if !remote {
		return nil
	}
	_, err := f.load(ctx)
	return err
}

// Put stores a step-local context value.
func (f *Flow[S]) Put(ctx context.Context, key, value string) error {
	return f.PutAll(ctx, map[string]string{key: value})
}

// PutAll stores several context values with a single write.
func (f *Flow[S]) PutAll(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return ErrDisposed
	}
	maps.Copy(f.state.Context, values)
	f.state.UpdatedAt = f.clock.Now()
	snap := f.state.clone()
	f.mu.Unlock()

	f.persist(ctx, snap)
	return nil
}

// Trigger fires event. With a nil op the transition resolves immediately as
// a success. Otherwise the flow turns busy, runs op and resolves with its
// outcome before returning. Calls made while busy return ErrBusy and change
// nothing.
func (f *Flow[S]) Trigger(ctx context.Context, event Event, op Operation) (State[S], error) {
	rule, gen, err := f.begin(ctx, event, op)
	if err != nil {
		return f.Snapshot(), err
	}
	if op == nil {
		return f.Snapshot(), nil
	}
	return f.finish(ctx, gen, rule, event, f.run(ctx, op))
}

// Start is Trigger without waiting: it returns once the flow is on the
// pending step and resolves in the background. ctx values are kept but its
// cancellation is not.
func (f *Flow[S]) Start(ctx context.Context, event Event, op Operation) (State[S], error) {
	if op == nil {
		return f.Trigger(ctx, event, nil)
	}
	rule, gen, err := f.begin(ctx, event, op)
	if err != nil {
		return f.Snapshot(), err
	}
	snap := f.Snapshot()

	bg := context.WithoutCancel(ctx)
	go func() {
		_, _ = f.finish(bg, gen, rule, event, f.run(bg, op))
	}()
	return snap, nil
}

// After runs fn once d has elapsed unless the flow is disposed first.
func (f *Flow[S]) After(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return
	}

	f.timerSeq++
	id := f.timerSeq
	f.timers[id] = f.clock.AfterFunc(d, func() {
		f.mu.Lock()
		_, live := f.timers[id]
		delete(f.timers, id)
		disposed := f.disposed
		f.mu.Unlock()
		if live && !disposed {
			fn()
		}
	})
}

// Close stops timers and rejects further calls but leaves the persisted
// state in place for another instance or a later restart. An operation
// already in flight still persists its result. It is safe to call more than
// once.
func (f *Flow[S]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

// Dispose closes the flow, drops pending results and removes the persisted
// state. It is safe to call more than once.
func (f *Flow[S]) Dispose(ctx context.Context) {
	f.mu.Lock()
	f.closeLocked()
	f.gen++
	f.running = false
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.Delete(ctx, f.key); err != nil {
			slog.WarnContext(ctx, "Failed to delete flow state", "flow", f.def.Name, "key", f.key, "error", err)
		}
	}
}

func (f *Flow[S]) closeLocked() {
	f.disposed = true
	for id, t := range f.timers {
		t.Stop()
		delete(f.timers, id)
	}
}

func (f *Flow[S]) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

func (f *Flow[S]) begin(ctx context.Context, event Event, op Operation) (Rule[S], uint64, error) {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return Rule[S]{}, 0, ErrDisposed
	}
	f.recoverStaleLocked()
	if f.state.Busy {
		f.mu.Unlock()
		return Rule[S]{}, 0, ErrBusy
	}

	from := f.state.Current
	rule, ok := f.def.rule(from, event)
	if !ok || rule.From != from {
		f.mu.Unlock()
		return Rule[S]{}, 0, fmt.Errorf("%w: %s: %q on %q", ErrInvalidTransition, f.def.Name, event, from)
	}

	now := f.clock.Now()
	f.state.Err = nil
	f.state.UpdatedAt = now

	if op == nil {
		f.state.Current = rule.Success
		snap := f.state.clone()
		f.mu.Unlock()

		f.persist(ctx, snap)
		f.notify(Transition[S]{Flow: f.def.Name, From: from, To: rule.Success, Event: event, Result: Succeeded, State: snap})
		return rule, 0, nil
	}

	f.gen++
	gen := f.gen
	f.running = true
	f.state.Busy = true
	f.state.BusySince = now
	f.state.Resume = from
	f.state.Current = rule.pending()
	snap := f.state.clone()
	f.mu.Unlock()

	f.persist(ctx, snap)
	f.notify(Transition[S]{Flow: f.def.Name, From: from, To: snap.Current, Event: event, Result: Started, State: snap})
	return rule, gen, nil
}

type outcome struct {
	values map[string]string
	err    error
}

func (f *Flow[S]) run(ctx context.Context, op Operation) outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "Flow operation panicked", "flow", f.def.Name, "panic", r)
				done <- outcome{err: fmt.Errorf("flow operation panicked: %v", r)}
			}
		}()
		values, err := op(ctx)
		done <- outcome{values: values, err: err}
	}()

	timer := f.clock.NewTimer(f.busyTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o
	case <-timer.Chan():
		return outcome{err: ErrBusyTimeout}
	}
}

func (f *Flow[S]) finish(ctx context.Context, gen uint64, rule Rule[S], event Event, o outcome) (State[S], error) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		slog.DebugContext(ctx, "Discarding flow result", "flow", f.def.Name, "event", event)
		return State[S]{}, ErrDisposed
	}
	closed := f.disposed

	result := Succeeded
	switch {
	case o.err == nil:
	case errors.Is(o.err, ErrFatal):
		result = Fatal
	default:
		result = Failed
	}

	from := f.state.Current
	switch result {
	case Succeeded:
		f.state.Current = rule.Success
		f.state.Err = nil
		maps.Copy(f.state.Context, o.values)
	case Failed:
		f.state.Current = rule.failure()
		info := f.describe(o.err)
		f.state.Err = &info
	case Fatal:
		f.state.Current = f.def.Error
		info := f.describe(o.err)
		info.Fatal = true
		f.state.Err = &info
	}
	f.running = false
	f.state.Busy = false
	f.state.BusySince = time.Time{}
	f.state.Resume = ""
	f.state.UpdatedAt = f.clock.Now()
	snap := f.state.clone()
	f.mu.Unlock()

	if o.err != nil {
		slog.InfoContext(ctx, "Flow step failed", "flow", f.def.Name, "event", event, "result", result.String(), "error", o.err)
	}

	f.persist(ctx, snap)
	if closed {
		return snap, ErrDisposed
	}
	f.notify(Transition[S]{Flow: f.def.Name, From: from, To: snap.Current, Event: event, Result: result, State: snap})
	return snap, nil
}

func (f *Flow[S]) describe(err error) ErrorInfo {
	switch {
	case errors.Is(err, ErrBusyTimeout):
		return ErrorInfo{Message: timeoutMessage}
	default:
		return f.mapErr(err)
	}
}

// recoverStaleLocked clears a busy flag left behind by another process.
func (f *Flow[S]) recoverStaleLocked() {
	if !f.state.Busy || f.running {
		return
	}
	if f.clock.Since(f.state.BusySince) < f.busyTimeout {
		return
	}
	if f.state.Resume != "" {
		f.state.Current = f.state.Resume
	}
	f.state.Busy = false
	f.state.BusySince = time.Time{}
	f.state.Resume = ""
	f.state.Err = &ErrorInfo{Message: interruptedMessage}
	f.state.UpdatedAt = f.clock.Now()
}

func (f *Flow[S]) load(ctx context.Context) (bool, error) {
	data, found, err := f.store.Load(ctx, f.key)
	if err != nil {
		return false, fmt.Errorf("failed to load flow %s: %w", f.def.Name, err)
	}
	if !found {
		return false, nil
	}

	var st State[S]
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("failed to decode flow %s: %w", f.def.Name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running || f.disposed {
		return true, nil
	}
	if st.Context == nil {
		st.Context = make(map[string]string)
	}
	f.state = st
	f.recoverStaleLocked()
	return true, nil
}

func (f *Flow[S]) persist(ctx context.Context, st State[S]) {
	if f.store == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode flow state", "flow", f.def.Name, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := f.store.Save(ctx, f.key, data, f.ttl); err != nil {
		slog.WarnContext(ctx, "Failed to persist flow state", "flow", f.def.Name, "key", f.key, "error", err)
	}
}

func (f *Flow[S]) notify(tr Transition[S]) {
	for _, h := range f.hooks {
		h(tr)
	}
}

func defaultErrorMapper(err error) ErrorInfo {
	if msg, ok := userMessage(err); ok {
		return ErrorInfo{Message: msg}
	}
	return ErrorInfo{Message: genericFailureMessage}
}
