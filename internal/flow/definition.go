// Package flow drives multi-step UI processes (signup, email verification,
// payment, password reset) as explicit finite state machines.
//
// A Definition is a pure transition table; Next is deterministic and has no
// side effects. A Flow is one live instance of a definition: it owns the
// current State, guards against re-entrant triggers while an operation is in
// flight, runs timers, and discards results that arrive after Dispose.
package flow

import (
	"errors"
	"fmt"
	"slices"
)

// Step is a named flow step.
type Step interface {
	~string
}

type Event string

// Result is the outcome of the asynchronous part of a transition.
type Result int

const (
	// Started means the operation has begun; the flow moves to the pending step.
	Started Result = iota
	Succeeded
	// Failed keeps the flow retryable.
	Failed
	// Fatal moves the flow to its terminal error step.
	Fatal
)

func (r Result) String() string {
	switch r {
	case Started:
		return "started"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

var ErrInvalidTransition = errors.New("invalid flow transition")

// Rule is one row of the transition table. Pending is the step shown while
// the operation runs; when empty the flow stays on From. Failure defaults to
// From so the user can retry.
type Rule[S Step] struct {
	From    S
	On      Event
	Pending S
	Success S
	Failure S
}

func (r Rule[S]) pending() S {
	if r.Pending == "" {
		return r.From
	}
	return r.Pending
}

func (r Rule[S]) failure() S {
	if r.Failure == "" {
		return r.From
	}
	return r.Failure
}

type Definition[S Step] struct {
	Name     string
	Initial  S
	Error    S   // terminal error, reachable from any step via Fatal
	Terminal []S // steps with no user-triggered transitions
	Rules    []Rule[S]
}

// Next returns the step reached from current when event resolves with result.
// current may be the rule's From step or its Pending step.
func (d Definition[S]) Next(current S, event Event, result Result) (S, error) {
	rule, ok := d.rule(current, event)
	if !ok {
		return current, fmt.Errorf("%w: %s: %q on %q", ErrInvalidTransition, d.Name, event, current)
	}

	switch result {
	case Started:
		return rule.pending(), nil
	case Succeeded:
		return rule.Success, nil
	case Failed:
		return rule.failure(), nil
	case Fatal:
		return d.Error, nil
	default:
		return current, fmt.Errorf("%w: unknown result %d", ErrInvalidTransition, int(result))
	}
}

// IsTerminal reports whether s is the error step or a declared terminal step.
func (d Definition[S]) IsTerminal(s S) bool {
	return s == d.Error || slices.Contains(d.Terminal, s)
}

// Steps lists every step named by the definition.
func (d Definition[S]) Steps() []S {
	steps := []S{d.Initial}
	add := func(s S) {
		if s != "" && !slices.Contains(steps, s) {
			steps = append(steps, s)
		}
	}
	for _, r := range d.Rules {
		add(r.From)
		add(r.Pending)
		add(r.Success)
		add(r.Failure)
	}
	add(d.Error)
	for _, s := range d.Terminal {
		add(s)
	}
	return steps
}

func (d Definition[S]) rule(current S, event Event) (Rule[S], bool) {
	for _, r := range d.Rules {
		if r.On != event {
			continue
		}
		if r.From == current || (r.Pending != "" && r.Pending == current) {
			return r, true
		}
	}
	return Rule[S]{}, false
}
