package flow

import (
	"maps"
	"time"
)

// ErrorInfo is the error shown on the current step.
type ErrorInfo struct {
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Fatal   bool                `json:"fatal,omitempty"`
}

// State is a snapshot of one flow instance.
type State[S Step] struct {
	Current   S                 `json:"current"`
	Busy      bool              `json:"busy"`
	Err       *ErrorInfo        `json:"error,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Resume    S                 `json:"resume,omitempty"` // step to fall back to if a busy period is abandoned
	BusySince time.Time         `json:"busy_since,omitzero"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Value returns a context value, or "".
func (s State[S]) Value(key string) string {
	return s.Context[key]
}

// FieldError returns the first message for field, or "".
func (s State[S]) FieldError(field string) string {
	if s.Err == nil {
		return ""
	}
	if msgs := s.Err.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (s State[S]) clone() State[S] {
	out := s
	out.Context = maps.Clone(s.Context)
	if s.Err != nil {
		e := *s.Err
		e.Fields = maps.Clone(s.Err.Fields)
		out.Err = &e
	}
	return out
}

// Transition describes a resolved step change.
type Transition[S Step] struct {
	Flow   string
	From   S
	To     S
	Event  Event
	Result Result
	State  State[S]
}
