package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// FieldErrors is the 422 body shape: {"errors": {"field": ["message", ...]}}.
type FieldErrors struct {
	Message string              `json:"message,omitempty"`
	Fields  map[string][]string `json:"errors"`
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "field errors: " + strings.Join(parts, "; ")
}

// First returns the first message for field, or "".
func (e *FieldErrors) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}
