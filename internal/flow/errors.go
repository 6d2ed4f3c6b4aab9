package flow

import (
	"context"
	"errors"
)

// UserError carries a message meant to be shown to the user verbatim.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// Reject records a validation failure on the current step without running
// anything. It is ignored while the flow is busy.
func (f *Flow[S]) Reject(ctx context.Context, info ErrorInfo) error {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return ErrDisposed
	}
	if f.state.Busy {
		f.mu.Unlock()
		return ErrBusy
	}
	f.state.Err = &info
	f.state.UpdatedAt = f.clock.Now()
	snap := f.state.clone()
	f.mu.Unlock()

	f.persist(ctx, snap)
	return nil
}

func userMessage(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message, true
	}
	return "", false
}
