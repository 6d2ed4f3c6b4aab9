package app

import (
	"context"
	"errors"

	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
)

const (
	msgUnreachable     = "We couldn't reach the server. Please try again."
	msgInvalidLogin    = "Invalid email or password"
	msgSessionExpired  = "Your session has expired. Please log in again."
	msgNotFound        = "The page you are looking for does not exist."
	msgInsufficient    = "Insufficient balance"
	msgFixFields       = "Please fix the highlighted fields."
	msgSomethingFailed = "Something went wrong. Please try again."
)

// apiFieldNames maps backend field names to form field names.
var apiFieldNames = map[string]string{
	"password_confirmation": "confirmPassword",
	"card_number":           "cardNumber",
	"card_name":             "cardName",
}

func formFields(fields map[string][]string) map[string][]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for name, msgs := range fields {
		if mapped, ok := apiFieldNames[name]; ok {
			name = mapped
		}
		out[name] = append(out[name], msgs...)
	}
	return out
}

// invalidFields keeps only fields that have messages.
func invalidFields(errs validation.Errors) map[string][]string {
	out := make(map[string][]string)
	for _, field := range errs.Invalid() {
		out[field] = errs[field]
	}
	return out
}

// mapFlowError turns an operation error into what the flow step shows.
func mapFlowError(err error) flow.ErrorInfo {
	var (
		fe *domain.FieldErrors
		ue *flow.UserError
	)
	switch {
	case errors.As(err, &ue):
		return flow.ErrorInfo{Message: ue.Message}
	case errors.As(err, &fe):
		msg := fe.Message
		if msg == "" {
			msg = msgFixFields
		}
		return flow.ErrorInfo{Message: msg, Fields: formFields(fe.Fields)}
	case errors.Is(err, domain.ErrUnauthenticated):
		return flow.ErrorInfo{Message: msgSessionExpired}
	case errors.Is(err, domain.ErrInsufficientFunds):
		return flow.ErrorInfo{Message: "Your wallet balance is too low for this contribution.", Fields: map[string][]string{"amount": {msgInsufficient}}}
	case errors.Is(err, domain.ErrNotFound):
		return flow.ErrorInfo{Message: "This campaign is no longer available."}
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return flow.ErrorInfo{Message: msgUnreachable}
	default:
		return flow.ErrorInfo{Message: msgSomethingFailed}
	}
}

// toAppError classifies a backend error for the HTTP layer.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var (
		structured *apperrors.Error
		fe         *domain.FieldErrors
	)
	switch {
	case errors.As(err, &structured):
		return err
	case errors.As(err, &fe):
		e := apperrors.ValidationError(fe.Message)
		for name, msgs := range formFields(fe.Fields) {
			e = e.WithField(name, msgs)
		}
		return e
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.AuthenticationError(msgInvalidLogin)
	case errors.Is(err, domain.ErrUnauthenticated):
		return apperrors.AuthenticationError(msgSessionExpired)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden):
		return apperrors.NotFoundError(msgNotFound)
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperrors.ConflictError(msgInsufficient)
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ExternalError(msgUnreachable, err)
	default:
		return apperrors.InternalError(msgSomethingFailed, err)
	}
}
