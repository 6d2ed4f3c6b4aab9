package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	"github.com/pscheid92/abrenfund/internal/session"
	"github.com/pscheid92/abrenfund/internal/validation"
)

const (
	signupFlow       = "signup"
	verifyFlow       = "verify"
	passwordFlow     = "password-reset"
	keyResetMessage  = "message"
	keyRegisterToken = "token"
)

// Login validates the form and authenticates the visitor's session. Form
// errors are returned as validation.Errors without calling the backend.
func (s *Service) Login(ctx context.Context, sess *session.Store, values validation.Values, marker session.Marker) (validation.Errors, error) {
	if errs := validation.Validate(values, validation.LoginSet()); !errs.Valid() {
		return errs, nil
	}

	creds := domain.Credentials{
		Email:    strings.TrimSpace(values["email"]),
		Password: values["password"],
		Remember: checkbox(values["remember"]),
	}
	err := sess.Login(ctx, creds, marker)
	if s.loginObserver != nil {
		s.loginObserver.Login(err)
	}
	if err != nil {
		return nil, toAppError(err)
	}
	return nil, nil
}

// Logout ends the visitor's session and drops their flows.
func (s *Service) Logout(ctx context.Context, visitorID string, sess *session.Store, marker session.Marker) error {
	s.DisposeVisitor(ctx, visitorID)
	return sess.Logout(marker)
}

func (s *Service) signup(ctx context.Context, visitorID string) (*flow.Flow[flow.SignupStep], error) {
	key := flowKey(visitorID, signupFlow)
	return cachedFlow(s, visitorID, key, func() (*flow.Flow[flow.SignupStep], error) {
		return flow.Restore(ctx, flow.SignupDefinition(), flowOptions[flow.SignupStep](s, key)...)
	})
}

// SignupState returns the signup page state.
func (s *Service) SignupState(ctx context.Context, visitorID string) (flow.State[flow.SignupStep], error) {
	f, err := s.signup(ctx, visitorID)
	if err != nil {
		return flow.State[flow.SignupStep]{}, toAppError(err)
	}
	return f.Snapshot(), nil
}

// Signup submits the registration form. Invalid input is recorded on the
// entry step without a backend call. On success the signup flow is finished
// and the registration result is returned so the caller can remember the
// pending email and token.
func (s *Service) Signup(ctx context.Context, visitorID string, sess *session.Store, values validation.Values) (flow.State[flow.SignupStep], *domain.AuthResult, error) {
	f, err := s.signup(ctx, visitorID)
	if err != nil {
		return flow.State[flow.SignupStep]{}, nil, toAppError(err)
	}

	if errs := validation.Validate(values, validation.SignupSet()); !errs.Valid() {
		if err := f.Reject(ctx, flow.ErrorInfo{Fields: invalidFields(errs)}); err != nil {
			return f.Snapshot(), nil, err
		}
		return f.Snapshot(), nil, nil
	}

	profile := domain.Profile{
		Name:                 strings.TrimSpace(values["name"]),
		Email:                strings.TrimSpace(values["email"]),
		Password:             values["password"],
		PasswordConfirmation: values["confirmPassword"],
		Role:                 domain.RoleStudent,
	}
	if values["role"] == string(domain.RoleCreator) {
		profile.Role = domain.RoleCreator
	}

	var result *domain.AuthResult
	st, err := f.Trigger(ctx, flow.EventSubmit, func(ctx context.Context) (map[string]string, error) {
		r, err := sess.Register(ctx, profile)
		if err != nil {
			return nil, err
		}
		result = r
		return map[string]string{flow.KeyEmail: r.User.Email}, nil
	})
	if err != nil {
		return st, nil, err
	}

	if st.Current == flow.SignupDone {
		s.dropFlow(ctx, flowKey(visitorID, signupFlow))
		s.dropFlow(ctx, flowKey(visitorID, verifyFlow))
		return st, result, nil
	}
	return st, nil, nil
}

// Verification returns the visitor's "check your inbox" flow for email,
// replacing a flow that belongs to a different address.
func (s *Service) Verification(ctx context.Context, visitorID, email string) (*flow.EmailVerification, error) {
	key := flowKey(visitorID, verifyFlow)
	build := func() (*flow.EmailVerification, error) {
		return flow.NewEmailVerification(ctx, email, s.cfg.ResendCooldown, flowOptions[flow.VerifyStep](s, key)...)
	}

	v, err := cachedFlow(s, visitorID, key, build)
	if err == nil && v.Snapshot().Value(flow.KeyEmail) != email {
		s.dropFlow(ctx, key)
		v, err = cachedFlow(s, visitorID, key, build)
	}
	if err != nil {
		return nil, toAppError(err)
	}
	return v, nil
}

// ResendVerification asks the backend for a new verification link. A missing
// or rejected token ends the flow in its error step.
func (s *Service) ResendVerification(ctx context.Context, visitorID, email, token string) (flow.State[flow.VerifyStep], error) {
	v, err := s.Verification(ctx, visitorID, email)
	if err != nil {
		return flow.State[flow.VerifyStep]{}, err
	}

	return v.Resend(ctx, func(ctx context.Context) (string, error) {
		if token == "" {
			return "", flow.AsFatal(domain.ErrUnauthenticated)
		}
		msg, err := s.backend.ResendVerification(ctx, token)
		if errors.Is(err, domain.ErrUnauthenticated) {
			return "", flow.AsFatal(err)
		}
		return msg, err
	})
}

// CompleteVerification maps the verification callback and, on a terminal
// success, drops the visitor's verification flow.
func (s *Service) CompleteVerification(ctx context.Context, visitorID, status string) flow.CallbackOutcome {
	outcome := flow.VerificationOutcome(status)
	if outcome != flow.OutcomeError {
		s.dropFlow(ctx, flowKey(visitorID, verifyFlow))
	}
	return outcome
}

func (s *Service) passwordReset(ctx context.Context, visitorID string) (*flow.Flow[flow.ResetStep], error) {
	key := flowKey(visitorID, passwordFlow)
	return cachedFlow(s, visitorID, key, func() (*flow.Flow[flow.ResetStep], error) {
		return flow.Restore(ctx, flow.PasswordResetDefinition(), flowOptions[flow.ResetStep](s, key)...)
	})
}

func (s *Service) PasswordResetState(ctx context.Context, visitorID string) (flow.State[flow.ResetStep], error) {
	f, err := s.passwordReset(ctx, visitorID)
	if err != nil {
		return flow.State[flow.ResetStep]{}, toAppError(err)
	}
	return f.Snapshot(), nil
}

// RequestPasswordReset submits the forgot-password form.
func (s *Service) RequestPasswordReset(ctx context.Context, visitorID string, values validation.Values) (flow.State[flow.ResetStep], error) {
	f, err := s.passwordReset(ctx, visitorID)
	if err != nil {
		return flow.State[flow.ResetStep]{}, toAppError(err)
	}

	if errs := validation.Validate(values, validation.PasswordResetSet()); !errs.Valid() {
		if err := f.Reject(ctx, flow.ErrorInfo{Fields: invalidFields(errs)}); err != nil {
			return f.Snapshot(), err
		}
		return f.Snapshot(), nil
	}

	email := strings.TrimSpace(values["email"])
	return f.Trigger(ctx, flow.EventSubmit, func(ctx context.Context) (map[string]string, error) {
		msg, err := s.backend.RequestPasswordReset(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("password reset request failed: %w", err)
		}
		return map[string]string{flow.KeyEmail: email, keyResetMessage: msg}, nil
	})
}

// RetryPasswordReset returns from the "sent" step to the form.
func (s *Service) RetryPasswordReset(ctx context.Context, visitorID string) (flow.State[flow.ResetStep], error) {
	f, err := s.passwordReset(ctx, visitorID)
	if err != nil {
		return flow.State[flow.ResetStep]{}, toAppError(err)
	}
	return f.Trigger(ctx, flow.EventTryAgain, nil)
}

func checkbox(v string) bool {
	switch v {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}
