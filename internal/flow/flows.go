package flow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pscheid92/abrenfund/internal/domain"
)

const (
	EventSubmit       Event = "submit"
	EventResend       Event = "resend"
	EventSelectMethod Event = "select_method"
	EventPay          Event = "pay"
	EventTryAgain     Event = "try_again"
)

// Context keys shared by the flow instances.
const (
	KeyEmail         = "email"
	KeyCooldownUntil = "cooldown_until"
	KeyProjectID     = "project_id"
	KeyMethod        = "method"
	KeyAmount        = "amount"
	KeyTransactionID = "transaction_id"
	KeyRedirectTo    = "redirect_to"
	KeyRedirectAt    = "redirect_at"
	KeyNavigated     = "navigated"
)

// PaymentFormFields are the payment form inputs kept in the flow context so
// a failed attempt can show them again. Card number and CVV are never kept.
var PaymentFormFields = []string{"amount", "cardName", "expiry", "phone", "anonymous"}

// FormKey is the context key holding the submitted value of a form field.
func FormKey(field string) string {
	return "form." + field
}

// Signup

type SignupStep string

const (
	SignupEntry      SignupStep = "entry"
	SignupSubmitting SignupStep = "submitting"
	SignupDone       SignupStep = "done"
	SignupError      SignupStep = "error"
)

func SignupDefinition() Definition[SignupStep] {
	return Definition[SignupStep]{
		Name:     "signup",
		Initial:  SignupEntry,
		Error:    SignupError,
		Terminal: []SignupStep{SignupDone},
		Rules: []Rule[SignupStep]{
			{From: SignupEntry, On: EventSubmit, Pending: SignupSubmitting, Success: SignupDone, Failure: SignupEntry},
		},
	}
}

// Email verification

type VerifyStep string

const (
	VerifyPending   VerifyStep = "pending"
	VerifyResending VerifyStep = "resend-requested"
	VerifyError     VerifyStep = "error"
)

func EmailVerificationDefinition() Definition[VerifyStep] {
	return Definition[VerifyStep]{
		Name:    "email_verification",
		Initial: VerifyPending,
		Error:   VerifyError,
		Rules: []Rule[VerifyStep]{
			{From: VerifyPending, On: EventResend, Pending: VerifyResending, Success: VerifyPending, Failure: VerifyPending},
		},
	}
}

var ErrCooldown = errors.New("verification resend is cooling down")

// EmailVerification is the "check your inbox" page: a resend action guarded
// by a countdown that restarts after every successful resend.
type EmailVerification struct {
	*Flow[VerifyStep]
	cooldown time.Duration
}

// NewEmailVerification restores or starts the verification flow for email.
// A fresh flow starts its countdown immediately since registration just sent
// the first link.
func NewEmailVerification(ctx context.Context, email string, cooldown time.Duration, opts ...Option[VerifyStep]) (*EmailVerification, error) {
	v := &EmailVerification{cooldown: cooldown}
	opts = append(opts,
		WithContext[VerifyStep](map[string]string{KeyEmail: email}),
		OnTransition(v.onTransition),
	)

	f, err := Restore(ctx, EmailVerificationDefinition(), opts...)
	if err != nil {
		return nil, err
	}
	v.Flow = f

	if v.Snapshot().Value(KeyCooldownUntil) == "" {
		v.startCountdown(ctx)
	}
	return v, nil
}

// Remaining is the time left before a resend is allowed.
func (v *EmailVerification) Remaining() time.Duration {
	until, err := strconv.ParseInt(v.Snapshot().Value(KeyCooldownUntil), 10, 64)
	if err != nil {
		return 0
	}
	return max(time.Unix(0, until).Sub(v.clock.Now()), 0)
}

// Resend asks send for a new link. Only the exact confirmation message
// counts as success; any other message is shown as the error.
func (v *EmailVerification) Resend(ctx context.Context, send func(ctx context.Context) (string, error)) (State[VerifyStep], error) {
	if v.Remaining() > 0 {
		return v.Snapshot(), ErrCooldown
	}
	return v.Trigger(ctx, EventResend, func(ctx context.Context) (map[string]string, error) {
		msg, err := send(ctx)
		if err != nil {
			return nil, err
		}
		if msg != domain.VerificationSentMessage {
			if msg == "" {
				msg = "We could not send a new verification link. Please try again."
			}
			return nil, &UserError{Message: msg}
		}
		return nil, nil
	})
}

func (v *EmailVerification) onTransition(tr Transition[VerifyStep]) {
	if tr.Event == EventResend && tr.Result == Succeeded {
		v.startCountdown(context.Background())
	}
}

func (v *EmailVerification) startCountdown(ctx context.Context) {
	until := v.clock.Now().Add(v.cooldown)
	_ = v.Put(ctx, KeyCooldownUntil, strconv.FormatInt(until.UnixNano(), 10))
}

// Verification callback

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeAlready CallbackOutcome = "already"
	OutcomeError   CallbackOutcome = "error"
)

// VerificationOutcome maps the callback's status parameter to its terminal
// outcome. Anything but the two known values, including "", is an error.
func VerificationOutcome(status string) CallbackOutcome {
	switch status {
	case "verified":
		return OutcomeSuccess
	case "already_verified":
		return OutcomeAlready
	default:
		return OutcomeError
	}
}

// Payment

type PaymentStep string

const (
	PaymentMethodSelection PaymentStep = "method-selection"
	PaymentProcessing      PaymentStep = "processing"
	PaymentSuccess         PaymentStep = "success"
	PaymentError           PaymentStep = "error"
)

// PaymentDefinition returns to method selection on failure so the user can
// pick another method or retry.
func PaymentDefinition() Definition[PaymentStep] {
	return Definition[PaymentStep]{
		Name:     "payment",
		Initial:  PaymentMethodSelection,
		Error:    PaymentError,
		Terminal: []PaymentStep{PaymentSuccess},
		Rules: []Rule[PaymentStep]{
			{From: PaymentMethodSelection, On: EventSelectMethod, Success: PaymentMethodSelection},
			{From: PaymentMethodSelection, On: EventPay, Pending: PaymentProcessing, Success: PaymentSuccess, Failure: PaymentMethodSelection},
		},
	}
}

// Payment is the contribute-to-project flow. On success it navigates to the
// project page once the redirect delay has passed.
type Payment struct {
	*Flow[PaymentStep]
	delay    time.Duration
	navigate func(url string)
}

// NewPayment restores or starts a payment flow for projectID. navigate may be nil.
func NewPayment(ctx context.Context, projectID string, delay time.Duration, navigate func(url string), opts ...Option[PaymentStep]) (*Payment, error) {
	p := &Payment{delay: delay, navigate: navigate}
	opts = append(opts,
		WithContext[PaymentStep](map[string]string{KeyProjectID: projectID, KeyMethod: string(domain.MethodCard)}),
		OnTransition(p.onTransition),
	)

	f, err := Restore(ctx, PaymentDefinition(), opts...)
	if err != nil {
		return nil, err
	}
	p.Flow = f
	return p, nil
}

// SelectMethod switches the payment method while on method selection.
func (p *Payment) SelectMethod(ctx context.Context, method domain.PaymentMethod) (State[PaymentStep], error) {
	if p.Snapshot().Current != PaymentMethodSelection {
		return p.Snapshot(), ErrInvalidTransition
	}
	if err := p.Put(ctx, KeyMethod, string(method)); err != nil {
		return p.Snapshot(), err
	}
	return p.Trigger(ctx, EventSelectMethod, nil)
}

// Pay moves to processing and resolves in the background.
func (p *Payment) Pay(ctx context.Context, op Operation) (State[PaymentStep], error) {
	return p.Start(ctx, EventPay, op)
}

// ProjectURL is where the flow navigates after success.
func (p *Payment) ProjectURL() string {
	return "/projects/" + p.Snapshot().Value(KeyProjectID)
}

// RedirectIn is the time left before the automatic navigation.
func (p *Payment) RedirectIn() time.Duration {
	at, err := strconv.ParseInt(p.Snapshot().Value(KeyRedirectAt), 10, 64)
	if err != nil {
		return p.delay
	}
	return max(time.Unix(0, at).Sub(p.clock.Now()), 0)
}

func (p *Payment) onTransition(tr Transition[PaymentStep]) {
	if tr.To != PaymentSuccess || tr.Result != Succeeded {
		return
	}
	ctx := context.Background()
	url := p.ProjectURL()
	_ = p.Put(ctx, KeyRedirectTo, url)
	_ = p.Put(ctx, KeyRedirectAt, strconv.FormatInt(p.clock.Now().Add(p.delay).UnixNano(), 10))
	p.After(p.delay, func() {
		_ = p.Put(ctx, KeyNavigated, "true")
		if p.navigate != nil {
			p.navigate(url)
		}
	})
}

// Password reset

type ResetStep string

const (
	ResetEntry      ResetStep = "entry"
	ResetSubmitting ResetStep = "submitting"
	ResetSent       ResetStep = "sent"
	ResetError      ResetStep = "error"
)

func PasswordResetDefinition() Definition[ResetStep] {
	return Definition[ResetStep]{
		Name:    "password_reset",
		Initial: ResetEntry,
		Error:   ResetError,
		Rules: []Rule[ResetStep]{
			{From: ResetEntry, On: EventSubmit, Pending: ResetSubmitting, Success: ResetSent, Failure: ResetEntry},
			{From: ResetSent, On: EventTryAgain, Success: ResetEntry},
		},
	}
}
