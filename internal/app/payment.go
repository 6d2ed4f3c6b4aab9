package app

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/validation"
)

const paymentFlow = "payment"

// Payment returns the visitor's contribution flow for projectID.
func (s *Service) Payment(ctx context.Context, visitorID, projectID string) (*flow.Payment, error) {
	key := flowKey(visitorID, paymentFlow, projectID)
	p, err := cachedFlow(s, visitorID, key, func() (*flow.Payment, error) {
		navigate := func(url string) {
			slog.Debug("Payment redirect due", "visitor", visitorID, "url", url)
		}
		return flow.NewPayment(ctx, projectID, s.cfg.PaymentRedirectDelay, navigate, flowOptions[flow.PaymentStep](s, key)...)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	if err := p.Sync(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to sync payment flow", "project", projectID, "error", err)
	}
	return p, nil
}

// SelectPaymentMethod switches the method shown on the payment form.
func (s *Service) SelectPaymentMethod(ctx context.Context, visitorID, projectID string, method domain.PaymentMethod) (flow.State[flow.PaymentStep], error) {
	p, err := s.Payment(ctx, visitorID, projectID)
	if err != nil {
		return flow.State[flow.PaymentStep]{}, err
	}
	if !validPaymentMethod(method) {
		return p.Snapshot(), apperrors.ValidationError("Unknown payment method").WithField("method", string(method))
	}
	return p.SelectMethod(ctx, method)
}

// Pay validates the form for the selected method and starts processing.
// The flow resolves in the background; callers poll its state.
func (s *Service) Pay(ctx context.Context, visitorID, projectID, token string, values validation.Values) (flow.State[flow.PaymentStep], error) {
	p, err := s.Payment(ctx, visitorID, projectID)
	if err != nil {
		return flow.State[flow.PaymentStep]{}, err
	}

	st := p.Snapshot()
	switch {
	case st.Busy:
		return st, flow.ErrBusy
	case st.Current != flow.PaymentMethodSelection:
		return st, flow.ErrInvalidTransition
	}

	method := domain.PaymentMethod(st.Value(flow.KeyMethod))
	if m := domain.PaymentMethod(values["method"]); validPaymentMethod(m) {
		method = m
	}
	if err := rememberPaymentForm(ctx, p, method, values); err != nil {
		return p.Snapshot(), err
	}

	if errs := validation.Validate(values, paymentSet(method, s.clock.Now())); !errs.Valid() {
		if err := p.Reject(ctx, flow.ErrorInfo{Message: msgFixFields, Fields: invalidFields(errs)}); err != nil {
			return p.Snapshot(), err
		}
		return p.Snapshot(), nil
	}

	amount, _ := validation.ParseAmount(values["amount"])
	payment := domain.Payment{
		ProjectID: projectID,
		Amount:    amount,
		Method:    method,
		Anonymous: checkbox(values["anonymous"]),
	}
	switch method {
	case domain.MethodCard:
		number := validation.NormalizeCardNumber(values["cardNumber"])
		payment.CardName = strings.TrimSpace(values["cardName"])
		payment.CardLast4 = number[len(number)-4:]
	case domain.MethodMobile:
		payment.Phone = strings.TrimSpace(values["phone"])
	}

	return p.Pay(ctx, func(ctx context.Context) (map[string]string, error) {
		tx, err := s.backend.ProcessPayment(ctx, token, payment)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			flow.KeyMethod:        string(method),
			flow.KeyAmount:        strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			flow.KeyTransactionID: tx.ID,
		}, nil
	})
}

// FinishPayment drops the payment flow once the visitor has left the page.
func (s *Service) FinishPayment(ctx context.Context, visitorID, projectID string) {
	s.dropFlow(ctx, flowKey(visitorID, paymentFlow, projectID))
}

// rememberPaymentForm keeps the chosen method and the non-sensitive inputs
// so the form can be shown again after a failure.
func rememberPaymentForm(ctx context.Context, p *flow.Payment, method domain.PaymentMethod, values validation.Values) error {
	kept := map[string]string{flow.KeyMethod: string(method)}
	for _, field := range flow.PaymentFormFields {
		kept[flow.FormKey(field)] = values[field]
	}
	return p.PutAll(ctx, kept)
}

func paymentSet(method domain.PaymentMethod, now time.Time) validation.ConstraintSet {
	switch method {
	case domain.MethodMobile:
		return validation.PaymentMobileSet()
	case domain.MethodWallet:
		return validation.PaymentWalletSet()
	default:
		return validation.PaymentCardSet(now)
	}
}

func validPaymentMethod(m domain.PaymentMethod) bool {
	switch m {
	case domain.MethodCard, domain.MethodMobile, domain.MethodWallet:
		return true
	default:
		return false
	}
}
