package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
)

// paymentStatus is the polling view of a payment flow.
type paymentStatus struct {
	Step       flow.PaymentStep `json:"step"`
	Busy       bool             `json:"busy"`
	Error      *flow.ErrorInfo  `json:"error,omitempty"`
	Method     string           `json:"method"`
	Amount     string           `json:"amount,omitempty"`
	RedirectTo string           `json:"redirect_to,omitempty"`
	RedirectIn int64            `json:"redirect_in_ms,omitempty"`
}

func (s *Server) registerPaymentRoutes(g *echo.Group, csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	g.GET("/projects/:id/contribute", s.handlePaymentPage, s.requireAuth, csrfMiddleware)
	g.POST("/projects/:id/contribute", s.handlePay, rateLimiter, s.requireAuth, csrfMiddleware)
	g.POST("/projects/:id/contribute/method", s.handleSelectMethod, s.requireAuth, csrfMiddleware)
	g.POST("/projects/:id/contribute/leave", s.handleLeavePayment, s.requireAuth, csrfMiddleware)
}

func (s *Server) handlePaymentPage(c echo.Context) error {
	ctx := c.Request().Context()
	projectID := c.Param("id")

	project, err := s.app.Project(ctx, tokenFrom(c), projectID)
	if err != nil {
		return err
	}
	p, err := s.app.Payment(ctx, visitorFrom(c).ID(), projectID)
	if err != nil {
		return err
	}

	st := p.Snapshot()
	if st.Value(flow.KeyNavigated) == "true" {
		s.app.FinishPayment(ctx, visitorFrom(c).ID(), projectID)
		return s.redirect(c, p.ProjectURL())
	}

	data := map[string]any{
		"Project": project,
		"State":   st,
		"Method":  st.Value(flow.KeyMethod),
		"Form":    paymentForm(st),
	}
	switch st.Current {
	case flow.PaymentProcessing:
		c.Response().Header().Set("Refresh", "1")
	case flow.PaymentSuccess:
		remaining := p.RedirectIn()
		data["RedirectIn"] = remaining
		c.Response().Header().Set("Refresh", fmt.Sprintf("%d; url=%s", refreshSeconds(remaining), c.Request().URL.Path))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return s.page(c, http.StatusOK, "payment.html", "Contribute to "+project.Title, data)
}

func (s *Server) handleSelectMethod(c echo.Context) error {
	method := domain.PaymentMethod(c.FormValue("method"))
	_, err := s.app.SelectPaymentMethod(c.Request().Context(), visitorFrom(c).ID(), c.Param("id"), method)
	if err != nil && !errors.Is(err, flow.ErrInvalidTransition) && !errors.Is(err, flow.ErrBusy) {
		return err
	}
	return s.redirect(c, contributeURL(c))
}

func (s *Server) handlePay(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	ctx := c.Request().Context()
	projectID := c.Param("id")
	st, err := s.app.Pay(ctx, visitorFrom(c).ID(), projectID, tokenFrom(c), values)
	switch {
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrInvalidTransition):
		return s.redirect(c, contributeURL(c))
	case err != nil:
		return err
	}

	if st.Current != flow.PaymentMethodSelection || st.Err == nil {
		return s.redirect(c, contributeURL(c))
	}

	project, err := s.app.Project(ctx, tokenFrom(c), projectID)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusBadRequest, "payment.html", "Contribute to "+project.Title, map[string]any{
		"Project": project,
		"State":   st,
		"Method":  st.Value(flow.KeyMethod),
		"Form":    paymentForm(st),
	})
}

func (s *Server) handleLeavePayment(c echo.Context) error {
	projectID := c.Param("id")
	s.app.FinishPayment(c.Request().Context(), visitorFrom(c).ID(), projectID)
	return s.redirect(c, "/projects/"+projectID)
}

func (s *Server) handlePaymentStatus(c echo.Context) error {
	p, err := s.app.Payment(c.Request().Context(), visitorFrom(c).ID(), c.Param("id"))
	if err != nil {
		return err
	}

	st := p.Snapshot()
	resp := paymentStatus{
		Step:   st.Current,
		Busy:   st.Busy,
		Error:  st.Err,
		Method: st.Value(flow.KeyMethod),
		Amount: st.Value(flow.KeyAmount),
	}
	if st.Current == flow.PaymentSuccess {
		resp.RedirectTo = p.ProjectURL()
		resp.RedirectIn = p.RedirectIn().Milliseconds()
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write payment status: %w", err)
	}
	return nil
}

func contributeURL(c echo.Context) string {
	return "/projects/" + c.Param("id") + "/contribute"
}

// paymentForm is what the payment form shows again after a failed attempt.
func paymentForm(st flow.State[flow.PaymentStep]) map[string]string {
	out := make(map[string]string)
	for _, field := range flow.PaymentFormFields {
		if v := st.Value(flow.FormKey(field)); v != "" {
			out[field] = v
		}
	}
	return out
}

// refreshSeconds rounds d up to whole seconds, at least one.
func refreshSeconds(d time.Duration) int64 {
	return max(int64((d+time.Second-1)/time.Second), 1)
}
