package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/flow"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/session"
)

const (
	msgCooldown        = "Please wait before requesting another link."
	msgVerifyLinkError = "This verification link is invalid or has expired."
	msgLoggedOut       = "You have been logged out."
)

func (s *Server) registerAuthRoutes(g *echo.Group, csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	g.GET("/login", s.handleLoginPage, csrfMiddleware)
	g.POST("/login", s.handleLogin, rateLimiter, csrfMiddleware)
	g.POST("/logout", s.handleLogout, csrfMiddleware)

	g.GET("/signup", s.handleSignupPage, csrfMiddleware)
	g.POST("/signup", s.handleSignup, rateLimiter, csrfMiddleware)

	g.GET("/verify-email", s.handleVerifyEmailPage, csrfMiddleware)
	g.POST("/verify-email/resend", s.handleResendVerification, rateLimiter, csrfMiddleware)
	g.GET("/email/verify", s.handleVerificationCallback)

	g.GET("/forgot-password", s.handleForgotPasswordPage, csrfMiddleware)
	g.POST("/forgot-password", s.handleForgotPassword, rateLimiter, csrfMiddleware)
	g.POST("/forgot-password/retry", s.handleRetryPasswordReset, csrfMiddleware)
}

func (s *Server) handleLanding(c echo.Context) error {
	view, err := s.app.BrowseProjects(c.Request().Context(), tokenFrom(c), "", "", defaultQuery(), 1)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "landing.html", "Fund what your campus builds", map[string]any{
		"Projects": view.Rows,
	})
}

func (s *Server) handleLoginPage(c echo.Context) error {
	redirect := session.SafeRedirect(c.QueryParam("redirect"), "")
	if sessionFrom(c).Snapshot().Authenticated {
		return s.redirect(c, session.SafeRedirect(redirect, "/dashboard"))
	}
	return s.page(c, http.StatusOK, "login.html", "Log in", map[string]any{
		"Email":    "",
		"Redirect": redirect,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	redirect := session.SafeRedirect(values["redirect"], "")
	data := map[string]any{
		"Email":    strings.TrimSpace(values["email"]),
		"Remember": values["remember"] != "",
		"Redirect": redirect,
	}

	errs, err := s.app.Login(c.Request().Context(), sessionFrom(c), values, visitorFrom(c))
	switch {
	case apperrors.IsType(err, apperrors.TypeAuthentication):
		data["Error"] = apperrors.AsStructuredError(err).Message
		return s.page(c, http.StatusUnauthorized, "login.html", "Log in", data)
	case err != nil:
		return err
	case !errs.Valid():
		data["Errors"] = errs
		return s.page(c, http.StatusBadRequest, "login.html", "Log in", data)
	}

	return s.redirect(c, session.SafeRedirect(redirect, "/dashboard"))
}

func (s *Server) handleLogout(c echo.Context) error {
	v := visitorFrom(c)
	if err := s.app.Logout(c.Request().Context(), v.ID(), sessionFrom(c), v); err != nil {
		return apperrors.InternalError("failed to log out", err)
	}
	v.Flash(msgLoggedOut)
	return s.redirect(c, "/login")
}

func (s *Server) handleSignupPage(c echo.Context) error {
	if sessionFrom(c).Snapshot().Authenticated {
		return s.redirect(c, "/dashboard")
	}
	st, err := s.app.SignupState(c.Request().Context(), visitorFrom(c).ID())
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "signup.html", "Create account", map[string]any{
		"State": st,
		"Form":  map[string]string{},
	})
}

func (s *Server) handleSignup(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	v := visitorFrom(c)
	st, result, err := s.app.Signup(c.Request().Context(), v.ID(), sessionFrom(c), values)
	if err != nil && !errors.Is(err, flow.ErrBusy) {
		return err
	}

	if result != nil {
		if err := v.SetPending(result.User.Email, result.Token); err != nil {
			return apperrors.InternalError("failed to remember pending verification", err)
		}
		return s.redirect(c, "/verify-email")
	}

	status := http.StatusOK
	if st.Err != nil {
		status = http.StatusBadRequest
	}
	return s.page(c, status, "signup.html", "Create account", map[string]any{
		"State": st,
		"Form": map[string]string{
			"name":  values["name"],
			"email": values["email"],
			"role":  values["role"],
		},
	})
}

// pendingVerification is the address awaiting verification: the one saved at
// signup, or the signed-in user's own when it is still unverified.
func pendingVerification(c echo.Context) (email, token string) {
	if email, token = visitorFrom(c).Pending(); email != "" {
		return email, token
	}
	if user := userFrom(c); user.ID != "" && !user.EmailVerified {
		return user.Email, tokenFrom(c)
	}
	return "", ""
}

func (s *Server) handleVerifyEmailPage(c echo.Context) error {
	email, _ := pendingVerification(c)
	if email == "" {
		return s.redirect(c, "/signup")
	}

	ver, err := s.app.Verification(c.Request().Context(), visitorFrom(c).ID(), email)
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "verify_email.html", "Verify your email", map[string]any{
		"Email":     email,
		"State":     ver.Snapshot(),
		"Remaining": ver.Remaining(),
	})
}

func (s *Server) handleResendVerification(c echo.Context) error {
	email, token := pendingVerification(c)
	if email == "" {
		return s.redirect(c, "/signup")
	}

	_, err := s.app.ResendVerification(c.Request().Context(), visitorFrom(c).ID(), email, token)
	switch {
	case errors.Is(err, flow.ErrCooldown):
		visitorFrom(c).Flash(msgCooldown)
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrInvalidTransition):
		slog.DebugContext(c.Request().Context(), "Ignoring resend request", "error", err)
	case err != nil:
		return err
	}
	return s.redirect(c, "/verify-email")
}

// handleVerificationCallback is where the emailed link lands.
func (s *Server) handleVerificationCallback(c echo.Context) error {
	v := visitorFrom(c)
	outcome := s.app.CompleteVerification(c.Request().Context(), v.ID(), c.QueryParam("status"))

	status := http.StatusOK
	data := map[string]any{"Outcome": string(outcome)}
	switch outcome {
	case flow.OutcomeSuccess, flow.OutcomeAlready:
		if err := v.ClearPending(); err != nil {
			slog.WarnContext(c.Request().Context(), "Failed to clear pending verification", "error", err)
		}
	default:
		status = http.StatusBadRequest
		data["Error"] = msgVerifyLinkError
	}
	return s.page(c, status, "verify_result.html", "Email verification", data)
}

func (s *Server) handleForgotPasswordPage(c echo.Context) error {
	st, err := s.app.PasswordResetState(c.Request().Context(), visitorFrom(c).ID())
	if err != nil {
		return err
	}
	return s.page(c, http.StatusOK, "forgot_password.html", "Reset password", map[string]any{
		"State": st,
		"Email": st.Value(flow.KeyEmail),
	})
}

func (s *Server) handleForgotPassword(c echo.Context) error {
	values, err := formValues(c)
	if err != nil {
		return apperrors.ValidationError("Invalid form submission")
	}

	st, err := s.app.RequestPasswordReset(c.Request().Context(), visitorFrom(c).ID(), values)
	switch {
	case errors.Is(err, flow.ErrBusy), errors.Is(err, flow.ErrInvalidTransition):
		return s.redirect(c, "/forgot-password")
	case err != nil:
		return err
	}

	status := http.StatusOK
	if st.Err != nil {
		status = http.StatusBadRequest
	}
	return s.page(c, status, "forgot_password.html", "Reset password", map[string]any{
		"State": st,
		"Email": strings.TrimSpace(values["email"]),
	})
}

func (s *Server) handleRetryPasswordReset(c echo.Context) error {
	_, err := s.app.RetryPasswordReset(c.Request().Context(), visitorFrom(c).ID())
	if err != nil && !errors.Is(err, flow.ErrInvalidTransition) {
		return err
	}
	return s.redirect(c, "/forgot-password")
}
