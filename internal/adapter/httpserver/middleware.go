package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/platform/correlation"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/session"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware turns returned errors into responses. API and XHR
// requests get JSON. Pages get a login redirect for authentication errors,
// a flash plus redirect back for failed form posts, and the error page
// otherwise.
func (s *Server) ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)
			return s.respondError(c, structuredErr)
		}
	}
}

func (s *Server) respondError(c echo.Context, err *apperrors.Error) error {
	if c.Response().Committed {
		return nil
	}

	if wantsJSON(c) {
		if err := c.JSON(err.HTTPStatus(), err.ToResponse()); err != nil {
			return fmt.Errorf("failed to write error response: %w", err)
		}
		return nil
	}

	v := visitorFrom(c)
	switch {
	case err.Type == apperrors.TypeAuthentication && v != nil:
		if clearErr := v.Clear(); clearErr != nil {
			slog.WarnContext(c.Request().Context(), "Failed to clear visitor token", "error", clearErr)
		}
		v.Flash(err.Message)
		return s.redirect(c, session.LoginRedirect("/login", c.Request().URL.RequestURI()))
	case c.Request().Method == http.MethodPost && err.Retryable() && v != nil:
		v.Flash(err.Message)
		return s.redirect(c, backTarget(c))
	}

	return s.renderError(c, err.HTTPStatus(), err.Message)
}

// httpErrorHandler handles errors that bypass the middleware: unknown routes,
// CSRF and rate-limit rejections and recovered panics.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again."
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok && code < http.StatusInternalServerError {
			message = msg
		}
	} else {
		logError(c, apperrors.AsStructuredError(err))
	}

	var writeErr error
	switch {
	case c.Request().Method == http.MethodHead:
		writeErr = c.NoContent(code)
	case wantsJSON(c):
		writeErr = c.JSON(code, map[string]string{"error": message})
	default:
		writeErr = s.renderError(c, code, message)
	}
	if writeErr != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to write error response", "error", writeErr)
	}
}

func (s *Server) renderError(c echo.Context, status int, message string) error {
	return s.renderTemplate(c, status, "error.html", s.pageData(c, "Error", map[string]any{
		"Status":  status,
		"Message": message,
	}))
}

func wantsJSON(c echo.Context) bool {
	req := c.Request()
	return strings.HasPrefix(req.URL.Path, "/api/") ||
		req.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// backTarget is the same-site page that submitted the form, or "/".
func backTarget(c echo.Context) string {
	ref, err := url.Parse(c.Request().Referer())
	if err != nil || ref.Host != c.Request().Host {
		return "/"
	}
	return session.SafeRedirect(ref.RequestURI(), "/")
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if v := visitorFrom(c); v != nil {
		attrs = append(attrs, "visitor", v.ID())
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeAuthentication:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Backend API error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}
