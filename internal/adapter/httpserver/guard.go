package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/abrenfund/internal/platform/errors"
	"github.com/pscheid92/abrenfund/internal/session"
)

const ctxSession = "session"

// identify attaches the visitor's session store and, when it is already
// known to be authenticated, the user. It never waits for the backend.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		v := visitorFrom(c)
		sess := s.app.Session(v.ID(), v.Token())
		sess.EnsureChecked(c.Request().Context())
		c.Set(ctxSession, sess)

		if snap := sess.Snapshot(); snap.Authenticated {
			c.Set(ctxUser, snap.User)
			c.Set(ctxToken, snap.Token)
		}
		return next(c)
	}
}

// requireAuth gates protected pages. While the auth check is pending it
// waits up to GuardWait, then serves a self-refreshing placeholder rather
// than guessing.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := sessionFrom(c)

		ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.GuardWait)
		snap := sess.Await(ctx)
		cancel()

		decision := session.Decide(snap)
		if wantsJSON(c) {
			return s.guardJSON(c, decision, snap, next)
		}

		switch decision {
		case session.ShowLoading:
			c.Response().Header().Set("Refresh", "1")
			c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			return s.page(c, http.StatusOK, "loading.html", "Loading", nil)

		case session.RenderPage:
			c.Set(ctxUser, snap.User)
			c.Set(ctxToken, snap.Token)
			return next(c)

		default:
			v := visitorFrom(c)
			if v.Token() != "" && snap.Token == "" {
				// The backend rejected the stored token.
				if err := v.Clear(); err != nil {
					slog.WarnContext(c.Request().Context(), "Failed to clear rejected token", "error", err)
				}
			}
			requested := c.Request().URL.RequestURI()
			if c.Request().Method != http.MethodGet {
				requested = backTarget(c)
			}
			if err := c.Redirect(http.StatusFound, session.LoginRedirect("/login", requested)); err != nil {
				return fmt.Errorf("failed to redirect to login: %w", err)
			}
			return nil
		}
	}
}

// guardJSON is the API form of the guard: 202 while loading, 401 when
// signed out.
func (s *Server) guardJSON(c echo.Context, decision session.Decision, snap session.Snapshot, next echo.HandlerFunc) error {
	switch decision {
	case session.ShowLoading:
		if err := c.JSON(http.StatusAccepted, map[string]string{"status": "loading"}); err != nil {
			return fmt.Errorf("failed to write loading response: %w", err)
		}
		return nil
	case session.RenderPage:
		c.Set(ctxUser, snap.User)
		c.Set(ctxToken, snap.Token)
		return next(c)
	default:
		return apperrors.AuthenticationError("Please log in to continue.")
	}
}

func sessionFrom(c echo.Context) *session.Store {
	sess, _ := c.Get(ctxSession).(*session.Store)
	return sess
}
