package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/domain"
)

type sessionResponse struct {
	Authenticated bool                `json:"authenticated"`
	Loading       bool                `json:"loading"`
	User          *domain.UserSummary `json:"user,omitempty"`
}

func (s *Server) registerAPIRoutes(g *echo.Group) {
	g.GET("/api/session", s.handleSessionStatus)
	g.GET("/api/flows/payment/:id", s.handlePaymentStatus, s.requireAuth)
}

// handleSessionStatus reports the auth state, waiting up to GuardWait for a
// pending check. The token never leaves the server.
func (s *Server) handleSessionStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.GuardWait)
	snap := sessionFrom(c).Await(ctx)
	cancel()

	resp := sessionResponse{
		Authenticated: snap.Authenticated,
		Loading:       snap.Loading,
		User:          snap.User,
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write session response: %w", err)
	}
	return nil
}
