package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.runHealthChecks(c, startupCheckTimeout)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.runHealthChecks(c, readinessCheckTimeout)
}

// runHealthChecks runs every check concurrently within timeout. The first
// failing check in registration order is reported as failed_check; all
// results are listed under checks.
func (s *Server) runHealthChecks(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	results := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]string, len(results))
	var failed *HealthCheck
	var failure error
	for i, err := range results {
		name := s.healthChecks[i].Name
		if err == nil {
			checks[name] = "ok"
			continue
		}
		checks[name] = err.Error()
		if failed == nil {
			failed, failure = &s.healthChecks[i], err
		}
	}

	if failed == nil {
		if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	slog.WarnContext(ctx, "Health check failed", "check", failed.Name, "error", failure)
	response := map[string]any{
		"status":       "unhealthy",
		"failed_check": failed.Name,
		"error":        failure.Error(),
		"checks":       checks,
	}
	if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
