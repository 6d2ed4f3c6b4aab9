package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/abrenfund/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHealthChecks(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(*Server) echo.HandlerFunc
		checks     []HealthCheck
		wantStatus int
		wantFailed string
	}{
		{
			name:       "startup all healthy",
			handler:    func(s *Server) echo.HandlerFunc { return s.handleStartup },
			checks:     []HealthCheck{{Name: "backend", Check: healthOK}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "startup redis down",
			handler:    func(s *Server) echo.HandlerFunc { return s.handleStartup },
			checks:     []HealthCheck{{Name: "backend", Check: healthOK}, {Name: "redis", Check: healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "redis",
		},
		{
			name:       "readiness all healthy",
			handler:    func(s *Server) echo.HandlerFunc { return s.handleReadiness },
			checks:     []HealthCheck{{Name: "backend", Check: healthOK}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "readiness backend down",
			handler:    func(s *Server) echo.HandlerFunc { return s.handleReadiness },
			checks:     []HealthCheck{{Name: "backend", Check: healthErr("dial tcp: timeout")}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: "backend",
		},
		{
			name:       "readiness without checks",
			handler:    func(s *Server) echo.HandlerFunc { return s.handleReadiness },
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, newSampleBackend(), withHealthChecks(tt.checks...))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			err := tt.handler(srv)(srv.echo.NewContext(req, rec))

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantFailed == "" {
				assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
				return
			}
			assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
			assert.Contains(t, rec.Body.String(), `"failed_check":"`+tt.wantFailed+`"`)
		})
	}
}

func TestHealthChecks_ReportsEveryResult(t *testing.T) {
	srv := newTestServer(t, newSampleBackend(), withHealthChecks(
		HealthCheck{Name: "backend", Check: healthErr("bad gateway")},
		HealthCheck{Name: "redis", Check: healthErr("connection refused")},
		HealthCheck{Name: "templates", Check: healthOK},
	))
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		FailedCheck string            `json:"failed_check"`
		Error       string            `json:"error"`
		Checks      map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend", resp.FailedCheck)
	assert.Equal(t, "bad gateway", resp.Error)
	assert.Equal(t, map[string]string{
		"backend":   "bad gateway",
		"redis":     "connection refused",
		"templates": "ok",
	}, resp.Checks)
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, newSampleBackend(), withHealthChecks(HealthCheck{Name: "redis", Check: healthErr("down")}))
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	// Liveness ignores dependency checks.
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"uptime"`)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, newSampleBackend())
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "abrenfund-web", info.Service)
	assert.NotEmpty(t, info.GoVersion)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("absent without metrics", func(t *testing.T) {
		srv := newTestServer(t, newSampleBackend())
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("served when configured", func(t *testing.T) {
		srv := newTestServer(t, newSampleBackend(), func(s *Server) {
			WithMetrics(func(next echo.HandlerFunc) echo.HandlerFunc { return next }, promhttp.Handler())(s)
		})
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()

		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
