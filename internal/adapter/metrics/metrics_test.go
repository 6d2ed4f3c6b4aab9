package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_AllCollectorsRegister(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewAuthMetrics(reg, func() float64 { return 3 })
		NewFlowMetrics(reg)
		NewAPIMetrics(reg)
		NewRedisMetrics(reg)
	})

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "abrenfund_auth_active_sessions")
}

func TestAuthMetrics_AuthCheck(t *testing.T) {
	m := NewAuthMetrics(prometheus.NewRegistry(), func() float64 { return 0 })

	m.AuthCheck("authenticated", false)
	m.AuthCheck("authenticated", true)
	m.AuthCheck("rejected", false)
	m.Login(nil)
	m.Login(errors.New("bad password"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.Checks.WithLabelValues("authenticated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Checks.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SharedChecks), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Logins.WithLabelValues("failure")), 0)
}

func TestFlowAndAPIMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	flows := NewFlowMetrics(reg)
	api := NewAPIMetrics(reg)

	flows.Transition("payment", "pay", "succeeded")
	api.ObserveRequest("list_projects", "200", 20*time.Millisecond)
	api.Retry("list_projects")
	api.SetBreakerState(2)

	assert.InDelta(t, 1, testutil.ToFloat64(flows.Transitions.WithLabelValues("payment", "pay", "succeeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(api.Retries.WithLabelValues("list_projects")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(api.BreakerState), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(api.RequestDuration))
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/projects/:id", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/projects/p1", "/projects/p2", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/projects/:id", "200")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestHTTPMetrics_RecordsReturnedErrors(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	e := echo.New()
	e.Use(m.Middleware())
	e.POST("/login", func(echo.Context) error { return echo.NewHTTPError(http.StatusTooManyRequests) })
	e.GET("/boom", func(echo.Context) error { return errors.New("boom") })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/login", nil),
		httptest.NewRequest(http.MethodGet, "/boom", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/login", "429")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/boom", "500")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.InFlightGauge), 0)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	NewFlowMetrics(reg).Transition("signup", "submit", "started")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "abrenfund_flow_transitions_total"))
}
