package httpserver

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/adapter/memory"
	"github.com/pscheid92/abrenfund/internal/adapter/sample"
	"github.com/pscheid92/abrenfund/internal/app"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/platform/config"
	"github.com/pscheid92/abrenfund/internal/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock implementations ---

// gatedBackend holds CurrentUser until the gate is closed.
type gatedBackend struct {
	domain.Backend
	gate chan struct{}
}

func newGatedBackend(t *testing.T, inner domain.Backend) *gatedBackend {
	t.Helper()
	b := &gatedBackend{Backend: inner, gate: make(chan struct{})}
	t.Cleanup(b.release)
	return b
}

func (b *gatedBackend) release() {
	select {
	case <-b.gate:
	default:
		close(b.gate)
	}
}

func (b *gatedBackend) CurrentUser(ctx context.Context, token string) (*domain.UserSummary, error) {
	select {
	case <-b.gate:
		return b.Backend.CurrentUser(ctx, token)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// --- Test helpers ---

const testSessionSecret = "test-secret-key-32-bytes-long!!!"

func newSampleBackend() *sample.Backend {
	return sample.New(sample.WithHashCost(bcrypt.MinCost))
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		SessionSecret:        testSessionSecret,
		SessionMaxAge:        time.Hour,
		GuardWait:            time.Second,
		PaymentRedirectDelay: time.Minute,
		RateLimitRPS:         1000,
		RateLimitBurst:       1000,
	}
}

func newTestTemplates() *template.Template {
	tmpl := template.Must(template.New("landing.html").Funcs(templateFuncs).Parse(`Landing {{len .Projects}}`))
	pages := map[string]string{
		"login.html":                 `Login{{with .Error}} {{.}}{{end}}{{with .Errors}} {{first . "email"}}{{end}} redirect={{.Redirect}}{{range .Flashes}} [{{.}}]{{end}}`,
		"signup.html":                `Signup {{.State.Current}}{{with .State.Err}}{{range $f, $m := .Fields}} {{$f}}:{{index $m 0}}{{end}}{{end}}`,
		"verify_email.html":          `Verify {{.Email}} {{.State.Current}}{{range .Flashes}} [{{.}}]{{end}}`,
		"verify_result.html":         `Verified {{.Outcome}}`,
		"forgot_password.html":       `Forgot {{.State.Current}} {{.State.Value "message"}}{{with .State.Err}}{{range $f, $m := .Fields}} {{$f}}:{{index $m 0}}{{end}}{{end}}`,
		"projects.html":              `Projects {{.View.Tab}} {{len .View.Rows}}`,
		"project.html":               `Project {{.Project.Title}}`,
		"payment.html":               `Payment {{.State.Current}} {{.Method}}{{with .State.Err}} {{.Message}}{{range $f, $m := .Fields}} {{$f}}:{{index $m 0}}{{end}}{{end}}{{if .State.Err}}{{range $k, $v := .Form}} form.{{$k}}={{$v}}{{end}}{{end}}`,
		"creator.html":               `Creator {{.View.Total}}`,
		"admin.html":                 `Admin {{.View.Pending}} {{.Tab}}`,
		"wallet.html":                `Wallet {{money .View.Wallet.Balance}}{{with .Errors}} {{first . "amount"}}{{end}}{{range .Flashes}} [{{.}}]{{end}}`,
		"notifications.html":         `Notifications {{.View.Unread}}{{range .Flashes}} [{{.}}]{{end}}`,
		"notification_settings.html": `Settings {{.Settings.Email}} {{.Settings.Newsletter}}{{range .Flashes}} [{{.}}]{{end}}`,
		"support.html":               `Support{{with .Errors}} {{first . "message"}}{{end}}{{range .Flashes}} [{{.}}]{{end}}`,
		"loading.html":               `Loading`,
		"error.html":                 `Error {{.Status}} {{.Message}}{{range .Flashes}} [{{.}}]{{end}}`,
	}
	for name, text := range pages {
		template.Must(tmpl.New(name).Parse(text))
	}
	return tmpl
}

func newTestService(t *testing.T, backend domain.Backend) *app.Service {
	t.Helper()
	clock := clockwork.NewRealClock()
	registry := session.NewRegistry(backend, time.Hour, clock)
	svc := app.NewService(backend, registry, memory.NewFlowStore(clock), clock, app.Config{
		FlowTTL:              time.Hour,
		BusyTimeout:          5 * time.Second,
		PaymentRedirectDelay: time.Minute,
		ResendCooldown:       time.Minute,
	})
	t.Cleanup(func() {
		svc.Stop(context.Background())
		registry.Stop()
	})
	return svc
}

func newTestServer(t *testing.T, backend domain.Backend, opts ...func(*Server)) *Server {
	t.Helper()

	cfg := testConfig()
	srv := &Server{
		echo:      echo.New(),
		config:    cfg,
		app:       newTestService(t, backend),
		cookies:   setupCookieStore(cfg),
		templates: newTestTemplates(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.echo.HTTPErrorHandler = srv.httpErrorHandler
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withGuardWait(d time.Duration) func(*Server) {
	return func(s *Server) {
		s.config.GuardWait = d
	}
}

// browser replays cookies across requests the way a real client would.
type browser struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, srv *Server) *browser {
	return &browser{t: t, srv: srv, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.srv.echo.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// post submits form with the CSRF token, fetching one first if needed.
func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if _, ok := b.cookies[csrfCookieName]; !ok {
		b.get("/login")
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.cookies[csrfCookieName].Value)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return b.do(req)
}

func (b *browser) login(email string) {
	b.t.Helper()
	rec := b.post("/login", url.Values{"email": {email}, "password": {sample.DemoPassword}})
	require.Equal(b.t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

// visitorValues decodes the visitor cookie the browser currently holds.
func (b *browser) visitorValues() map[any]any {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	sess, err := b.srv.cookies.Get(req, visitorCookieName)
	require.NoError(b.t, err)
	return sess.Values
}

// setVisitorToken plants a login hint in a fresh visitor cookie.
func setVisitorToken(t *testing.T, b *browser, token string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	sess, err := b.srv.cookies.Get(req, visitorCookieName)
	require.NoError(t, err)
	sess.Values[keyVisitorID] = uuid.NewString()
	sess.Values[keyToken] = token
	sess.Values[keyLoggedIn] = true
	require.NoError(t, sess.Save(req, rec))
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
}

func firstProject(t *testing.T, backend domain.Backend, status domain.ProjectStatus) domain.Project {
	t.Helper()
	projects, err := backend.ListProjects(context.Background(), "")
	require.NoError(t, err)
	for _, p := range projects {
		if p.Status == status {
			return p
		}
	}
	t.Fatalf("no %s project in sample data", status)
	return domain.Project{}
}
