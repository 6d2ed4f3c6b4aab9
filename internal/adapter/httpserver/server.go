package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/abrenfund/internal/app"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	"github.com/pscheid92/abrenfund/internal/listing"
	"github.com/pscheid92/abrenfund/internal/platform/config"
	"github.com/pscheid92/abrenfund/internal/session"
	"github.com/pscheid92/abrenfund/internal/validation"
	"github.com/pscheid92/abrenfund/web"
)

type appService interface {
	Session(visitorID, token string) *session.Store
	DisposeVisitor(ctx context.Context, visitorID string)

	Login(ctx context.Context, sess *session.Store, values validation.Values, marker session.Marker) (validation.Errors, error)
	Logout(ctx context.Context, visitorID string, sess *session.Store, marker session.Marker) error
	SignupState(ctx context.Context, visitorID string) (flow.State[flow.SignupStep], error)
	Signup(ctx context.Context, visitorID string, sess *session.Store, values validation.Values) (flow.State[flow.SignupStep], *domain.AuthResult, error)
	Verification(ctx context.Context, visitorID, email string) (*flow.EmailVerification, error)
	ResendVerification(ctx context.Context, visitorID, email, token string) (flow.State[flow.VerifyStep], error)
	CompleteVerification(ctx context.Context, visitorID, status string) flow.CallbackOutcome
	PasswordResetState(ctx context.Context, visitorID string) (flow.State[flow.ResetStep], error)
	RequestPasswordReset(ctx context.Context, visitorID string, values validation.Values) (flow.State[flow.ResetStep], error)
	RetryPasswordReset(ctx context.Context, visitorID string) (flow.State[flow.ResetStep], error)

	Payment(ctx context.Context, visitorID, projectID string) (*flow.Payment, error)
	SelectPaymentMethod(ctx context.Context, visitorID, projectID string, method domain.PaymentMethod) (flow.State[flow.PaymentStep], error)
	Pay(ctx context.Context, visitorID, projectID, token string, values validation.Values) (flow.State[flow.PaymentStep], error)
	FinishPayment(ctx context.Context, visitorID, projectID string)

	BrowseProjects(ctx context.Context, token, tab, category string, q listing.Query, page int) (app.BrowseView, error)
	Project(ctx context.Context, token, id string) (*domain.Project, error)
	CreatorProjects(ctx context.Context, token string, user domain.UserSummary, q listing.Query, page int) (app.CreatorView, error)
	AdminDashboard(ctx context.Context, token string, user domain.UserSummary, projects, users listing.Query, page int) (app.AdminView, error)
	ModerateProject(ctx context.Context, token string, user domain.UserSummary, action, id string) error
	Wallet(ctx context.Context, token string, q listing.Query, page int) (app.WalletView, error)
	Deposit(ctx context.Context, token string, values validation.Values) (validation.Errors, *domain.Transaction, error)
	Withdraw(ctx context.Context, token string, values validation.Values) (validation.Errors, *domain.Transaction, error)
	Notifications(ctx context.Context, token string, q listing.Query, page int) (app.NotificationsView, error)
	MarkNotificationRead(ctx context.Context, token, id string) error
	MarkAllNotificationsRead(ctx context.Context, token string) error
	DeleteNotification(ctx context.Context, token, id string) error
	NotificationSettings(ctx context.Context, token string) (*domain.NotificationSettings, error)
	SaveNotificationSettings(ctx context.Context, token string, values validation.Values) (domain.NotificationSettings, error)
	SubmitSupport(ctx context.Context, values validation.Values) (validation.Errors, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app appService

	templates *template.Template

	cookies        *sessions.CookieStore
	healthChecks   []HealthCheck
	metrics        echo.MiddlewareFunc
	metricsHandler http.Handler
	startTime      time.Time
}

type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(middleware echo.MiddlewareFunc, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = middleware
		s.metricsHandler = handler
	}
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = append(s.healthChecks, checks...) }
}

func NewServer(cfg *config.Config, app appService, opts ...Option) (*Server, error) {
	templates, err := template.New("").Funcs(templateFuncs).ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		app:       app,
		cookies:   setupCookieStore(cfg),
		templates: templates,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	e.HTTPErrorHandler = srv.httpErrorHandler
	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) renderTemplate(c echo.Context, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "template", name, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(status, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func (s *Server) redirect(c echo.Context, to string) error {
	if err := c.Redirect(http.StatusSeeOther, to); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func setupCookieStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore(cfg.SessionKeys()...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
