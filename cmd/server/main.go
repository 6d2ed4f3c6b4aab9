package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/abrenfund/internal/adapter/api"
	"github.com/pscheid92/abrenfund/internal/adapter/httpserver"
	"github.com/pscheid92/abrenfund/internal/adapter/memory"
	"github.com/pscheid92/abrenfund/internal/adapter/metrics"
	"github.com/pscheid92/abrenfund/internal/adapter/redis"
	"github.com/pscheid92/abrenfund/internal/adapter/sample"
	"github.com/pscheid92/abrenfund/internal/app"
	"github.com/pscheid92/abrenfund/internal/domain"
	"github.com/pscheid92/abrenfund/internal/flow"
	"github.com/pscheid92/abrenfund/internal/platform/config"
	"github.com/pscheid92/abrenfund/internal/platform/logging"
	"github.com/pscheid92/abrenfund/internal/session"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBackend(cfg *config.Config, reg prometheus.Registerer) domain.Backend {
	if cfg.UseSampleBackend() {
		slog.Warn("API_BASE_URL not set, serving the in-process sample backend")
		return sample.New()
	}
	return api.New(cfg.APIBaseURL, cfg.APITimeout, api.WithMetrics(metrics.NewAPIMetrics(reg)))
}

// setupFlowStore returns the Redis store when REDIS_URL is set and the
// in-memory store otherwise.
func setupFlowStore(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) (flow.Store, *goredis.Client, *memory.FlowStore) {
	if cfg.RedisURL == "" {
		store := memory.NewFlowStore(clock)
		return store, nil, store
	}

	redisMetrics := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(redisMetrics),
		redis.NewCircuitBreakerHook(redisMetrics),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return redis.NewFlowStore(client), client, nil
}

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service, registry *session.Registry, stopJanitor context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopJanitor()
		appSvc.Stop(shutdownCtx)
		registry.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()
	backend := setupBackend(cfg, reg)

	flowStore, redisClient, memoryStore := setupFlowStore(context.Background(), cfg, reg, clock)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var registry *session.Registry
	authMetrics := metrics.NewAuthMetrics(reg, func() float64 { return float64(registry.Len()) })
	registry = session.NewRegistry(backend, cfg.SessionIdleTTL, clock,
		session.WithCheckTimeout(cfg.APITimeout),
		session.WithObserver(authMetrics),
	)

	appSvc := app.NewService(backend, registry, flowStore, clock, app.Config{
		FlowTTL:              cfg.FlowTTL,
		BusyTimeout:          cfg.FlowBusyTimeout,
		PaymentRedirectDelay: cfg.PaymentRedirectDelay,
		ResendCooldown:       cfg.VerificationResendCooldown,
	},
		app.WithFlowObserver(metrics.NewFlowMetrics(reg)),
		app.WithLoginObserver(authMetrics),
	)

	janitor := app.NewJanitor(clock, time.Minute)
	janitor.Add("sessions", registry)
	janitor.Add("flows", app.SweeperFunc(appSvc.PruneFlows))
	if memoryStore != nil {
		janitor.Add("flow_state", memoryStore)
	}
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go janitor.Run(janitorCtx)

	checks := []httpserver.HealthCheck{{Name: "backend", Check: appSvc.Ping}}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	httpMetrics := metrics.NewHTTPMetrics(reg)
	srv, err := httpserver.NewServer(cfg, appSvc,
		httpserver.WithMetrics(httpMetrics.Middleware(), metrics.Handler(reg)),
		httpserver.WithHealthChecks(checks...),
	)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, appSvc, registry, stopJanitor)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
