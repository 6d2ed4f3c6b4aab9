package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minSessionSecretLength = 32

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	SessionSecret string `env:"SESSION_SECRET"`
	// SessionEncryptionKey optionally encrypts the visitor cookie (hex, 16/24/32 bytes).
	SessionEncryptionKey string `env:"SESSION_ENCRYPTION_KEY"`
	APIBaseURL           string `env:"API_BASE_URL"`
	RedisURL             string `env:"REDIS_URL"`
	LogLevel             string `env:"LOG_LEVEL" default:"info"`
	LogFormat            string `env:"LOG_FORMAT" default:"text"`

	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" default:"30m"`
	APITimeout     time.Duration `env:"API_TIMEOUT" default:"10s"`
	GuardWait      time.Duration `env:"GUARD_WAIT" default:"1500ms"`

	FlowTTL                    time.Duration `env:"FLOW_TTL" default:"1h"`
	FlowBusyTimeout            time.Duration `env:"FLOW_BUSY_TIMEOUT" default:"30s"`
	PaymentRedirectDelay       time.Duration `env:"PAYMENT_REDIRECT_DELAY" default:"3s"`
	VerificationResendCooldown time.Duration `env:"VERIFICATION_RESEND_COOLDOWN" default:"60s"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" default:"10"`
}

// SessionKeys returns the cookie hash key followed by the optional block key.
func (c *Config) SessionKeys() [][]byte {
	keys := [][]byte{[]byte(c.SessionSecret)}
	if block, err := hex.DecodeString(c.SessionEncryptionKey); err == nil && len(block) > 0 {
		keys = append(keys, block)
	}
	return keys
}

// UseSampleBackend reports whether the in-process sample backend replaces the REST API.
func (c *Config) UseSampleBackend() bool {
	return c.APIBaseURL == ""
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}

	if cfg.SessionEncryptionKey != "" {
		key, err := hex.DecodeString(cfg.SessionEncryptionKey)
		if err != nil || (len(key) != 16 && len(key) != 24 && len(key) != 32) {
			return errors.New("SESSION_ENCRYPTION_KEY must be 16, 24 or 32 hex-encoded bytes")
		}
	}

	if cfg.APIBaseURL != "" {
		u, err := url.Parse(cfg.APIBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", cfg.APIBaseURL)
		}
	}

	durations := map[string]time.Duration{
		"API_TIMEOUT":       cfg.APITimeout,
		"GUARD_WAIT":        cfg.GuardWait,
		"FLOW_TTL":          cfg.FlowTTL,
		"FLOW_BUSY_TIMEOUT": cfg.FlowBusyTimeout,
		"SESSION_IDLE_TTL":  cfg.SessionIdleTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.PaymentRedirectDelay < 0 || cfg.VerificationResendCooldown < 0 {
		return errors.New("PAYMENT_REDIRECT_DELAY and VERIFICATION_RESEND_COOLDOWN must not be negative")
	}

	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}
