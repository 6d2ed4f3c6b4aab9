package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pscheid92/abrenfund/internal/platform/correlation"
	"github.com/pscheid92/abrenfund/internal/platform/version"
)

// Logger is the application-wide structured logger.
var Logger *slog.Logger

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger installs the default logger writing to stdout.
// format is "json" or "text" (default).
func InitLogger(level, format string) {
	Logger = New(os.Stdout, level, format)
	slog.SetDefault(Logger)
}

// New builds a correlation-aware logger tagged with the build version.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler)).With("app", "abrenfund-web", "version", version.Version)
}
