package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the daemon logger: JSON in production-style setups,
// text otherwise, with the minimum level taken from KESS_LOG_LEVEL.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel(cfg),
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func logLevel(cfg *Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
