package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always emits JSON at
// info level; elsewhere LOG_FORMAT picks the handler and debug records
// are kept.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if cfg != nil && cfg.IsProduction() {
		opts.Level = slog.LevelInfo
	}
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
