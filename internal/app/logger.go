package app

import (
	"io"
	"log/slog"

	"github.com/samber/lo"
)

// logLevels maps the accepted log-level values to slog levels. NewConfig
// validates against the same table.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the logger described by cfg, writing to w. An empty level
// means info and an empty format means text. It does not touch the global
// logger.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := lo.ValueOr(logLevels, cfg.LogLevel, slog.LevelInfo)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
