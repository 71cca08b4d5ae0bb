package telemetry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/af-corp/protobridge/internal/config"
)

// NewLogger builds the process logger from telemetry config. Unknown levels
// fall back to info; any format other than "text" is JSON.
func NewLogger(w io.Writer, cfg config.TelemetryConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.ServiceName != "" {
		return slog.New(h).With("service", cfg.ServiceName)
	}
	return slog.New(h)
}

func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
