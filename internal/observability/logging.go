// Package observability wires structured logging for the loader.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a slog.Logger with the given level and format. Format is
// "json" or "text"; anything else falls back to json.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// RunLogger returns a logger scoped to one pipeline run; every record it
// emits carries the run id.
func RunLogger(base *slog.Logger, runID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("run_id", runID)
}

// PhaseLogger returns a logger scoped to one phase of a run.
func PhaseLogger(base *slog.Logger, phaseID int, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("phase_id", phaseID, "phase", name)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
