// Package nexuslog builds the hub's structured logger: JSON or text output,
// an optional rotated file sink, and a ring buffer the monitoring endpoints
// read from. Grounded on gridctl's pkg/logging/structured.go.
package nexuslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the slog handler used for the primary sink.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls how the hub's root logger is built.
type Config struct {
	// Level sets the minimum log level (default: INFO).
	Level slog.Level
	// Format sets the primary sink's encoding (default: JSON).
	Format Format
	// Output is the primary sink; defaults to os.Stderr.
	Output io.Writer
	// AddSource adds source file:line to every record.
	AddSource bool
	// Component tags every record with a component field (e.g. "hub", "supervisor").
	Component string

	// FilePath, when set, adds a rotated file sink alongside Output via
	// lumberjack, so a long-running hub process doesn't grow an unbounded
	// log file on disk.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Buffer, when non-nil, receives every record for the monitoring
	// endpoints to serve without re-parsing a log file.
	Buffer *Buffer
}

// DefaultConfig returns the hub's default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// New builds the root logger from cfg.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	sink := cfg.Output
	if cfg.FilePath != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		}
		sink = io.MultiWriter(cfg.Output, rotated)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String("ts", t.Format(time.RFC3339Nano))
				}
			}
			if a.Key == slog.MessageKey {
				a.Key = "msg"
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(sink, opts)
	default:
		handler = slog.NewJSONHandler(sink, opts)
	}

	if cfg.Component != "" {
		handler = &componentHandler{Handler: handler, component: cfg.Component}
	}
	if cfg.Buffer != nil {
		handler = &bufferHandler{Handler: handler, buffer: cfg.Buffer}
	}

	return slog.New(handler)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// componentHandler stamps a component field onto every record.
type componentHandler struct {
	slog.Handler
	component string
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return h.Handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// WithTraceID returns a logger annotated with a correlation id, for request
// or routed-message tracing across the hub/supervisor/router boundary.
func WithTraceID(logger *slog.Logger, traceID string) *slog.Logger {
	return logger.With(slog.String("trace_id", traceID))
}

// WithComponent returns a logger annotated with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// ParseLevel converts a config/env string to a slog.Level, defaulting to
// info on anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat converts a config/env string to a Format.
func ParseFormat(format string) Format {
	switch strings.ToLower(format) {
	case "text", "pretty":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatJSON
	}
}
