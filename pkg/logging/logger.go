// Package logging provides the structured logger shared by every component
// of the engine.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds configuration for the structured logger.
type Config struct {
	Level       LogLevel `json:"level" yaml:"level"`
	Format      string   `json:"format" yaml:"format"` // "json" or "text"
	ServiceName string   `json:"service_name" yaml:"service_name"`
	AddSource   bool     `json:"add_source" yaml:"add_source"`
}

// DefaultConfig returns the logger settings used when none are configured.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "json", ServiceName: "stagegate"}
}

// New creates a structured logger writing to stdout.
func New(config Config) *slog.Logger {
	return NewWithWriter(config, os.Stdout)
}

// NewWithWriter creates a structured logger writing to w; tests use this to
// capture output.
func NewWithWriter(config Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if config.ServiceName != "" {
		logger = logger.With("service", config.ServiceName)
	}
	return logger
}

func parseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
