// Package logging provides the structured logger shared by every vellum
// component, backed by log/slog. Loggers are immutable; With and
// WithComponent derive children without touching the parent.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel orders vellum's log severities.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// slogLevel maps a vellum level onto slog's scale so handler-side filtering
// agrees with the logger's own gate.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the logging surface components depend on. Fields are
// alternating key/value pairs; non-string keys are dropped.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// VellumLogger is the slog-backed Logger implementation.
type VellumLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	fields    map[string]interface{}
}

// LoggerConfig configures a root logger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns the configuration serve uses when none is given:
// info-level text on stdout.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stdout,
	}
}

// NewLogger builds a root logger from config. A nil config or nil output
// falls back to the defaults.
func NewLogger(config *LoggerConfig) *VellumLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &VellumLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		component: config.Component,
		fields:    map[string]interface{}{},
	}
}

// Discard returns a logger that drops everything. Used in tests and as the
// default when a component is handed a nil logger.
func Discard() *VellumLogger {
	return NewLogger(&LoggerConfig{Level: LevelFatal, Output: io.Discard})
}

func (l *VellumLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, LevelDebug, nil, msg, fields)
}

func (l *VellumLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, LevelInfo, nil, msg, fields)
}

func (l *VellumLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, LevelWarn, err, msg, fields)
}

func (l *VellumLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, LevelError, err, msg, fields)
}

// Fatal logs at error severity and returns. Exiting is the caller's call;
// a library must not take the process down.
func (l *VellumLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, LevelFatal, err, msg, fields)
}

// With derives a logger whose entries always carry the given fields.
func (l *VellumLogger) With(fields ...interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields)/2)
	for k, v := range l.fields {
		merged[k] = v
	}
	eachPair(fields, func(k string, v interface{}) {
		merged[k] = v
	})

	child := *l
	child.fields = merged
	return &child
}

// WithComponent derives a logger tagged with a component name, replacing
// any previous tag.
func (l *VellumLogger) WithComponent(component string) Logger {
	child := *l
	child.component = component
	return &child
}

func (l *VellumLogger) emit(ctx context.Context, level LogLevel, err error, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields)/2+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	eachPair(fields, func(k string, v interface{}) {
		attrs = append(attrs, slog.Any(k, v))
	})

	record := slog.NewRecord(time.Now(), level.slogLevel(), msg, 0)
	record.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, record)
}

// eachPair walks alternating key/value fields, skipping trailing odd
// values and non-string keys.
func eachPair(fields []interface{}, fn func(key string, value interface{})) {
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			fn(key, fields[i+1])
		}
	}
}
