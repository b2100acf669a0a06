package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level names accepted in Config.Level
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON switches the handler from text to JSON
	JSON bool
	// Output defaults to os.Stderr
	Output io.Writer
	// AddSource adds file:line to every record
	AddSource bool
}

// DefaultConfig returns the production logger configuration
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		JSON:   true,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from the LOG_LEVEL and LOG_FORMAT values.
func FromEnv(level, format string) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = level
	}
	cfg.JSON = !strings.EqualFold(format, "text")
	return cfg
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
}

var (
	globalMu sync.RWMutex
	global   *Logger
)

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// New creates a logger. The first logger created becomes the global one.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	l := &Logger{Logger: slog.New(handler)}

	globalMu.Lock()
	if global == nil {
		global = l
	}
	globalMu.Unlock()

	return l
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetGlobal replaces the global logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// GetGlobal returns the global logger, creating a default one if needed
func GetGlobal() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l == nil {
		return New(DefaultConfig())
	}
	return l
}

// LogError logs err under msg with extra key/value pairs
func (l *Logger) LogError(err error, msg string, args ...any) {
	if err == nil {
		l.Error(msg, args...)
		return
	}
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// WithRequestID tags every record with request_id
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.With("request_id", requestID)}
}

// WithNickname tags every record with the session nickname
func (l *Logger) WithNickname(nickname string) *Logger {
	if nickname == "" {
		return l
	}
	return &Logger{Logger: l.With("nickname", nickname)}
}

// WithComponent tags every record with a component name
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With("component", name)}
}

// LogRequest logs a completed HTTP request
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}
