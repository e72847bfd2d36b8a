// Package logging provides the server's structured logger: a thin
// wrapper around zap shaped the same way ublk's stdlib-log wrapper is
// (Config, New, Debug/Info/Warn/Error, a process-wide default),
// swapped to a real structured backend since the corpus reaches for zap
// wherever a server needs leveled, field-based logging.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the handful of levels callers in this codebase actually
// use.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level Level
	// Development enables human-readable console output instead of
	// JSON, useful when running workqd from a terminal.
	Development bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo}
}

// Logger wraps a zap.SugaredLogger with the field-pair calling
// convention the rest of this codebase uses: Info("message", "key",
// value, "key2", value2, ...).
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from the given config.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level.zapLevel())

	base, err := zcfg.Build()
	if err != nil {
		// Builder failures here are configuration bugs (bad encoder
		// settings), not runtime conditions; fall back to a no-op core
		// rather than panic mid-startup.
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)   { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)   { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any)  { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries, which callers should do once
// before process exit.
func (l *Logger) Sync() error { return l.sugar.Sync() }

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Default returns the process-wide default logger, creating it with
// DefaultConfig on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
