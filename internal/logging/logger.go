// Package logging provides structured, leveled logging for VMAccel,
// wrapping go.uber.org/zap behind the same Default()/SetDefault() shape
// used throughout the rest of the module so call sites never import zap
// directly.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with level support and a small
// args-as-key/value convenience API.
type Logger struct {
	sugar *zap.SugaredLogger
	level zapcore.Level
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
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
	Level LogLevel
	// Development selects zap's human-readable console encoder instead
	// of the production JSON encoder.
	Development bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo}
}

// NewLogger creates a new logger from config (nil uses DefaultConfig).
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	level := config.Level.zapLevel()

	var zcfg zap.Config
	if config.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap.Config.Build only fails on an unopenable sink; fall back
		// to a no-op logger, which discards every entry.
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar(), level: level}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger. Tests use this to install a
// buffered/observed logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func toZapFields(args []any) []any {
	return args
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, toZapFields(args)...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, toZapFields(args)...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, toZapFields(args)...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, toZapFields(args)...) }

// Printf-style logging.
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Error(fmt.Sprintf(format, args...)) }

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Global convenience functions.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
