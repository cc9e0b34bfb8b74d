package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{sugar: zap.New(core).Sugar(), level: level}, logs
}

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo.zapLevel() {
		t.Errorf("default level = %v, want info", logger.level)
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warning message")
	logger.Error("error message")

	if got := logs.Len(); got != 4 {
		t.Fatalf("got %d log entries, want 4", got)
	}
	entries := logs.All()
	if entries[0].Message != "debug message" {
		t.Errorf("entries[0].Message = %q", entries[0].Message)
	}
	if v, ok := entries[0].ContextMap()["key"]; !ok || v != "value" {
		t.Errorf("expected key=value field on debug entry, got %v", entries[0].ContextMap())
	}
	if entries[3].Level != zapcore.ErrorLevel {
		t.Errorf("entries[3].Level = %v, want error", entries[3].Level)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.WarnLevel)

	logger.Debug("should be filtered")
	logger.Info("should be filtered")
	logger.Warn("should appear")

	if got := logs.Len(); got != 1 {
		t.Fatalf("got %d log entries, want 1 (debug/info below warn threshold)", got)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)
	prev := Default()
	SetDefault(logger)
	defer SetDefault(prev)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	if got := logs.Len(); got != 4 {
		t.Fatalf("got %d log entries via globals, want 4", got)
	}
}
