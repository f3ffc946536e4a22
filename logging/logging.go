package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a sugared zap logger to the printf style sso.Logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production (JSON) or development (console)
// logger at the given level
func NewZapLogger(level string, development bool) (*ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return FromZap(logger), nil
}

// FromZap wraps an existing logger
func FromZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// Named returns a child logger scoped to name
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l *ZapLogger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapLogger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
