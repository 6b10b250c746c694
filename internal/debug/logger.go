// Package debug holds the process-wide zap logger.
package debug

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	logger  = zap.NewNop()
	enabled bool
)

// Configure builds the stderr logger. With enable false only warnings and
// errors are written; json selects the JSON encoder over the console one.
func Configure(enable, json bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if json {
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if enable {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	old := logger
	logger, enabled = l, enable
	_ = old.Sync()
	return nil
}

// Set replaces the logger. Tests use it with zaptest or observer loggers.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	enabled = l.Core().Enabled(zapcore.DebugLevel)
}

// Enabled reports whether debug entries are written.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// L returns the current logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger for a component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}
