// Package logging provides the process-wide structured logger.
//
// All packages log through the free functions below so that callers never
// carry a logger handle. The backend is a zap SugaredLogger configured once
// at startup (or lazily with defaults on first use).
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

// InitFromEnv configures the global logger from environment variables:
//
//	CAPGATE_LOG_LEVEL:  debug | info | warn | error (default info)
//	CAPGATE_LOG_FORMAT: json | console (default console)
func InitFromEnv() (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	switch strings.ToLower(os.Getenv("CAPGATE_LOG_LEVEL")) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if strings.ToLower(os.Getenv("CAPGATE_LOG_FORMAT")) != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	sugared := base.Sugar()
	mu.Lock()
	logger = sugared
	mu.Unlock()
	return sugared, nil
}

// SetLogger replaces the global logger. Intended for tests.
func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Sync flushes buffered log entries.
func Sync() {
	if l := get(); l != nil {
		_ = l.Sync()
	}
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	// Lazy default so library users get output without explicit init.
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		base, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			base = zap.NewNop()
		}
		logger = base.Sugar()
	}
	return logger
}

// Debugf logs at debug level using fmt.Sprintf semantics.
func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Infof logs at info level using fmt.Sprintf semantics.
func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warnf logs at warn level using fmt.Sprintf semantics.
func Warnf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Errorf logs at error level using fmt.Sprintf semantics.
func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatalf logs at fatal level and exits the process.
func Fatalf(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}
