// logger.go holds the package logger used before a client exists and as the
// default for clients that do not bring their own.

package temps

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu  sync.RWMutex
	pkgLogger = newDefaultLogger()
)

func newDefaultLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger replaces the package logger. Clients created afterwards inherit
// it unless ClientOptions.Logger overrides.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	pkgLogger = logger
}

func packageLogger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return pkgLogger
}

// uninitializedWarning is logged, once per offending call, whenever a capture
// or context operation runs with no active client. The exact text is stable
// so callers can assert on it.
const uninitializedWarning = "Error tracking client not initialized. Call Init() first."

func logUninitialized() {
	packageLogger().Warn(uninitializedWarning)
}
