package engine

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the engine's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger sets the engine's logger. Call before first use.
func SetLogger(l *zap.Logger) {
	logger = l
}

// guestLogger is the logger osync.log writes to.
func guestLogger(name string) *zap.Logger {
	return Logger().Named("guest").With(zap.String("module", name))
}
