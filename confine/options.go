package confine

import (
	"time"

	"go.uber.org/zap"
)

// DefaultStackSize is the minimum goroutine stack ceiling the worker
// requests before booting the runtime. It is below the Go default on
// 64-bit platforms, so by default the request changes nothing.
const DefaultStackSize = 128 << 20

// Option configures a Worker.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	fatal     func(msg string, err error)
	stackSize int
	timeout   time.Duration
}

func defaultOptions() options {
	return options{
		stackSize: DefaultStackSize,
	}
}

// WithLogger sets the worker's logger; the package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStackSize raises the goroutine stack ceiling to at least n bytes
// when the worker starts. The ceiling is debug.SetMaxStack, which is
// process-wide and already 1 GiB by default on 64-bit platforms; the
// option only matters where it was lowered or on 32-bit targets (250 MB
// default). The ceiling is never lowered.
func WithStackSize(n int) Option {
	return func(o *options) { o.stackSize = n }
}

// WithFatal replaces the handler invoked when the runtime cannot boot.
// The default logs at fatal level and terminates the process, writing to
// stderr when the worker's logger would drop the entry. If fn
// returns, the worker is marked failed and every call reports the boot
// error.
func WithFatal(fn func(msg string, err error)) Option {
	return func(o *options) { o.fatal = fn }
}

// WithTimeout bounds every Invoke whose context carries no deadline.
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}
