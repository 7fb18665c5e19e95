package bridge

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/confine"
	"github.com/wippyai/syncbridge/engine"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/signature"
)

// APIVersion is the plugin API version reported by get_version.
const APIVersion = 1

// Version returns APIVersion.
func Version() int { return APIVersion }

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger *zap.Logger
	worker []confine.Option
}

// WithLogger sets the bridge logger; the package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWorker passes options to the confinement worker.
func WithWorker(opts ...confine.Option) Option {
	return func(o *options) { o.worker = append(o.worker, opts...) }
}

// Bridge dispatches sync framework callbacks into a confined guest.
type Bridge struct {
	guest  *engine.Guest
	worker *confine.Worker
	reg    *registry.Registry
	log    *zap.Logger
}

// New wraps guest in a confinement worker. The guest boots on the worker
// goroutine when the worker starts. A nil guest yields a bridge that only
// runs Go targets.
func New(guest *engine.Guest, opts ...Option) *Bridge {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	b := &Bridge{guest: guest, log: o.logger}
	if b.log == nil {
		b.log = Logger()
	}

	var rt confine.Runtime
	if guest != nil {
		rt = guest
		b.reg = guest.Registry()
	} else {
		b.reg = registry.New(nil)
	}
	b.worker = confine.New(rt, append([]confine.Option{confine.WithLogger(b.log)}, o.worker...)...)
	return b
}

// Open loads a guest plugin module and wraps it in a bridge.
func Open(wasm []byte, cfg *engine.Config, opts ...Option) (*Bridge, error) {
	g, err := engine.New(wasm, cfg)
	if err != nil {
		return nil, err
	}
	return New(g, opts...), nil
}

// EnsureWorkerStarted starts the worker once; later calls return
// immediately.
func (b *Bridge) EnsureWorkerStarted() { b.worker.EnsureStarted() }

// Invoke runs c on the worker goroutine.
func (b *Bridge) Invoke(ctx context.Context, c *confine.Call) (confine.Status, error) {
	return b.worker.Invoke(ctx, c)
}

// Registry returns the callback and user data registry.
func (b *Bridge) Registry() *registry.Registry { return b.reg }

// Worker returns the confinement worker.
func (b *Bridge) Worker() *confine.Worker { return b.worker }

// Guest returns the confined guest, or nil.
func (b *Bridge) Guest() *engine.Guest { return b.guest }

// Shutdown stops the worker and closes the guest.
func (b *Bridge) Shutdown(ctx context.Context) error { return b.worker.Shutdown(ctx) }

// Free clears owner from the registry and delivers the resulting pin
// releases to the guest.
func (b *Bridge) Free(ctx context.Context, owner registry.Owner) error {
	if r, ok := Lookup(owner); ok {
		b.log.Debug("freeing owner", zap.Stringer("owner", r))
	}
	b.reg.Clear(owner)
	if b.guest == nil {
		return nil
	}
	_, err := b.worker.Do(ctx, "free", func(ctx context.Context) (any, error) {
		b.guest.FlushPins(ctx)
		return nil, nil
	})
	return err
}

// Exec calls a guest export on the worker.
func (b *Bridge) Exec(ctx context.Context, export string, args []signature.Slot, results ...signature.Kind) ([]any, error) {
	if b.guest == nil {
		return nil, errors.NotInitialized(errors.PhaseCall, "guest")
	}
	v, err := b.worker.Do(ctx, export, func(ctx context.Context) (any, error) {
		return b.guest.Call(ctx, export, args, results...)
	})
	if err != nil {
		return nil, err
	}
	out, _ := v.([]any)
	return out, nil
}

func (b *Bridge) data(owner registry.Owner) any {
	return b.reg.Get(owner, callback.DataKey)
}

// Dispatch invokes the callback registered for slot. args bind to the
// slot's declared inputs in order.
func (b *Bridge) Dispatch(ctx context.Context, owner registry.Owner, slot callback.Slot, args ...any) (any, error) {
	spec := slot.Spec()
	in, err := spec.Table.Bind(args...)
	if err != nil {
		return nil, err
	}

	c := &confine.Call{
		Name: slot.String(),
		Code: spec.Code,
		In:   in,
		Out:  spec.Table.Outputs(),
		Target: func(ctx context.Context, c *confine.Call) error {
			fn, ok := b.reg.Get(owner, slot.Key()).(engine.Func)
			if !ok {
				if spec.Required {
					return errors.MissingCallback(spec.Owner.String(), spec.Name)
				}
				c.Result = spec.Default
				return nil
			}
			if b.guest == nil {
				return errors.NotInitialized(errors.PhaseCall, "guest")
			}

			raw, err := b.guest.Call(ctx, string(fn), c.In, spec.Result.Kinds()...)
			if err != nil {
				var e *errors.Error
				if stderrors.As(err, &e) && e.Phase == errors.PhaseResult && spec.Mismatch != "" {
					return errors.Call(spec.Code, err, spec.Mismatch)
				}
				return err
			}
			v, err := shape(spec, raw)
			if err != nil {
				return err
			}
			c.Result = v
			return nil
		},
	}
	if _, err := b.worker.Invoke(ctx, c); err != nil {
		b.log.Debug("callback failed",
			zap.Stringer("id", c.ID),
			zap.Stringer("slot", slot),
			zap.Stringer("owner", owner),
			zap.Error(err))
		return nil, err
	}
	return c.Result, nil
}

// shape checks decoded guest results against the slot's contract.
func shape(spec callback.Spec, raw []any) (any, error) {
	mismatch := func() error {
		return errors.Call(spec.Code, nil, spec.Mismatch)
	}
	switch spec.Result {
	case callback.ResultVoid:
		return nil, nil
	case callback.ResultDuplicate:
		uid, ok1 := raw[0].([]byte)
		out, ok2 := raw[1].([]byte)
		dirty, ok3 := raw[2].(bool)
		if !ok1 || !ok2 || !ok3 {
			return nil, mismatch()
		}
		return callback.Duplicate{NewUID: string(uid), Output: out, Dirty: dirty}, nil
	case callback.ResultData:
		ref, ok := raw[0].(syncbridge.Ref)
		if !ok {
			return nil, mismatch()
		}
		if ref == 0 {
			return nil, nil
		}
		return ref, nil
	default:
		return raw[0], nil
	}
}

var (
	defaultMu     sync.Mutex
	defaultBridge *Bridge
)

// Default returns the process-wide bridge. Until SetDefault installs one
// it is a bridge without a guest.
func Default() *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge == nil {
		defaultBridge = New(nil)
	}
	return defaultBridge
}

// SetDefault replaces the process-wide bridge and returns the previous one.
func SetDefault(b *Bridge) *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultBridge
	defaultBridge = b
	return prev
}

// EnsureWorkerStarted starts the process-wide worker.
func EnsureWorkerStarted() { Default().EnsureWorkerStarted() }

// Invoke runs c on the process-wide worker.
func Invoke(ctx context.Context, c *confine.Call) (confine.Status, error) {
	return Default().Invoke(ctx, c)
}
