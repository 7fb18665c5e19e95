package confine

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/syncbridge/errors"
)

// Runtime is a confined runtime: once booted it may only be entered from
// the goroutine that booted it.
type Runtime interface {
	Boot(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// State is the lifecycle state of a Worker.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats is a snapshot of a worker's counters.
type Stats struct {
	State     State
	Served    uint64
	Reentrant uint64
	Abandoned uint64
}

// Worker owns the one goroutine allowed to enter a confined runtime and
// the single-slot channel through which every other goroutine reaches it.
type Worker struct {
	rt   Runtime
	opts options
	log  *zap.Logger

	mu      sync.Mutex
	started bool
	state   atomic.Int32
	bootErr error

	ready    chan struct{}
	exited   chan struct{}
	requests chan *request
	quit     chan chan error
	// slot holds a token while a caller owns the mailbox.
	slot chan struct{}

	// tid is the worker thread's id while run is executing, 0 otherwise.
	tid atomic.Int64

	served    atomic.Uint64
	reentrant atomic.Uint64
	abandoned atomic.Uint64
}

// New creates a worker for rt. The worker goroutine is not started until
// EnsureStarted or the first Invoke. A nil rt boots nothing.
func New(rt Runtime, opts ...Option) *Worker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	w := &Worker{
		rt:       rt,
		opts:     o,
		log:      o.logger,
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		requests: make(chan *request),
		quit:     make(chan chan error),
		slot:     make(chan struct{}, 1),
	}
	if w.log == nil {
		w.log = Logger()
	}
	if w.opts.fatal == nil {
		w.opts.fatal = defaultFatal(w.log)
	}
	return w
}

// defaultFatal logs through log and exits. A logger that drops fatal
// entries, like the no-op default, is replaced by one writing to stderr.
func defaultFatal(log *zap.Logger) func(msg string, err error) {
	return func(msg string, err error) {
		if !log.Core().Enabled(zapcore.FatalLevel) {
			log = stderrLogger()
		}
		log.Fatal(msg, zap.Error(err))
	}
}

func stderrLogger() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	return zap.New(core).Named("confine")
}

// EnsureStarted starts the worker goroutine if it has not been started.
// It is safe to call from any goroutine and never waits for readiness.
func (w *Worker) EnsureStarted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.state.Store(int32(StateStarting))
	raiseStackLimit(w.opts.stackSize)
	go w.run()
}

// Ready is closed once the runtime has booted or failed to boot.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Stats returns the worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		State:     w.State(),
		Served:    w.served.Load(),
		Reentrant: w.reentrant.Load(),
		Abandoned: w.abandoned.Load(),
	}
}

// Invoke runs c.Target on the worker goroutine and blocks until it has
// returned. Calls from different goroutines are serialized in the order
// they claim the mailbox. A call made on the worker's own thread, from
// inside a running target, runs inline whatever its context. Goroutines
// started by a target are not the worker: they queue like any caller.
//
// Invoke resets c.Result and c.Err, so a Call may be reused.
// On failure the returned error is c.Err. If ctx ends before the worker
// picks the call up, nothing runs; if it ends while the call runs, Invoke
// returns a timeout and the mailbox stays claimed until the call finishes.
func (w *Worker) Invoke(ctx context.Context, c *Call) (Status, error) {
	if c == nil || c.Target == nil {
		return StatusFailed, errors.InvalidInput(errors.PhaseCall, "call has no target")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Result, c.Err = nil, nil

	if w.OnWorker() {
		if _, ok := WorkerFrom(ctx); !ok {
			ctx = context.WithValue(ctx, workerKey{}, w)
		}
		w.reentrant.Add(1)
		w.execute(ctx, c)
		return c.Status(), callErr(c)
	}

	if owner, ok := WorkerFrom(ctx); ok && owner == w {
		w.log.Debug("worker context used off the worker thread, queueing",
			zap.Stringer("id", c.ID),
			zap.String("name", c.Name))
	}

	w.EnsureStarted()
	if w.opts.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.opts.timeout)
			defer cancel()
		}
	}

	if err := w.acquire(ctx, c.Name); err != nil {
		c.fail(err)
		return c.Status(), callErr(c)
	}
	if err := w.awaitRunning(ctx); err != nil {
		w.release()
		c.fail(err)
		return c.Status(), callErr(c)
	}

	req := &request{ctx: ctx, call: *c, done: make(chan struct{})}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		w.release()
		c.fail(errors.Timeout(errors.PhaseCall, c.Name, ctx.Err()))
		return c.Status(), callErr(c)
	}

	select {
	case <-req.done:
		w.release()
		*c = req.call
	case <-ctx.Done():
		w.abandoned.Add(1)
		w.log.Warn("call abandoned while running",
			zap.Stringer("id", c.ID),
			zap.String("name", c.Name),
			zap.Error(ctx.Err()))
		go func() {
			<-req.done
			w.release()
		}()
		c.fail(errors.Timeout(errors.PhaseCall, c.Name, ctx.Err()))
	}
	return c.Status(), callErr(c)
}

// Do runs fn on the worker goroutine and returns its result.
func (w *Worker) Do(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	c := &Call{
		Name: name,
		Target: func(ctx context.Context, c *Call) error {
			v, err := fn(ctx)
			c.Result = v
			return err
		},
	}
	if _, err := w.Invoke(ctx, c); err != nil {
		return nil, err
	}
	return c.Result, nil
}

// Shutdown tears the runtime down on the worker goroutine and stops it.
// It waits for the call in flight, if any. Invoke fails with a closed
// error afterwards.
func (w *Worker) Shutdown(ctx context.Context) error {
	if w.OnWorker() {
		return errors.InvalidInput(errors.PhaseCall, "cannot shut down the worker from inside a call")
	}

	w.mu.Lock()
	if !w.started {
		w.started = true
		w.state.Store(int32(StateStopped))
		close(w.ready)
		close(w.exited)
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.acquire(ctx, "shutdown"); err != nil {
		return err
	}
	defer w.release()

	select {
	case <-w.ready:
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseBoot, "worker start", ctx.Err())
	}
	if w.State() != StateRunning {
		return nil
	}

	reply := make(chan error, 1)
	select {
	case w.quit <- reply:
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseCall, "shutdown", ctx.Err())
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseCall, "shutdown", ctx.Err())
	}
}

func (w *Worker) acquire(ctx context.Context, name string) error {
	select {
	case w.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseCall, name, ctx.Err())
	}
}

func (w *Worker) release() {
	<-w.slot
}

func (w *Worker) awaitRunning(ctx context.Context) error {
	select {
	case <-w.ready:
	case <-ctx.Done():
		return errors.Timeout(errors.PhaseBoot, "worker start", ctx.Err())
	}
	switch w.State() {
	case StateRunning:
		return nil
	case StateFailed:
		return errors.Call(errors.CodeInitialization, errors.Instantiation(w.bootErr),
			"Failed to start the confined runtime!")
	default:
		return errors.Closed(errors.PhaseCall, "worker")
	}
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.exited)

	w.tid.Store(threadID())
	defer w.tid.Store(0)

	base := context.WithValue(context.Background(), workerKey{}, w)

	start := time.Now()
	if err := w.boot(base); err != nil {
		w.opts.fatal("confined runtime failed to boot", err)
		w.bootErr = err
		w.state.Store(int32(StateFailed))
		close(w.ready)
		return
	}
	w.state.Store(int32(StateRunning))
	close(w.ready)
	w.log.Debug("worker running", zap.Duration("boot", time.Since(start)))

	for {
		select {
		case req := <-w.requests:
			w.serve(req)
		case reply := <-w.quit:
			var err error
			if w.rt != nil {
				err = w.rt.Shutdown(base)
			}
			w.state.Store(int32(StateStopped))
			w.log.Debug("worker stopped", zap.Uint64("served", w.served.Load()), zap.Error(err))
			reply <- err
			return
		}
	}
}

func (w *Worker) boot(ctx context.Context) (err error) {
	if w.rt == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return w.rt.Boot(ctx)
}

func (w *Worker) serve(req *request) {
	start := time.Now()
	ctx := context.WithValue(req.ctx, workerKey{}, w)
	w.execute(ctx, &req.call)
	w.served.Add(1)
	w.log.Debug("call served",
		zap.Stringer("id", req.call.ID),
		zap.String("name", req.call.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Stringer("status", req.call.Status()))
	close(req.done)
}

// execute runs the target, converting a returned error or a panic into
// the call's structured failure.
func (w *Worker) execute(ctx context.Context, c *Call) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(panicError(r))
		}
	}()
	c.fail(c.Target(ctx, c))
}

func callErr(c *Call) error {
	if c.Err == nil {
		return nil
	}
	return c.Err
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		var raised *errors.Raised
		if stderrors.As(err, &raised) {
			return err
		}
	}
	return &errors.Raised{
		Class:   "HostPanic",
		Message: fmt.Sprint(r),
		Frames:  goFrames(4),
	}
}

func goFrames(skip int) []string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			out = append(out, fmt.Sprintf("%s:%d:in `%s'", f.File, f.Line, f.Function))
		}
		if !more {
			break
		}
	}
	return out
}

func raiseStackLimit(n int) {
	if n <= 0 {
		return
	}
	if prev := debug.SetMaxStack(n); prev > n {
		debug.SetMaxStack(prev)
	}
}
