package confine

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/signature"
)

// Status is the outcome flag of an invoke: zero on success, nonzero when
// the call's Err holds the failure.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "failed"
}

// Target is the unit of work executed on the worker goroutine. Invoke
// calls made from inside a target, on the worker's thread, run inline.
type Target func(ctx context.Context, c *Call) error

// Call describes one request to the confined runtime.
//
// The worker runs the request on a private copy and the copy is published
// back into the caller's Call when Invoke returns. A call abandoned by a
// timeout is never published.
type Call struct {
	// ID correlates log lines of one call; assigned by Invoke when zero.
	ID uuid.UUID
	// Name is the callback name used in failure messages.
	Name   string
	Target Target
	In     []signature.Slot
	Out    []signature.Slot
	// Code classifies failures of this call; CodeNone means CodeGeneric.
	Code errors.Code
	// Result is written only by the worker.
	Result any
	Err    *errors.CallError
}

// Status reports whether the call failed.
func (c *Call) Status() Status {
	if c.Err != nil {
		return StatusFailed
	}
	return StatusOK
}

func (c *Call) code() errors.Code {
	if c.Code == errors.CodeNone {
		return errors.CodeGeneric
	}
	return c.Code
}

// fail records err as the call's failure unless it already failed.
func (c *Call) fail(err error) {
	if c.Err != nil || err == nil {
		return
	}
	c.Err = errors.AsCall(err, c.code(), "Failed to call %s!", c.Name)
}

type request struct {
	ctx  context.Context
	call Call
	done chan struct{}
}

type workerKey struct{}

// OnWorker reports whether the caller runs on w's worker thread.
func (w *Worker) OnWorker() bool {
	tid := w.tid.Load()
	return tid != 0 && threadID() == tid
}

// WorkerFrom returns the worker that handed out ctx to a running call, if
// any. The context is only a hint: code holding it may have left the
// worker's thread.
func WorkerFrom(ctx context.Context) (*Worker, bool) {
	w, ok := ctx.Value(workerKey{}).(*Worker)
	return w, ok
}
