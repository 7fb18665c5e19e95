package engine

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/syncbridge/errors"
)

const (
	traceMarker   = "wasm stack trace:"
	recoveredMark = " (recovered by wazero)"
	wasmErrPrefix = "wasm error: "
)

// Exception classes assigned to failures that do not come from osync.raise.
const (
	ClassTrap       = "Trap"
	ClassSystemExit = "SystemExit"
	ClassHostPanic  = "HostPanic"
)

// raised converts an error returned by a guest call into the exception
// that caused it. Frames pushed with osync.frame win over the wasm stack
// trace.
func (g *Guest) raised(err error) error {
	if err == nil {
		return nil
	}

	var r *errors.Raised
	if stderrors.As(err, &r) {
		if len(r.Frames) == 0 {
			r.Frames = traceFrames(err.Error())
		}
		return r
	}

	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return &errors.Raised{
			Class:   ClassSystemExit,
			Message: fmt.Sprintf("exit code %d", exit.ExitCode()),
		}
	}

	text := err.Error()
	head, _, _ := strings.Cut(text, "\n")
	frames := traceFrames(text)
	if st := g.top(); st != nil && len(st.frames) > 0 {
		frames = append(g.takeFrames(), frames...)
	}

	if msg, ok := strings.CutPrefix(head, wasmErrPrefix); ok {
		return &errors.Raised{Class: ClassTrap, Message: msg, Frames: frames}
	}
	if msg, ok := strings.CutSuffix(head, recoveredMark); ok {
		return &errors.Raised{Class: ClassHostPanic, Message: msg, Frames: frames}
	}
	return &errors.Raised{Class: ClassTrap, Message: head, Frames: frames}
}

// traceFrames extracts the frames wazero appends to call errors.
func traceFrames(text string) []string {
	_, trace, ok := strings.Cut(text, traceMarker)
	if !ok {
		return nil
	}
	var frames []string
	for _, line := range strings.Split(trace, "\n") {
		if !strings.HasPrefix(line, "\t") {
			if len(frames) > 0 {
				break
			}
			continue
		}
		if f := strings.TrimSpace(line); f != "" {
			frames = append(frames, f)
		}
	}
	return frames
}

// takeFrames returns and clears the frames pushed in the current call.
func (g *Guest) takeFrames() []string {
	st := g.top()
	if st == nil {
		return nil
	}
	frames := st.frames
	st.frames = nil
	return frames
}
