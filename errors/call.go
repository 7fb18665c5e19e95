package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the error type reported to the host framework for a failed call.
type Code int

const (
	CodeNone Code = iota
	CodeGeneric
	CodeInitialization
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CodeGeneric:
		return "GENERIC"
	case CodeInitialization:
		return "INITIALIZATION"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Raised is an exception raised inside the confined runtime and caught at
// the worker boundary.
type Raised struct {
	Class   string
	Message string
	Frames  []string
}

// Error implements the error interface
func (r *Raised) Error() string {
	return r.Format()
}

// Format renders the backtrace text handed to the host: the first line is
// "<topFrame>: <message> (<class>)", the remaining frames follow one per line.
func (r *Raised) Format() string {
	var b strings.Builder
	if len(r.Frames) > 0 {
		b.WriteString(r.Frames[0])
		b.WriteString(": ")
	}
	b.WriteString(r.Message)
	if r.Class != "" {
		b.WriteString(" (")
		b.WriteString(r.Class)
		b.WriteByte(')')
	}
	for _, f := range r.Frames[min(1, len(r.Frames)):] {
		b.WriteByte('\n')
		b.WriteString(f)
	}
	return b.String()
}

// CallError is the {code, message, backtrace} triple produced when a call
// into the confined runtime fails.
type CallError struct {
	Cause     error
	Message   string
	Backtrace string
	Code      Code
}

// Error implements the error interface
func (e *CallError) Error() string {
	if e.Backtrace == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Backtrace
	}
	return e.Message + "\n" + e.Backtrace
}

// Unwrap returns the underlying error
func (e *CallError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CallError with the same code.
// A target with CodeNone matches any CallError.
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	if !ok {
		return false
	}
	return t.Code == CodeNone || t.Code == e.Code
}

// Call builds a CallError. The backtrace is taken from a Raised found in
// the cause chain, or from the cause's text otherwise.
func Call(code Code, cause error, msg string, args ...any) *CallError {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	ce := &CallError{Code: code, Message: msg, Cause: cause}
	var r *Raised
	switch {
	case errors.As(cause, &r):
		ce.Backtrace = r.Format()
	case cause != nil:
		ce.Backtrace = cause.Error()
	}
	return ce
}

// AsCall returns err as a CallError, wrapping it with code when it is not
// one already.
func AsCall(err error, code Code, msg string, args ...any) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return Call(code, err, msg, args...)
}
