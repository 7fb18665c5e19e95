// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the argument path, the declared C type and the
// callback slot involved, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("copy_func", "input").
//		CType("const char*").
//		Detail("expected a byte buffer").
//		Build()
//
// Failures of the confined call itself are reported as a CallError holding
// the code, message and backtrace the host framework expects. A Raised value
// describes an exception caught inside the runtime; its Format method
// produces the backtrace text:
//
//	r := &errors.Raised{Class: "RuntimeError", Message: "boom", Frames: []string{"foo.rb:10"}}
//	r.Format() // "foo.rb:10: boom (RuntimeError)"
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
