// Package confine runs a non-reentrant runtime on one dedicated goroutine
// and lets any other goroutine call into it synchronously.
//
// # Lifecycle
//
// A Worker is created idle. EnsureStarted (or the first Invoke) spawns the
// worker goroutine, which locks itself to its OS thread, raises the
// goroutine stack ceiling and boots the Runtime. Ready is closed when boot
// finishes. A boot failure goes to the fatal handler, which terminates the
// process unless replaced with WithFatal.
//
//	idle -> starting -> running -> stopped
//	                 \-> failed
//
// Shutdown is the only way to stop a running worker and the runtime's
// Shutdown runs on the worker goroutine.
//
// # Calls
//
// Invoke claims the single mailbox slot, waits for the worker to be
// running, posts the call and waits for it to complete. Only one call is
// ever in flight; claims are served in arrival order.
//
// The worker records its OS thread id when it starts. An Invoke made on
// that thread (for example from a host function the runtime calls back
// into) executes inline instead of deadlocking on the slot, whatever
// context it carries. Goroutines a Target starts are other threads: their
// calls queue for the slot like everyone else's, so a Target that waits
// for them deadlocks until its deadline. The context passed to a Target
// is marked as well; WorkerFrom reads the mark, which is only a hint.
//
// A Target that returns an error or panics fails the call with an
// errors.CallError whose message is "Failed to call <name>!" and whose
// backtrace is the formatted errors.Raised, if one caused it.
//
// # Timeouts
//
// Invoke honours ctx. WithTimeout applies a default deadline to contexts
// that carry none. An abandoned call keeps the slot until the worker
// finishes it, so a timeout never lets a second call run concurrently.
package confine
