// Package registry stashes confined-runtime values against native objects.
//
// Native owners (plugins, sinks, object formats, converters) cannot grow a
// field for every value the runtime wants to keep with them, so the Registry
// maps an opaque Owner key plus a symbolic name ("connect_func", "data") to
// a value, and pins that value so the runtime's collector cannot reclaim it
// while native code still refers to it.
//
// # Entry Lifecycle
//
// Each (owner, key) entry moves between two states only:
//
//	absent --Set(v)--> pinned --Set(nil) or Clear--> absent
//
// Setting a new value over a pinned one unpins the old value first, so
// repeated replacement never accumulates pins:
//
//	pins := registry.NewPinTable()
//	reg := registry.New(pins)
//	owner := registry.NewOwner()
//	for _, fn := range callbacks {
//	    reg.Set(owner, "read_func", fn)
//	}
//	pins.Live() // 1
//
// # Concurrency
//
// The registry has a lock of its own, independent of the call channel, so
// native teardown paths may Clear owners while the worker is dispatching.
// Pin and Unpin run under the registry lock; observers run after it is
// released.
package registry
