// Package engine runs an OpenSync plugin compiled to WebAssembly.
//
// A Guest wraps one wazero runtime holding the plugin module, WASI
// preview1 and the osync host module. It implements confine.Runtime, so
// a confine.Worker boots it and every method after Boot runs on the
// worker's goroutine.
//
// # Calling convention
//
// Arguments are lowered from signature slots:
//
//	handle     i32        handle of a host object in the resource table
//	bool       i32        0 or 1
//	int        i64
//	userdata   i32        syncbridge.Ref, 0 for nil
//	buffer     i32, i32   pointer and length in guest memory
//
// Buffers are copied into memory obtained from cabi_realloc and released
// through cabi_free, when exported, after the call returns. Buffer results
// are an i64 packing ptr<<32|len; the bytes are copied out before Call
// returns and the guest keeps ownership of the memory.
//
// # Host module
//
// Guests import these from "osync":
//
//	raise(class, message)                     raise an exception
//	frame(text)                               push a backtrace frame for raise
//	init(owner)                               attach an owner, once
//	free(owner)                               clear an owner's entries
//	set_data(owner, ref) / get_data(owner)    user data, pinned while set
//	set_callback(owner, slot, export) -> 1    register a callback export
//	new_owner(parent, kind, name) -> owner    create a plugin, sink, format or converter
//	report(ctx, code, message)                report a sync context result
//	get_field(obj, name) -> buffer            read a named field, 0 if absent
//	set_field(obj, name, value)               write a named field
//	log(level, message)                       0 debug, 1 info, 2 warn, 3 error
//
// Strings are (ptr, len) pairs. Host functions fail by raising a guest
// exception, which the call surfaces as *errors.Raised.
//
// # Pins
//
// Values stored in the registry are pinned. When the guest exports
// osync_retain and osync_release, pin count transitions on syncbridge.Ref
// values are queued and delivered on the guest's goroutine before and
// after each call.
package engine
