// Package resource exposes host objects to the guest as integer handles.
//
// Native arguments such as the plugin, sink, change or context pointers of
// a callback cannot cross into guest memory. Instead the bridge inserts the
// host object into a Table and passes the resulting Handle, an i32, to the
// guest. The guest hands the same number back whenever it calls an entry
// point that acts on that object.
//
// # Identity
//
// Comparable host objects keep one handle for as long as they are
// referenced: inserting the same object twice yields the same handle and a
// second reference, which Release gives back.
//
//	table := resource.NewTable()
//	h, _ := table.Insert("OSyncObjTypeSink", sink)
//	h2, _ := table.Insert("OSyncObjTypeSink", sink) // h2 == h
//	table.Release(h)                               // still live
//	table.Release(h)                               // freed
//
// Handle 0 is never allocated and stands for a null native pointer.
//
// # Observers
//
// Observers receive EventCreated, EventRetained and EventDropped
// notifications outside of the table lock.
package resource
