// Package callback declares every callback a guest plugin can register on
// a native object.
//
// Each owner kind has a fixed set of slots:
//
//	plugin        initialize finalize discover
//	objtype_sink  connect disconnect get_changes commit committed_all
//	              read sync_done connect_done
//	objformat     initialize finalize compare copy duplicate create
//	              destroy print revision marshal demarshal validate
//	converter     convert initialize finalize
//
// A Slot carries its argument table, result contract, the error code used
// when it fails and whether it must be registered before dispatch. The
// registry stores the registered guest export under Slot.Key.
package callback
