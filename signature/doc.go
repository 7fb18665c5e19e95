// Package signature binds native callback arguments to the guest's
// calling convention.
//
// Each callback shape is described once, either by its C prototype plus the
// names of the parameters that travel to the guest:
//
//	t := signature.MustBind(
//	    "osync_bool (OSyncObjFormat *format, const char *data, unsigned int size, void *user_data, OSyncError **error)",
//	    "format, data, user_data", "")
//
// or by an explicit declaration:
//
//	t := signature.Declare("osync_bool", []signature.Param{
//	    {Name: "format", Type: "OSyncObjFormat*"},
//	    {Name: "data", Type: "const char*", Size: "size"},
//	    {Name: "user_data", Type: "void*"},
//	}, nil)
//
// Both produce the same Table. Prototype text is only read while building
// the table; per call, Table.Bind clones the slots and attaches values, and
// Lower turns them into flat guest parameters:
//
//	pointer to a known native type  -> handle (i32, 0 for nil)
//	osync_bool                      -> 0 or 1
//	byte pointer with a length      -> (ptr, len) copied into guest memory
//	void* user data                 -> guest Ref
//	anything else                   -> 0
//
// Name lookup in prototype text matches whole identifiers only, so a
// parameter named "pluginInfo" is never taken for "info".
package signature
