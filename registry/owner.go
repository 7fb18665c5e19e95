package registry

import (
	"fmt"
	"unsafe"

	"go.jpap.org/mapper"
)

// Owner is an opaque key identifying a native object (plugin, sink, object
// format, converter) that values are stashed against.
type Owner struct {
	key mapper.Key
}

// owners binds synthetic owners to the host record describing them.
var owners mapper.Mapper

// OwnerFromPtr derives an Owner from a native object pointer. The pointer
// must be at least two-byte aligned; pointers to movable Go memory must not
// be used here.
func OwnerFromPtr(ptr unsafe.Pointer) Owner {
	return Owner{mapper.KeyFromPtr(ptr)}
}

// OwnerFromHandle converts a value previously returned by Handle back to an Owner.
func OwnerFromHandle(handle uintptr) Owner {
	return Owner{mapper.KeyFromHandle(handle)}
}

// NewOwner allocates a fresh synthetic Owner for host objects that have
// no stable native address. It starts out bound to nil.
func NewOwner() Owner {
	return Owner{owners.MapValue(nil)}
}

// Bind associates v with o, replacing any earlier binding. Object returns it.
func (o Owner) Bind(v any) {
	owners.MapPair(o.key, v)
}

// Object returns the value bound to o.
func (o Owner) Object() (v any, ok bool) {
	if o.IsZero() {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	return owners.Get(o.key), true
}

// Release drops the binding of o. The key itself stays usable with a Registry.
func (o Owner) Release() {
	owners.Delete(o.key)
}

// Handle returns the pointer-sized value behind the Owner. It is not
// necessarily a valid address.
func (o Owner) Handle() uintptr {
	return o.key.Handle()
}

// IsZero reports whether o is the zero Owner.
func (o Owner) IsZero() bool {
	return o.key.Handle() == 0
}

// String names o by its bound value when that is a fmt.Stringer.
func (o Owner) String() string {
	if v, ok := o.Object(); ok {
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
	}
	return fmt.Sprintf("owner(0x%x)", o.key.Handle())
}
