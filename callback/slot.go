package callback

import (
	"fmt"

	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/signature"
)

// OwnerKind is the kind of native object a callback is registered on.
type OwnerKind uint8

const (
	OwnerUnknown OwnerKind = iota
	OwnerPlugin
	OwnerSink
	OwnerFormat
	OwnerConverter
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerPlugin:
		return "plugin"
	case OwnerSink:
		return "objtype_sink"
	case OwnerFormat:
		return "objformat"
	case OwnerConverter:
		return "converter"
	default:
		return "unknown"
	}
}

// Native returns the native type name of the owner kind.
func (k OwnerKind) Native() string {
	switch k {
	case OwnerPlugin:
		return "OSyncPlugin"
	case OwnerSink:
		return "OSyncObjTypeSink"
	case OwnerFormat:
		return "OSyncObjFormat"
	case OwnerConverter:
		return "OSyncFormatConverter"
	default:
		return ""
	}
}

// Slot identifies one callback of one owner kind. The numeric value is the
// slot id guests pass to osync.set_callback.
type Slot uint16

const (
	SlotNone Slot = iota

	PluginInitialize
	PluginFinalize
	PluginDiscover

	SinkConnect
	SinkDisconnect
	SinkGetChanges
	SinkCommit
	SinkCommittedAll
	SinkRead
	SinkSyncDone
	SinkConnectDone

	FormatInitialize
	FormatFinalize
	FormatCompare
	FormatCopy
	FormatDuplicate
	FormatCreate
	FormatDestroy
	FormatPrint
	FormatRevision
	FormatMarshal
	FormatDemarshal
	FormatValidate

	ConverterConvert
	ConverterInitialize
	ConverterFinalize

	slotCount
)

// Lookup returns the slot with the given wire id.
func Lookup(id uint32) (Slot, bool) {
	if id == 0 || id >= uint32(slotCount) {
		return SlotNone, false
	}
	return Slot(id), true
}

// All returns every defined slot in id order.
func All() []Slot {
	out := make([]Slot, 0, slotCount-1)
	for s := Slot(1); s < slotCount; s++ {
		out = append(out, s)
	}
	return out
}

// Slots returns the slots of one owner kind in id order.
func Slots(kind OwnerKind) []Slot {
	var out []Slot
	for _, s := range All() {
		if s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

// Valid reports whether s is a defined slot.
func (s Slot) Valid() bool {
	return s > SlotNone && s < slotCount
}

func (s Slot) spec() *Spec {
	if !s.Valid() {
		return &invalid
	}
	return &specs[s]
}

// Kind returns the owner kind the slot belongs to.
func (s Slot) Kind() OwnerKind { return s.spec().Owner }

// Name returns the callback name, e.g. "connect".
func (s Slot) Name() string { return s.spec().Name }

// Key returns the registry key the callback is stored under, e.g. "connect_func".
func (s Slot) Key() string {
	if !s.Valid() {
		return ""
	}
	return s.spec().Name + "_func"
}

// Signature returns the argument table of the callback.
func (s Slot) Signature() *signature.Table { return s.spec().Table }

// Result returns the result contract of the callback.
func (s Slot) Result() Contract { return s.spec().Result }

// Required reports whether dispatching to an unregistered slot is an error.
// Unregistered optional slots are no-ops returning the contract's default.
func (s Slot) Required() bool { return s.spec().Required }

// Code returns the error code reported when the callback fails.
func (s Slot) Code() errors.Code { return s.spec().Code }

// Spec returns the full declaration of the slot.
func (s Slot) Spec() Spec { return *s.spec() }

func (s Slot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Slot(%d)", uint16(s))
	}
	return s.Kind().String() + "." + s.Name()
}
