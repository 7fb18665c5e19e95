package signature

import (
	"strings"

	"go.bytecodealliance.org/wit"
)

// Kind selects the marshaling rule of an argument.
type Kind uint8

const (
	// KindUnknown has no rule and is passed to the guest as nil.
	KindUnknown Kind = iota
	// KindHandle is a pointer to a known native type, passed as a handle.
	KindHandle
	// KindBool is the host boolean, passed as 0 or 1.
	KindBool
	// KindBuffer is a byte pointer with an explicit length parameter.
	KindBuffer
	// KindString is a NUL-terminated byte pointer.
	KindString
	// KindInt is an integer scalar.
	KindInt
	// KindUserData is an opaque user pointer carrying a guest reference.
	KindUserData
	// KindError is the error out-pointer; it is filled by the bridge.
	KindError
	// KindOutBuffer receives a byte buffer.
	KindOutBuffer
	// KindOutSize receives the length of an out buffer.
	KindOutSize
	// KindOutBool receives a boolean.
	KindOutBool
)

func (k Kind) String() string {
	switch k {
	case KindHandle:
		return "handle"
	case KindBool:
		return "bool"
	case KindBuffer:
		return "buffer"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUserData:
		return "userdata"
	case KindError:
		return "error"
	case KindOutBuffer:
		return "out-buffer"
	case KindOutSize:
		return "out-size"
	case KindOutBool:
		return "out-bool"
	default:
		return "unknown"
	}
}

// ABI returns the guest-side WIT types an argument of this kind lowers to.
// Kinds that never reach the guest return nil.
func (k Kind) ABI() []wit.Type {
	switch k {
	case KindHandle, KindUserData, KindUnknown:
		return []wit.Type{wit.U32{}}
	case KindBool:
		return []wit.Type{wit.Bool{}}
	case KindBuffer, KindString:
		return []wit.Type{wit.String{}}
	case KindInt:
		return []wit.Type{wit.S64{}}
	default:
		return nil
	}
}

// Passed reports whether arguments of this kind are handed to the guest.
func (k Kind) Passed() bool {
	return k.ABI() != nil
}

// Rules maps declared C types to marshaling kinds.
type Rules struct {
	exact  map[string]Kind
	native map[string]struct{}
}

// NewRules returns the rule set for the sync framework's callback types.
func NewRules() *Rules {
	r := &Rules{
		exact: map[string]Kind{
			"osync_bool":         KindBool,
			"char*":              KindBuffer,
			"const char*":        KindBuffer,
			"int":                KindInt,
			"unsigned int":       KindInt,
			"long":               KindInt,
			"time_t":             KindInt,
			"OSyncConvCmpResult": KindInt,
			"void*":              KindUserData,
			"OSyncError**":       KindError,
			"char**":             KindOutBuffer,
			"unsigned int*":      KindOutSize,
			"osync_bool*":        KindOutBool,
		},
		native: make(map[string]struct{}),
	}
	return r.Native(
		"OSyncPlugin", "OSyncPluginInfo", "OSyncPluginEnv", "OSyncFormatEnv",
		"OSyncObjFormat", "OSyncObjTypeSink", "OSyncContext", "OSyncChange",
		"OSyncMarshal", "OSyncFormatConverter", "OSyncData",
	)
}

// Native registers native struct names whose pointers marshal as handles.
func (r *Rules) Native(names ...string) *Rules {
	for _, n := range names {
		r.native[n] = struct{}{}
	}
	return r
}

// Map sets the kind for an exact normalized C type.
func (r *Rules) Map(cType string, k Kind) *Rules {
	r.exact[NormalizeType(cType)] = k
	return r
}

// Classify returns the kind for a declared C type.
func (r *Rules) Classify(cType string) Kind {
	cType = NormalizeType(cType)
	if k, ok := r.exact[cType]; ok {
		return k
	}
	base := strings.TrimPrefix(cType, "const ")
	if name, ok := strings.CutSuffix(base, "*"); ok && !strings.Contains(name, "*") {
		if _, known := r.native[name]; known {
			return KindHandle
		}
	}
	return KindUnknown
}

// DefaultRules is the rule set used by Bind and Declare.
var DefaultRules = NewRules()

// Classify classifies cType with DefaultRules.
func Classify(cType string) Kind {
	return DefaultRules.Classify(cType)
}
