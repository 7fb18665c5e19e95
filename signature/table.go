package signature

import (
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/syncbridge/errors"
)

// Slot is one bound argument: its declared name, C type and marshaling
// kind, plus the host value once a call binds it.
type Slot struct {
	Value any
	Name  string
	Type  string
	// Size names the length parameter of a buffer argument.
	Size string
	Kind Kind
}

// Table is the declarative argument table of one callback shape. It is
// built once when the callback is registered and cloned for every call.
type Table struct {
	Result string
	In     []Slot
	Out    []Slot
}

// Bind builds a Table from prototype text and comma-separated lists of
// in and out parameter names, using DefaultRules.
func Bind(text, in, out string) (*Table, error) {
	return DefaultRules.Bind(text, in, out)
}

// MustBind is Bind for package-level tables; it panics on a malformed prototype.
func MustBind(text, in, out string) *Table {
	t, err := Bind(text, in, out)
	if err != nil {
		panic(err)
	}
	return t
}

// Bind builds a Table from prototype text. A name that cannot be found in
// the text binds with KindUnknown, which lowers to nil.
func (r *Rules) Bind(text, in, out string) (*Table, error) {
	sig, err := Parse(text)
	if err != nil {
		return nil, err
	}

	t := &Table{Result: sig.Result}
	for _, name := range splitNames(in) {
		t.In = append(t.In, r.resolve(sig, name))
	}
	for _, name := range splitNames(out) {
		t.Out = append(t.Out, r.resolve(sig, name))
	}
	return t, nil
}

func (r *Rules) resolve(sig *Signature, name string) Slot {
	typ, ok := sig.Lookup(name)
	if !ok {
		Logger().Debug("parameter not found in prototype",
			zap.String("name", name),
			zap.String("prototype", sig.Text))
		return Slot{Name: name, Kind: KindUnknown}
	}

	s := Slot{Name: name, Type: typ, Kind: r.Classify(typ)}
	switch s.Kind {
	case KindBuffer:
		s.Size = sizeParam(sig, name)
		if s.Size == "" {
			s.Kind = KindString
		}
	case KindOutBuffer:
		s.Size = sizeParam(sig, name)
	case KindUnknown:
		Logger().Debug("no marshaling rule for type",
			zap.String("name", name),
			zap.String("type", typ))
	}
	return s
}

// sizeParam finds the length parameter of a buffer: "<name>size" if
// declared, else a parameter named "size", else an unsigned int declared
// directly after the buffer.
func sizeParam(sig *Signature, name string) string {
	for _, candidate := range []string{name + "size", "size"} {
		if typ, ok := sig.Lookup(candidate); ok && isSizeType(typ) {
			return candidate
		}
	}
	for i, p := range sig.Params {
		if p.Name == name && i+1 < len(sig.Params) && isSizeType(sig.Params[i+1].Type) {
			return sig.Params[i+1].Name
		}
	}
	return ""
}

func isSizeType(t string) bool {
	return t == "unsigned int" || t == "unsigned int*"
}

// Declare builds a Table from explicit parameter declarations, using DefaultRules.
func Declare(result string, in, out []Param) *Table {
	return DefaultRules.Declare(result, in, out)
}

// Declare builds a Table from explicit parameter declarations. A
// byte pointer without a Size is treated as NUL-terminated.
func (r *Rules) Declare(result string, in, out []Param) *Table {
	t := &Table{Result: NormalizeType(result)}
	for _, p := range in {
		t.In = append(t.In, r.declare(p))
	}
	for _, p := range out {
		t.Out = append(t.Out, r.declare(p))
	}
	return t
}

func (r *Rules) declare(p Param) Slot {
	typ := NormalizeType(p.Type)
	s := Slot{Name: p.Name, Type: typ, Size: p.Size, Kind: r.Classify(typ)}
	if s.Kind == KindBuffer && s.Size == "" {
		s.Kind = KindString
	}
	return s
}

// Bind clones the input slots and assigns values positionally.
func (t *Table) Bind(values ...any) ([]Slot, error) {
	if len(values) != len(t.In) {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Detail("got %d arguments, want %d (%s)", len(values), len(t.In), strings.Join(t.Names(), ", ")).
			Build()
	}
	slots := make([]Slot, len(t.In))
	copy(slots, t.In)
	for i := range slots {
		slots[i].Value = values[i]
	}
	return slots, nil
}

// Outputs returns a fresh copy of the output slots.
func (t *Table) Outputs() []Slot {
	out := make([]Slot, len(t.Out))
	copy(out, t.Out)
	return out
}

// Names returns the input parameter names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.In))
	for i, s := range t.In {
		names[i] = s.Name
	}
	return names
}

// Slot returns the input slot with the given name.
func (t *Table) Slot(name string) (Slot, bool) {
	for _, s := range t.In {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// ABI returns the guest-side parameter types of the table's inputs.
func (t *Table) ABI() []wit.Type {
	var types []wit.Type
	for _, s := range t.In {
		types = append(types, s.Kind.ABI()...)
	}
	return types
}

// Core returns the core wasm types s lowers to.
func (s Slot) Core() []api.ValueType {
	return Flatten(s.Kind.ABI())
}

// Core returns the core wasm parameter types the table's inputs lower to.
func (t *Table) Core() []api.ValueType {
	return Flatten(t.ABI())
}

// Flatten lowers WIT types to the core value types of the flat calling
// convention. Pointers and 32-bit scalars become i32.
func Flatten(types []wit.Type) []api.ValueType {
	var out []api.ValueType
	for _, t := range types {
		for _, f := range t.Flat() {
			out = append(out, coreType(f))
		}
	}
	return out
}

func coreType(t wit.Type) api.ValueType {
	switch t.(type) {
	case wit.U64, wit.S64:
		return api.ValueTypeI64
	case wit.F32:
		return api.ValueTypeF32
	case wit.F64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

func splitNames(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
