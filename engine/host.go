package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/resource"
)

// HostModule is the import namespace of the built-in host functions.
const HostModule = "osync"

// Exception classes raised by the host functions themselves.
const (
	ClassArgumentError = "ArgumentError"
	ClassTypeError     = "TypeError"
	ClassNameError     = "NameError"
	ClassRangeError    = "RangeError"
	ClassRuntimeError  = "RuntimeError"
)

// OwnerCollector receives the owners a guest creates with osync.new_owner.
// Plugin environments and plugin info objects implement it.
type OwnerCollector interface {
	AddOwner(kind callback.OwnerKind, name string, owner registry.Owner) error
}

// Reporter receives osync.report calls, as a sync context does.
type Reporter interface {
	Report(code int32, message string)
}

// Fielder exposes named byte fields to osync.get_field.
type Fielder interface {
	Field(name string) ([]byte, bool)
}

// FieldSetter accepts osync.set_field.
type FieldSetter interface {
	SetField(name string, value []byte) error
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func types(t ...api.ValueType) []api.ValueType { return t }

func (g *Guest) builtins() []HostFunc {
	return []HostFunc{
		{Name: "raise", Params: types(i32, i32, i32, i32), Fn: g.hostRaise},
		{Name: "frame", Params: types(i32, i32), Fn: g.hostFrame},
		{Name: "init", Params: types(i32), Fn: g.hostInit},
		{Name: "free", Params: types(i32), Fn: g.hostFree},
		{Name: "set_data", Params: types(i32, i32), Fn: g.hostSetData},
		{Name: "get_data", Params: types(i32), Results: types(i32), Fn: g.hostGetData},
		{Name: "set_callback", Params: types(i32, i32, i32, i32), Results: types(i32), Fn: g.hostSetCallback},
		{Name: "new_owner", Params: types(i32, i32, i32, i32), Results: types(i32), Fn: g.hostNewOwner},
		{Name: "report", Params: types(i32, i32, i32, i32), Fn: g.hostReport},
		{Name: "get_field", Params: types(i32, i32, i32), Results: types(i64), Fn: g.hostGetField},
		{Name: "set_field", Params: types(i32, i32, i32, i32, i32), Fn: g.hostSetField},
		{Name: "log", Params: types(i32, i32, i32), Fn: g.hostLog},
	}
}

func (g *Guest) instantiateHost(ctx context.Context) error {
	funcs := g.builtins()
	seen := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		seen[f.Name] = true
	}
	for _, f := range g.cfg.HostFuncs {
		if seen[f.Name] {
			return errors.Registration(errors.PhaseBoot, HostModule, f.Name,
				fmt.Errorf("host function %q already defined", f.Name))
		}
		seen[f.Name] = true
		funcs = append(funcs, f)
	}

	b := g.rt.NewHostModuleBuilder(HostModule)
	for _, f := range funcs {
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(f.Fn, f.Params, f.Results).
			Export(f.Name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Registration(errors.PhaseBoot, HostModule, "*", err)
	}
	return nil
}

// throw raises an exception in the guest; wazero unwinds the guest stack
// and the call returns the Raised.
func (g *Guest) throw(class, format string, args ...any) {
	panic(&errors.Raised{
		Class:   class,
		Message: fmt.Sprintf(format, args...),
		Frames:  g.takeFrames(),
	})
}

func (g *Guest) read(mod api.Module, ptr, n uint32) []byte {
	mem := mod.Memory()
	if mem == nil {
		g.throw(ClassRangeError, "guest exports no memory")
	}
	b, ok := mem.Read(ptr, n)
	if !ok {
		g.throw(ClassRangeError, "buffer [%d, +%d) out of bounds", ptr, n)
	}
	return b
}

func (g *Guest) str(mod api.Module, ptr, n uint32) string {
	if n == 0 {
		return ""
	}
	return string(g.read(mod, ptr, n))
}

func (g *Guest) object(h uint32) any {
	v, ok := g.handles.Get(resource.Handle(h))
	if !ok {
		g.throw(ClassArgumentError, "invalid handle %d", h)
	}
	return v
}

func (g *Guest) owner(h uint32) registry.Owner {
	o, ok := g.object(h).(registry.Owner)
	if !ok {
		g.throw(ClassArgumentError, "handle %d is not a native object", h)
	}
	return o
}

func (g *Guest) attached(h uint32) registry.Owner {
	o := g.owner(h)
	if !g.reg.Attached(o) {
		g.throw(ClassArgumentError, "init not called before this method!")
	}
	return o
}

func (g *Guest) hostRaise(_ context.Context, mod api.Module, stack []uint64) {
	class := g.str(mod, uint32(stack[0]), uint32(stack[1]))
	msg := g.str(mod, uint32(stack[2]), uint32(stack[3]))
	if class == "" {
		class = ClassRuntimeError
	}
	g.throw(class, "%s", msg)
}

func (g *Guest) hostFrame(_ context.Context, mod api.Module, stack []uint64) {
	frame := g.str(mod, uint32(stack[0]), uint32(stack[1]))
	if st := g.top(); st != nil {
		st.frames = append(st.frames, frame)
	}
}

func (g *Guest) hostInit(_ context.Context, _ api.Module, stack []uint64) {
	if err := g.reg.Attach(g.owner(uint32(stack[0]))); err != nil {
		g.throw(ClassArgumentError, "Cannot call init twice for the same object!")
	}
}

func (g *Guest) hostFree(_ context.Context, _ api.Module, stack []uint64) {
	g.reg.Clear(g.attached(uint32(stack[0])))
}

func (g *Guest) hostSetData(_ context.Context, _ api.Module, stack []uint64) {
	owner := g.attached(uint32(stack[0]))
	var v any
	if ref := syncbridge.Ref(uint32(stack[1])); ref != 0 {
		v = ref
	}
	if err := g.reg.Set(owner, callback.DataKey, v); err != nil {
		g.throw(ClassArgumentError, "%v", err)
	}
}

func (g *Guest) hostGetData(_ context.Context, _ api.Module, stack []uint64) {
	owner := g.attached(uint32(stack[0]))
	ref, _ := g.reg.Get(owner, callback.DataKey).(syncbridge.Ref)
	stack[0] = uint64(ref)
}

func (g *Guest) hostSetCallback(_ context.Context, mod api.Module, stack []uint64) {
	owner := g.attached(uint32(stack[0]))
	slot, ok := callback.Lookup(uint32(stack[1]))
	if !ok {
		g.throw(ClassArgumentError, "unknown callback slot %d", uint32(stack[1]))
	}
	if kind, ok := g.reg.Get(owner, callback.KindKey).(callback.OwnerKind); ok && kind != slot.Kind() {
		g.throw(ClassArgumentError, "%s cannot take callback %s", kind, slot)
	}

	name := g.str(mod, uint32(stack[2]), uint32(stack[3]))
	var v any
	if name != "" {
		if mod.ExportedFunction(name) == nil {
			g.throw(ClassNameError, "undefined export %q for %s", name, slot)
		}
		v = Func(name)
	}
	if err := g.reg.Set(owner, slot.Key(), v); err != nil {
		g.throw(ClassArgumentError, "%v", err)
	}
	stack[0] = 1
}

func (g *Guest) hostNewOwner(_ context.Context, mod api.Module, stack []uint64) {
	collector, ok := g.object(uint32(stack[0])).(OwnerCollector)
	if !ok {
		g.throw(ClassTypeError, "handle %d cannot hold new objects", uint32(stack[0]))
	}
	kind := callback.OwnerKind(uint32(stack[1]))
	if kind.Native() == "" {
		g.throw(ClassArgumentError, "unknown owner kind %d", uint32(stack[1]))
	}
	name := g.str(mod, uint32(stack[2]), uint32(stack[3]))

	owner := registry.NewOwner()
	if err := g.reg.Set(owner, callback.KindKey, kind); err != nil {
		g.throw(ClassArgumentError, "%v", err)
	}
	if err := collector.AddOwner(kind, name, owner); err != nil {
		g.reg.Clear(owner)
		owner.Release()
		g.throw(ClassArgumentError, "%v", err)
	}
	h, err := g.Handle(kind.Native(), owner)
	if err != nil {
		g.throw(ClassRuntimeError, "%v", err)
	}
	stack[0] = uint64(h)
}

func (g *Guest) hostReport(_ context.Context, mod api.Module, stack []uint64) {
	r, ok := g.object(uint32(stack[0])).(Reporter)
	if !ok {
		g.throw(ClassTypeError, "handle %d is not a context", uint32(stack[0]))
	}
	r.Report(int32(uint32(stack[1])), g.str(mod, uint32(stack[2]), uint32(stack[3])))
}

func (g *Guest) hostGetField(_ context.Context, mod api.Module, stack []uint64) {
	f, ok := g.object(uint32(stack[0])).(Fielder)
	if !ok {
		g.throw(ClassTypeError, "handle %d has no fields", uint32(stack[0]))
	}
	data, ok := f.Field(g.str(mod, uint32(stack[1]), uint32(stack[2])))
	if !ok {
		stack[0] = 0
		return
	}
	packed, err := g.writeGuest(data)
	if err != nil {
		g.throw(ClassRuntimeError, "%v", err)
	}
	stack[0] = packed
}

func (g *Guest) hostSetField(_ context.Context, mod api.Module, stack []uint64) {
	f, ok := g.object(uint32(stack[0])).(FieldSetter)
	if !ok {
		g.throw(ClassTypeError, "handle %d has no writable fields", uint32(stack[0]))
	}
	name := g.str(mod, uint32(stack[1]), uint32(stack[2]))
	value := append([]byte(nil), g.read(mod, uint32(stack[3]), uint32(stack[4]))...)
	if err := f.SetField(name, value); err != nil {
		g.throw(ClassArgumentError, "%v", err)
	}
}

func (g *Guest) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	msg := g.str(mod, uint32(stack[1]), uint32(stack[2]))
	l := guestLogger(g.cfg.Name)
	switch int32(uint32(stack[0])) {
	case 0:
		l.Debug(msg)
	case 1:
		l.Info(msg)
	case 2:
		l.Warn(msg)
	default:
		l.Error(msg)
	}
}
