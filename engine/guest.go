package engine

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/resource"
	"github.com/wippyai/syncbridge/signature"
)

// Config holds configuration for a guest.
type Config struct {
	// Registry stores per-owner callbacks and user data. A fresh registry
	// is created when nil.
	Registry *registry.Registry

	// Handles maps host objects to the handles the guest sees. A fresh
	// table is created when nil.
	Handles *resource.Table

	Stdout io.Writer
	Stderr io.Writer

	// Name is the guest module name used in traps and logs.
	Name string

	// HostFuncs are added to the osync host module next to the built-in
	// entry points.
	HostFuncs []HostFunc

	// MemoryLimitPages caps guest memory in 64KiB pages. 0 means the
	// wazero default.
	MemoryLimitPages uint32
}

// HostFunc is an extra function exported to the guest.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Func is a guest export registered as a callback.
type Func string

// Guest is a plugin module confined to the goroutine that booted it. It
// satisfies confine.Runtime; apart from New, Registry, Handles and Name,
// its methods must only be called on that goroutine.
type Guest struct {
	reg     *registry.Registry
	handles *resource.Table
	rt      wazero.Runtime
	mod     api.Module
	mem     *Memory
	alloc   *allocator
	retain  api.Function
	release api.Function
	log     *zap.Logger
	calls   []*callState
	wasm    []byte
	cfg     Config

	pinMu    sync.Mutex
	pinQueue []pinOp
}

type pinOp struct {
	ref    syncbridge.Ref
	retain bool
}

// callState is what one nested guest call owns until it returns.
type callState struct {
	frames  []string
	handles []resource.Handle
	buffers []buffer
}

type buffer struct {
	ptr, size uint32
}

// New prepares a guest from a core wasm module. Nothing is compiled until
// Boot.
func New(bin []byte, cfg *Config) (*Guest, error) {
	g := &Guest{wasm: bin}
	if cfg != nil {
		g.cfg = *cfg
	}
	if err := g.preflight(bin); err != nil {
		return nil, err
	}
	if g.cfg.Name == "" {
		g.cfg.Name = "plugin"
	}
	g.reg = g.cfg.Registry
	if g.reg == nil {
		g.reg = registry.New(nil)
	}
	g.handles = g.cfg.Handles
	if g.handles == nil {
		g.handles = resource.NewTable()
	}
	g.log = Logger().With(zap.String("module", g.cfg.Name))

	if pins, ok := g.reg.Pinner().(*registry.PinTable); ok {
		pins.OnRetain(func(v any) { g.queuePin(v, true) })
		pins.OnRelease(func(v any) { g.queuePin(v, false) })
	}
	g.reg.Subscribe(registry.ObserverFunc(g.onRegistryEvent))
	return g, nil
}

// Registry returns the registry the guest's callbacks are stored in.
func (g *Guest) Registry() *registry.Registry { return g.reg }

// Handles returns the host object handle table.
func (g *Guest) Handles() *resource.Table { return g.handles }

// Name returns the guest module name.
func (g *Guest) Name() string { return g.cfg.Name }

// Boot compiles and instantiates the guest together with WASI and the
// osync host module.
func (g *Guest) Boot(ctx context.Context) error {
	if g.mod != nil {
		return nil
	}
	rcfg := wazero.NewRuntimeConfig()
	if g.cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(g.cfg.MemoryLimitPages)
	}
	g.rt = wazero.NewRuntimeWithConfig(ctx, rcfg)

	if err := instantiateWASI(ctx, g.rt); err != nil {
		return errors.Registration(errors.PhaseBoot, wasiModule, "*", err)
	}
	if err := g.instantiateHost(ctx); err != nil {
		return err
	}

	compiled, err := g.rt.CompileModule(ctx, g.wasm)
	if err != nil {
		return errors.Load("compile guest", err)
	}
	mcfg := wazero.NewModuleConfig().
		WithName(g.cfg.Name).
		WithStartFunctions("_initialize")
	if g.cfg.Stdout != nil {
		mcfg = mcfg.WithStdout(g.cfg.Stdout)
	}
	if g.cfg.Stderr != nil {
		mcfg = mcfg.WithStderr(g.cfg.Stderr)
	}
	g.calls = append(g.calls, &callState{})
	mod, err := g.rt.InstantiateModule(ctx, compiled, mcfg)
	g.calls = g.calls[:0]
	if err != nil {
		return errors.Instantiation(g.raised(err))
	}

	g.mod = mod
	g.mem = &Memory{mem: mod.Memory()}
	g.alloc = newAllocator(mod)
	g.retain = mod.ExportedFunction("osync_retain")
	g.release = mod.ExportedFunction("osync_release")

	g.log.Debug("guest booted",
		zap.Int("exports", len(mod.ExportedFunctionDefinitions())),
		zap.Uint32("memory", g.mem.Size()),
		zap.Bool("allocator", g.alloc.allocFn != nil),
		zap.Bool("pin hooks", g.retain != nil && g.release != nil))
	return nil
}

// Shutdown closes the guest and every module it was linked with.
func (g *Guest) Shutdown(ctx context.Context) error {
	if g.rt == nil {
		return nil
	}
	g.flushPins(ctx)
	err := g.rt.Close(ctx)
	g.rt, g.mod, g.mem, g.alloc = nil, nil, nil, nil
	return err
}

// Booted reports whether the guest is instantiated.
func (g *Guest) Booted() bool { return g.mod != nil }

// Exports returns the names of the guest's exported functions, sorted.
func (g *Guest) Exports() []string {
	if g.mod == nil {
		return nil
	}
	defs := g.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export reports whether the guest exports a function named name.
func (g *Guest) Export(name string) bool {
	return g.mod != nil && g.mod.ExportedFunction(name) != nil
}

// Exported returns the definition of an exported function.
func (g *Guest) Exported(name string) (api.FunctionDefinition, bool) {
	if g.mod == nil {
		return nil, false
	}
	def, ok := g.mod.ExportedFunctionDefinitions()[name]
	return def, ok
}

// Memory returns the guest's memory.
func (g *Guest) Memory() *Memory { return g.mem }

// Call lowers args, calls the export and decodes its results as the
// given kinds. Byte results are copied out before Call returns, and
// argument buffers and per-call handles are released afterwards.
func (g *Guest) Call(ctx context.Context, export string, args []signature.Slot, results ...signature.Kind) ([]any, error) {
	if g.mod == nil {
		return nil, errors.NotInitialized(errors.PhaseCall, "guest")
	}
	fn := g.mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseCall, "export", export)
	}

	g.flushPins(ctx)
	st := &callState{}
	g.calls = append(g.calls, st)
	prevCtx := g.alloc.ctx
	g.alloc.ctx = ctx
	defer func() {
		g.endCall(st)
		g.alloc.ctx = prevCtx
		g.flushPins(ctx)
	}()

	def := fn.Definition()
	if err := checkParams(export, def.ParamTypes(), args); err != nil {
		return nil, err
	}
	params, err := signature.Lower(args, g)
	if err != nil {
		return nil, err
	}

	raw, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, g.raised(err)
	}
	return g.decode(export, raw, def.ResultTypes(), results)
}

// checkParams matches the flattened argument types against the export's
// signature, parameter by parameter.
func checkParams(export string, want []api.ValueType, args []signature.Slot) error {
	n := 0
	for _, s := range args {
		for _, got := range s.Core() {
			if n < len(want) && want[n] != got {
				return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
					Path(export, s.Name).
					CType(s.Type).
					Detail("parameter %d is %s, %s lowers to %s",
						n, api.ValueTypeName(want[n]), s.Kind, api.ValueTypeName(got)).
					Build()
			}
			n++
		}
	}
	if n != len(want) {
		return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Path(export).
			Detail("export takes %d parameters, arguments lower to %d", len(want), n).
			Build()
	}
	return nil
}

func (g *Guest) top() *callState {
	if len(g.calls) == 0 {
		return nil
	}
	return g.calls[len(g.calls)-1]
}

func (g *Guest) endCall(st *callState) {
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i] == st {
			g.calls = g.calls[:i]
			break
		}
	}
	for _, h := range st.handles {
		g.handles.Release(h)
	}
	for _, b := range st.buffers {
		g.alloc.Free(b.ptr, b.size, 1)
	}
}

// Handle implements signature.Lowerer. Owners keep their handle until
// they are cleared from the registry; other objects are released when the
// call returns.
func (g *Guest) Handle(typeName string, v any) (uint32, error) {
	if owner, ok := v.(registry.Owner); ok {
		if h, ok := g.handles.Lookup(owner); ok {
			return uint32(h), nil
		}
		h, err := g.handles.Insert(typeName, owner)
		return uint32(h), err
	}
	h, err := g.handles.Insert(typeName, v)
	if err != nil {
		return 0, err
	}
	if st := g.top(); st != nil {
		st.handles = append(st.handles, h)
	}
	return uint32(h), nil
}

// Bytes implements signature.Lowerer by copying b into a fresh guest
// allocation that lives until the call returns.
func (g *Guest) Bytes(b []byte) (uint32, uint32, error) {
	if len(b) == 0 {
		return 0, 0, nil
	}
	ptr, err := g.alloc.Alloc(uint32(len(b)), 1)
	if err != nil {
		return 0, 0, err
	}
	if err := g.mem.Write(ptr, b); err != nil {
		return 0, 0, err
	}
	if st := g.top(); st != nil {
		st.buffers = append(st.buffers, buffer{ptr: ptr, size: uint32(len(b))})
	}
	return ptr, uint32(len(b)), nil
}

// writeGuest copies b into guest memory owned by the guest afterwards.
func (g *Guest) writeGuest(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	ptr, err := g.alloc.Alloc(uint32(len(b)), 1)
	if err != nil {
		return 0, err
	}
	if err := g.mem.Write(ptr, b); err != nil {
		return 0, err
	}
	return pack(ptr, uint32(len(b))), nil
}

func (g *Guest) queuePin(v any, retain bool) {
	ref, ok := v.(syncbridge.Ref)
	if !ok || ref == 0 {
		return
	}
	g.pinMu.Lock()
	g.pinQueue = append(g.pinQueue, pinOp{ref: ref, retain: retain})
	g.pinMu.Unlock()
}

// flushPins delivers queued retain and release notifications to the guest.
func (g *Guest) flushPins(ctx context.Context) {
	g.pinMu.Lock()
	ops := g.pinQueue
	g.pinQueue = nil
	g.pinMu.Unlock()

	if g.mod == nil {
		return
	}
	for _, op := range ops {
		fn := g.release
		if op.retain {
			fn = g.retain
		}
		if fn == nil {
			continue
		}
		if _, err := fn.Call(ctx, uint64(op.ref)); err != nil {
			g.log.Warn("pin hook failed",
				zap.Uint32("ref", uint32(op.ref)),
				zap.Bool("retain", op.retain),
				zap.Error(err))
		}
	}
}

// FlushPins delivers pending pin notifications. It must run on the
// guest's goroutine.
func (g *Guest) FlushPins(ctx context.Context) {
	g.flushPins(ctx)
}

func (g *Guest) onRegistryEvent(e registry.Event) {
	if e.Type != registry.EventCleared {
		return
	}
	if h, ok := g.handles.Lookup(e.Owner); ok {
		g.handles.Remove(h)
	}
}

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}
