package engine

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/internal/watgen"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/signature"
)

type collected struct {
	name  string
	owner registry.Owner
	kind  callback.OwnerKind
}

type collector struct {
	owners []collected
}

func (c *collector) AddOwner(kind callback.OwnerKind, name string, owner registry.Owner) error {
	c.owners = append(c.owners, collected{kind: kind, name: name, owner: owner})
	return nil
}

type syncCtx struct {
	messages []string
	codes    []int32
}

func (c *syncCtx) Report(code int32, msg string) {
	c.codes = append(c.codes, code)
	c.messages = append(c.messages, msg)
}

type change struct {
	fields map[string][]byte
}

func (c *change) Field(name string) ([]byte, bool) {
	v, ok := c.fields[name]
	return v, ok
}

func (c *change) SetField(name string, v []byte) error {
	c.fields[name] = v
	return nil
}

func boot(t *testing.T, wasm []byte, cfg *Config) *Guest {
	t.Helper()
	g, err := New(wasm, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := g.Boot(ctx); err != nil {
		t.Fatalf("Boot failed: %v", err)
	}
	t.Cleanup(func() { _ = g.Shutdown(ctx) })
	return g
}

func handle(typeName string, v any) signature.Slot {
	return signature.Slot{Name: "obj", Type: typeName + "*", Kind: signature.KindHandle, Value: v}
}

func data(v any) signature.Slot {
	return signature.Slot{Name: "data", Type: "void*", Kind: signature.KindUserData, Value: v}
}

func buf(v []byte) signature.Slot {
	return signature.Slot{Name: "input", Type: "const char*", Size: "inputsize", Kind: signature.KindBuffer, Value: v}
}

func num(v int64) signature.Slot {
	return signature.Slot{Name: "size", Type: "unsigned int", Kind: signature.KindInt, Value: v}
}

func str(s string) signature.Slot {
	return signature.Slot{Name: "uid", Type: "const char*", Kind: signature.KindString, Value: s}
}

// hostModule builds a guest importing osync with an allocator and the
// module fields in body.
func hostModule(body string) []byte {
	return watgen.MustCompile("{{host}}\n{{allocator 4096 1}}\n"+body, nil)
}

func raisedFrom(t *testing.T, err error) *errors.Raised {
	t.Helper()
	var r *errors.Raised
	if !stderrors.As(err, &r) {
		t.Fatalf("expected *errors.Raised, got %T: %v", err, err)
	}
	return r
}

func TestNew_RejectsNonWasm(t *testing.T) {
	_, err := New([]byte("not wasm"), nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseLoad {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestNew_CheckedImports(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		cfg     *Config
		wantErr string
	}{
		{
			name:    "unknown module",
			src:     `(import "env" "abort" (func))`,
			wantErr: "env.abort from unknown module",
		},
		{
			name:    "undefined host function",
			src:     `(import "osync" "teleport" (func (param i32)))`,
			wantErr: "undefined host function osync.teleport",
		},
		{
			name:    "wrong signature",
			src:     `(import "osync" "init" (func (param i64)))`,
			wantErr: "osync.init has the wrong signature",
		},
		{
			name:    "wrong result",
			src:     `(import "osync" "get_data" (func (param i32)))`,
			wantErr: "osync.get_data has the wrong signature",
		},
		{
			name: "configured host function",
			src:  `(import "osync" "answer" (func (result i32)))`,
			cfg: &Config{HostFuncs: []HostFunc{{
				Name:    "answer",
				Results: []api.ValueType{api.ValueTypeI32},
				Fn:      func(context.Context, api.Module, []uint64) {},
			}}},
		},
		{
			name: "wasi",
			src:  `(import "wasi_snapshot_preview1" "proc_exit" (func (param i32)))`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(watgen.MustCompile(tt.src+"\n{{allocator 4096 1}}", nil), tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New failed: %v", err)
				}
				return
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Phase != errors.PhaseLoad {
				t.Fatalf("expected load error, got %v", err)
			}
			if !strings.Contains(e.Detail, tt.wantErr) {
				t.Errorf("Detail = %q, want %q", e.Detail, tt.wantErr)
			}
		})
	}
}

func TestGuest_CallBeforeBoot(t *testing.T) {
	g, err := New(watgen.Demo(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = g.Call(context.Background(), "get_sync_info", nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotInitialized {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestGuest_Boot(t *testing.T) {
	g := boot(t, watgen.Demo(), &Config{Name: "demo"})

	if !g.Booted() {
		t.Fatal("guest should be booted")
	}
	for _, name := range []string{"get_sync_info", "get_format_info", "cabi_realloc", "osync_retain"} {
		if !g.Export(name) {
			t.Errorf("missing export %q", name)
		}
	}
	if g.Export("nope") {
		t.Error("unexpected export nope")
	}
	def, ok := g.Exported("format_duplicate")
	if !ok {
		t.Fatal("format_duplicate not exported")
	}
	if got := len(def.ResultTypes()); got != 3 {
		t.Errorf("format_duplicate returns %d values, want 3", got)
	}
	if g.Memory().Size() == 0 {
		t.Error("memory should not be empty")
	}
}

func TestGuest_SyncInfo(t *testing.T) {
	ctx := context.Background()
	g := boot(t, watgen.Demo(), nil)
	env := &collector{}

	out, err := g.Call(ctx, "get_sync_info", []signature.Slot{handle("OSyncPluginEnv", env)}, signature.KindBool)
	if err != nil {
		t.Fatalf("get_sync_info failed: %v", err)
	}
	if out[0] != true {
		t.Fatalf("get_sync_info = %v, want true", out[0])
	}
	if len(env.owners) != 1 {
		t.Fatalf("collected %d owners, want 1", len(env.owners))
	}

	p := env.owners[0]
	if p.kind != callback.OwnerPlugin || p.name != "demo" {
		t.Errorf("owner = %s %q, want plugin \"demo\"", p.kind, p.name)
	}
	reg := g.Registry()
	if !reg.Attached(p.owner) {
		t.Error("plugin should be attached")
	}
	if got := reg.Get(p.owner, callback.KindKey); got != callback.OwnerPlugin {
		t.Errorf("kind = %v", got)
	}
	if got := reg.Get(p.owner, callback.Plugin.Initialize.Key()); got != Func("plugin_initialize") {
		t.Errorf("initialize callback = %v", got)
	}
	if got := reg.Get(p.owner, callback.Plugin.Discover.Key()); got != Func("plugin_discover") {
		t.Errorf("discover callback = %v", got)
	}
}

func TestGuest_PinsUserData(t *testing.T) {
	ctx := context.Background()
	g := boot(t, watgen.Demo(), nil)
	env, info := &collector{}, &collector{}

	if _, err := g.Call(ctx, "get_sync_info", []signature.Slot{handle("OSyncPluginEnv", env)}); err != nil {
		t.Fatalf("get_sync_info failed: %v", err)
	}
	plugin := env.owners[0].owner

	out, err := g.Call(ctx, "plugin_initialize",
		[]signature.Slot{handle("OSyncPlugin", plugin), handle("OSyncPluginInfo", info)},
		signature.KindUserData)
	if err != nil {
		t.Fatalf("plugin_initialize failed: %v", err)
	}
	if out[0] != syncbridge.Ref(watgen.DemoPluginData) {
		t.Fatalf("plugin data = %v, want %d", out[0], watgen.DemoPluginData)
	}
	if len(info.owners) != 1 || info.owners[0].kind != callback.OwnerSink {
		t.Fatalf("expected one sink, got %+v", info.owners)
	}
	sink := info.owners[0].owner
	if got := g.Registry().Get(sink, callback.DataKey); got != syncbridge.Ref(watgen.DemoSinkData) {
		t.Fatalf("sink data = %v", got)
	}

	pins := func() int64 {
		t.Helper()
		out, err := g.Call(ctx, "pins", nil, signature.KindInt)
		if err != nil {
			t.Fatalf("pins failed: %v", err)
		}
		return out[0].(int64)
	}
	if got := pins(); got != 1 {
		t.Fatalf("guest pins = %d, want 1", got)
	}

	if _, ok := g.Handles().Lookup(sink); !ok {
		t.Fatal("sink should keep its handle")
	}
	g.Registry().Clear(sink)
	if got := pins(); got != 0 {
		t.Fatalf("guest pins after clear = %d, want 0", got)
	}
	if _, ok := g.Handles().Lookup(sink); ok {
		t.Fatal("cleared sink should lose its handle")
	}
}

func TestGuest_Raise(t *testing.T) {
	g := boot(t, watgen.Demo(), nil)

	_, err := g.Call(context.Background(), "sink_read",
		[]signature.Slot{data(nil), data(nil), data(nil), data(nil), data(nil)})
	r := raisedFrom(t, err)

	if r.Class != "RuntimeError" || r.Message != "boom" {
		t.Fatalf("raised %s %q", r.Class, r.Message)
	}
	first, _, _ := strings.Cut(r.Format(), "\n")
	if first != "demo.rb:10: boom (RuntimeError)" {
		t.Errorf("first line = %q", first)
	}
	if len(r.Frames) != 2 || r.Frames[1] != "demo.rb:3:in `read'" {
		t.Errorf("frames = %q", r.Frames)
	}
}

func TestGuest_Fields(t *testing.T) {
	ctx := context.Background()
	g := boot(t, watgen.Demo(), nil)
	sc := &syncCtx{}
	ch := &change{fields: map[string][]byte{"data": []byte("BEGIN:VCARD")}}
	before := g.Handles().Len()

	_, err := g.Call(ctx, "sink_commit", []signature.Slot{
		data(nil), data(nil), handle("OSyncContext", sc), handle("OSyncChange", ch), data(nil),
	})
	if err != nil {
		t.Fatalf("sink_commit failed: %v", err)
	}
	if got := string(ch.fields["committed"]); got != "BEGIN:VCARD" {
		t.Errorf("committed = %q", got)
	}
	if len(sc.codes) != 1 || sc.codes[0] != 0 || sc.messages[0] != "committed" {
		t.Errorf("reports = %v %q", sc.codes, sc.messages)
	}
	if got := g.Handles().Len(); got != before {
		t.Errorf("per-call handles leaked: %d, want %d", got, before)
	}
}

func TestGuest_Buffers(t *testing.T) {
	ctx := context.Background()
	g := boot(t, watgen.Demo(), nil)

	out, err := g.Call(ctx, "format_duplicate",
		[]signature.Slot{data(nil), str("uid-1"), buf([]byte("payload")), data(nil)},
		signature.KindBuffer, signature.KindBuffer, signature.KindBool)
	if err != nil {
		t.Fatalf("format_duplicate failed: %v", err)
	}
	if string(out[0].([]byte)) != "uid-1" || string(out[1].([]byte)) != "payload" || out[2] != true {
		t.Fatalf("duplicate = %q %q %v", out[0], out[1], out[2])
	}

	tests := []struct {
		name        string
		left, right string
		want        int64
	}{
		{"same length", "abc", "xyz", 1},
		{"different length", "abc", "abcd", 0},
		{"empty", "", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := g.Call(ctx, "format_compare",
				[]signature.Slot{data(nil), buf([]byte(tt.left)), buf([]byte(tt.right)), data(nil)},
				signature.KindInt)
			if err != nil {
				t.Fatalf("format_compare failed: %v", err)
			}
			if out[0] != tt.want {
				t.Errorf("compare = %v, want %d", out[0], tt.want)
			}
		})
	}

	out, err = g.Call(ctx, "format_copy", []signature.Slot{data(nil), buf(nil), data(nil)}, signature.KindBuffer)
	if err != nil {
		t.Fatalf("format_copy failed: %v", err)
	}
	if out[0].([]byte) != nil {
		t.Errorf("copy of nil = %q, want nil", out[0])
	}
}

func TestGuest_CallErrors(t *testing.T) {
	ctx := context.Background()
	g := boot(t, watgen.Demo(), nil)

	tests := []struct {
		name    string
		export  string
		args    []signature.Slot
		results []signature.Kind
		phase   errors.Phase
		kind    errors.Kind
	}{
		{"unknown export", "nope", nil, nil, errors.PhaseCall, errors.KindNotFound},
		{"arity", "format_validate", nil, nil, errors.PhaseMarshal, errors.KindTypeMismatch},
		{
			"result type", "format_validate",
			[]signature.Slot{data(nil), buf([]byte("x")), data(nil)},
			[]signature.Kind{signature.KindBuffer},
			errors.PhaseResult, errors.KindTypeMismatch,
		},
		{
			"result count", "format_validate",
			[]signature.Slot{data(nil), buf([]byte("x")), data(nil)},
			[]signature.Kind{signature.KindBool, signature.KindBool},
			errors.PhaseResult, errors.KindTypeMismatch,
		},
		{
			"argument type", "format_validate",
			[]signature.Slot{data("text"), buf([]byte("x")), data(nil)},
			nil, errors.PhaseMarshal, errors.KindTypeMismatch,
		},
		{
			"parameter type", "format_validate",
			[]signature.Slot{num(7), buf([]byte("x")), data(nil)},
			nil, errors.PhaseMarshal, errors.KindTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Call(ctx, tt.export, tt.args, tt.results...)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %T: %v", err, err)
			}
			if e.Phase != tt.phase || e.Kind != tt.kind {
				t.Errorf("got %s/%s, want %s/%s", e.Phase, e.Kind, tt.phase, tt.kind)
			}
		})
	}
}

func TestGuest_ParamTypes(t *testing.T) {
	g := boot(t, watgen.Demo(), nil)

	_, err := g.Call(context.Background(), "format_validate",
		[]signature.Slot{num(7), buf([]byte("x")), data(nil)})
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if diff := cmp.Diff([]string{"format_validate", "size"}, e.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(e.Detail, "parameter 0 is i32, int lowers to i64") {
		t.Errorf("detail = %q", e.Detail)
	}
}

func TestHost_OwnerRules(t *testing.T) {
	wasm := hostModule(`
  (func (export "twice") (param i32)
    (call $init (local.get 0))
    (call $init (local.get 0)))
  (func (export "early") (param i32)
    (call $set_data (local.get 0) (i32.const 5)))
  (func (export "undefined") (param i32)
    (call $init (local.get 0))
    (drop (call $set_callback (local.get 0) {{slot "objtype_sink.connect"}} {{str "nope"}})))
  (func (export "bad_slot") (param i32)
    (call $init (local.get 0))
    (drop (call $set_callback (local.get 0) (i32.const 999) {{str "nope"}})))
  (func (export "not_owner") (param i32)
    (call $init (local.get 0)))`)
	g := boot(t, wasm, nil)

	tests := []struct {
		export string
		arg    any
		class  string
		msg    string
	}{
		{"twice", registry.NewOwner(), ClassArgumentError, "Cannot call init twice for the same object!"},
		{"early", registry.NewOwner(), ClassArgumentError, "init not called before this method!"},
		{"undefined", registry.NewOwner(), ClassNameError, `undefined export "nope" for objtype_sink.connect`},
		{"bad_slot", registry.NewOwner(), ClassArgumentError, "unknown callback slot 999"},
		{"not_owner", &syncCtx{}, ClassArgumentError, "is not a native object"},
	}
	for _, tt := range tests {
		t.Run(tt.export, func(t *testing.T) {
			_, err := g.Call(context.Background(), tt.export, []signature.Slot{handle("OSyncPlugin", tt.arg)})
			r := raisedFrom(t, err)
			if r.Class != tt.class || !strings.Contains(r.Message, tt.msg) {
				t.Errorf("raised %s %q, want %s %q", r.Class, r.Message, tt.class, tt.msg)
			}
		})
	}
}

func TestGuest_Trap(t *testing.T) {
	wasm := hostModule(`(func (export "crash") unreachable)`)
	g := boot(t, wasm, nil)

	_, err := g.Call(context.Background(), "crash", nil)
	r := raisedFrom(t, err)
	if r.Class != ClassTrap || r.Message != "unreachable" {
		t.Fatalf("raised %s %q, want Trap \"unreachable\"", r.Class, r.Message)
	}
	if len(r.Frames) == 0 {
		t.Error("trap should carry the wasm stack trace")
	}
}

func TestGuest_Exit(t *testing.T) {
	wasm := watgen.MustCompile(`(import "wasi_snapshot_preview1" "proc_exit" (func $exit (param i32)))
  {{allocator 4096 1}}
  (func (export "quit") (call $exit (i32.const 3)))`, nil)
	g := boot(t, wasm, nil)

	_, err := g.Call(context.Background(), "quit", nil)
	r := raisedFrom(t, err)
	if r.Class != ClassSystemExit || r.Message != "exit code 3" {
		t.Fatalf("raised %s %q", r.Class, r.Message)
	}
}

func TestGuest_HostFuncs(t *testing.T) {
	answer := HostFunc{
		Name:    "answer",
		Results: []api.ValueType{api.ValueTypeI32},
		Fn: func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = 41
		},
	}
	wasm := watgen.MustCompile(`{{host}}
  (import "osync" "answer" (func $answer (result i32)))
  {{allocator 4096 1}}
  (func (export "ask") (result i32)
    (i32.add (call $answer) (i32.const 1)))`, nil)

	g := boot(t, wasm, &Config{HostFuncs: []HostFunc{answer}})
	out, err := g.Call(context.Background(), "ask", nil, signature.KindInt)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if out[0] != int64(42) {
		t.Fatalf("ask = %v, want 42", out[0])
	}

	answer.Name = "log"
	dup, err := New(watgen.Demo(), &Config{HostFuncs: []HostFunc{answer}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = dup.Boot(context.Background())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindRegistration {
		t.Fatalf("expected registration error, got %v", err)
	}
}

func TestHost_Log(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	ctx := context.Background()
	g := boot(t, watgen.Demo(), &Config{Name: "demo"})
	env, info := &collector{}, &collector{}
	if _, err := g.Call(ctx, "get_sync_info", []signature.Slot{handle("OSyncPluginEnv", env)}); err != nil {
		t.Fatalf("get_sync_info failed: %v", err)
	}
	if _, err := g.Call(ctx, "plugin_initialize",
		[]signature.Slot{handle("OSyncPlugin", env.owners[0].owner), handle("OSyncPluginInfo", info)}); err != nil {
		t.Fatalf("plugin_initialize failed: %v", err)
	}

	entries := logs.FilterMessage("demo plugin initialized").All()
	if len(entries) != 1 {
		t.Fatalf("got %d guest log entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].LoggerName != "guest" {
		t.Errorf("entry = %s %q", entries[0].Level, entries[0].LoggerName)
	}
}

func TestMemory_Bounds(t *testing.T) {
	g := boot(t, watgen.Demo(), nil)
	mem := g.Memory()

	if err := mem.Write(128, []byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := mem.ReadCopy(128, 3)
	if err != nil || string(got) != "abc" {
		t.Fatalf("ReadCopy = %q, %v", got, err)
	}

	_, err = mem.Read(mem.Size(), 1)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindOutOfBounds {
		t.Fatalf("expected out of bounds, got %v", err)
	}
}
