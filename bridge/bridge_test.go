package bridge

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/confine"
	"github.com/wippyai/syncbridge/engine"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/internal/watgen"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/signature"
)

func open(t *testing.T, wasm []byte) *Bridge {
	t.Helper()
	b, err := Open(wasm, &engine.Config{Name: "demo"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func pins(t *testing.T, b *Bridge) int64 {
	t.Helper()
	out, err := b.Exec(context.Background(), "pins", nil, signature.KindInt)
	if err != nil {
		t.Fatalf("pins failed: %v", err)
	}
	return out[0].(int64)
}

// loaded is a demo bridge with its plugin initialized.
type loaded struct {
	b      *Bridge
	env    *Env
	info   *PluginInfo
	plugin registry.Owner
	sink   registry.Owner
	format registry.Owner
}

func load(t *testing.T) loaded {
	t.Helper()
	ctx := context.Background()
	l := loaded{b: open(t, watgen.Demo()), env: NewEnv(), info: NewPluginInfo("")}

	for name, fn := range map[string]func(context.Context, *Env) (bool, error){
		"sync":       l.b.GetSyncInfo,
		"format":     l.b.GetFormatInfo,
		"conversion": l.b.GetConversionInfo,
	} {
		ok, err := fn(ctx, l.env)
		if err != nil || !ok {
			t.Fatalf("%s info = %v, %v", name, ok, err)
		}
	}
	if len(l.env.Plugins()) != 1 || len(l.env.Formats()) != 1 || len(l.env.Converters()) != 1 {
		t.Fatalf("env = %+v", l.env.owners)
	}
	l.plugin = l.env.Plugins()[0].Owner
	l.format = l.env.Formats()[0].Owner

	data, err := l.b.Plugin(l.plugin).Initialize(ctx, l.info)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if data != syncbridge.Ref(watgen.DemoPluginData) {
		t.Fatalf("plugin data = %d", data)
	}
	if len(l.info.Sinks()) != 1 {
		t.Fatalf("sinks = %+v", l.info.Sinks())
	}
	l.sink = l.info.Sinks()[0].Owner
	return l
}

func TestVersion(t *testing.T) {
	if Version() != 1 {
		t.Fatalf("Version = %d", Version())
	}
}

func TestBridge_SinkCycle(t *testing.T) {
	ctx := context.Background()
	l := load(t)
	sink := l.b.Sink(l.sink)
	sc := NewContext()

	if err := sink.Connect(ctx, l.info, sc); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := sink.ConnectDone(ctx, l.info, sc, true); err != nil {
		t.Fatalf("ConnectDone failed: %v", err)
	}
	if err := sink.GetChanges(ctx, l.info, sc, true); err != nil {
		t.Fatalf("GetChanges failed: %v", err)
	}

	ch := NewChange("uid-1", []byte("BEGIN:VCARD"))
	if err := sink.Commit(ctx, l.info, sc, ch); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if v, _ := ch.Field("committed"); string(v) != "BEGIN:VCARD" {
		t.Errorf("committed = %q", v)
	}
	if err := sink.CommittedAll(ctx, l.info, sc); err != nil {
		t.Fatalf("CommittedAll failed: %v", err)
	}
	if err := sink.SyncDone(ctx, l.info, sc); err != nil {
		t.Fatalf("SyncDone failed: %v", err)
	}
	if err := sink.Disconnect(ctx, l.info, sc); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	want := []Report{{Message: "connected"}, {Message: "changes reported"}, {Message: "committed"}}
	if diff := cmp.Diff(want, sc.Reports()); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
	if err := sc.Err(); err != nil {
		t.Errorf("context error: %v", err)
	}
}

func TestBridge_CallbackRaises(t *testing.T) {
	l := load(t)

	sc := NewContext()
	err := l.b.Sink(l.sink).Read(context.Background(), l.info, sc, NewChange("uid-1", nil))
	var ce *errors.CallError
	if !stderrors.As(err, &ce) {
		t.Fatalf("expected CallError, got %T: %v", err, err)
	}
	if ce.Code != errors.CodeGeneric {
		t.Errorf("code = %s", ce.Code)
	}
	if ce.Message != "Failed to call objtype_sink.read!" {
		t.Errorf("message = %q", ce.Message)
	}
	first, _, _ := strings.Cut(ce.Backtrace, "\n")
	if first != "demo.rb:10: boom (RuntimeError)" {
		t.Errorf("backtrace = %q", ce.Backtrace)
	}

	want := []Report{{Code: int32(errors.CodeGeneric), Message: ce.Error()}}
	if diff := cmp.Diff(want, sc.Reports()); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
	if sc.Err() == nil {
		t.Error("context should carry the failure")
	}
}

func TestBridge_Pins(t *testing.T) {
	ctx := context.Background()
	l := load(t)

	if got := pins(t, l.b); got != 2 {
		t.Fatalf("pins after initialize = %d, want 2", got)
	}
	if err := l.b.Plugin(l.plugin).Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if got := pins(t, l.b); got != 1 {
		t.Fatalf("pins after finalize = %d, want 1", got)
	}
	if err := l.b.Free(ctx, l.sink); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if got := pins(t, l.b); got != 0 {
		t.Fatalf("pins after free = %d, want 0", got)
	}
	if n := l.b.Registry().Pinner().(*registry.PinTable).Count(syncbridge.Ref(watgen.DemoSinkData)); n != 0 {
		t.Errorf("host pin count = %d", n)
	}
}

func TestBridge_Format(t *testing.T) {
	ctx := context.Background()
	l := load(t)
	f := l.b.Format(l.format)

	data, err := f.Initialize(ctx)
	if err != nil || data != syncbridge.Ref(watgen.DemoFormatData) {
		t.Fatalf("Initialize = %d, %v", data, err)
	}

	if n, err := f.Compare(ctx, []byte("abc"), []byte("xyz")); err != nil || n != 1 {
		t.Errorf("Compare = %d, %v", n, err)
	}
	if out, err := f.Copy(ctx, []byte("payload")); err != nil || string(out) != "payload" {
		t.Errorf("Copy = %q, %v", out, err)
	}
	if s, err := f.Print(ctx, []byte("payload")); err != nil || s != "payload" {
		t.Errorf("Print = %q, %v", s, err)
	}
	if n, err := f.Revision(ctx, []byte("12345")); err != nil || n != 5 {
		t.Errorf("Revision = %d, %v", n, err)
	}

	dup, err := f.Duplicate(ctx, "uid-1", []byte("payload"))
	if err != nil {
		t.Fatalf("Duplicate failed: %v", err)
	}
	want := callback.Duplicate{NewUID: "uid-1", Output: []byte("payload"), Dirty: true}
	if diff := cmp.Diff(want, dup); diff != "" {
		t.Errorf("duplicate mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"non-empty", []byte("x"), true},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run("validate "+tt.name, func(t *testing.T) {
			ok, err := f.Validate(ctx, tt.data)
			if err != nil || ok != tt.want {
				t.Errorf("Validate = %v, %v", ok, err)
			}
		})
	}

	ok, err := f.Finalize(ctx)
	if err != nil || !ok {
		t.Errorf("unregistered Finalize = %v, %v, want default true", ok, err)
	}
	if got := l.b.Registry().Get(l.format, callback.DataKey); got != nil {
		t.Errorf("format data after finalize = %v", got)
	}
}

func TestBridge_MissingCallback(t *testing.T) {
	l := load(t)

	_, err := l.b.Format(l.format).Create(context.Background())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMissingCallback {
		t.Fatalf("expected missing callback, got %v", err)
	}
	var ce *errors.CallError
	if !stderrors.As(err, &ce) || ce.Message != "Failed to call objformat.create!" {
		t.Fatalf("expected CallError, got %v", err)
	}
}

func TestBridge_Converter(t *testing.T) {
	ctx := context.Background()
	l := load(t)
	c := l.b.Converter(l.env.Converters()[0].Owner)

	if data, err := c.Initialize(ctx, "cfg"); err != nil || data != 0 {
		t.Fatalf("unregistered Initialize = %d, %v", data, err)
	}
	out, err := c.Convert(ctx, []byte("vcard"), "cfg")
	if err != nil || string(out) != "vcard" {
		t.Fatalf("Convert = %q, %v", out, err)
	}
	if err := c.Finalize(ctx); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
}

// badFormat registers a format whose validate and copy return the wrong
// value types, and no other entry points.
func badFormat() []byte {
	return watgen.MustCompile(`{{host}}
  {{allocator 4096 1}}
  (func (export "get_format_info") (param $env i32) (result i32)
    (local $format i32)
    (local.set $format (call $new_owner (local.get $env) {{owner "objformat"}} {{str "bad"}}))
    (call $init (local.get $format))
    (drop (call $set_callback (local.get $format) {{slot "objformat.validate"}} {{str "bad_validate"}}))
    (drop (call $set_callback (local.get $format) {{slot "objformat.copy"}} {{str "bad_copy"}}))
    (i32.const 1))
  (func (export "bad_validate") (param i32 i32 i32 i32) (result i64)
    (i64.const 1))
  (func (export "bad_copy") (param i32 i32 i32 i32) (result i32)
    (i32.const 1))`, nil)
}

func TestBridge_ResultMismatch(t *testing.T) {
	ctx := context.Background()
	b := open(t, badFormat())
	env := NewEnv()

	for name, fn := range map[string]func(context.Context, *Env) (bool, error){
		"sync":       b.GetSyncInfo,
		"conversion": b.GetConversionInfo,
	} {
		if ok, err := fn(ctx, env); err != nil || ok {
			t.Errorf("%s info without export = %v, %v, want false", name, ok, err)
		}
	}
	if ok, err := b.GetFormatInfo(ctx, env); err != nil || !ok {
		t.Fatalf("GetFormatInfo = %v, %v", ok, err)
	}
	f := b.Format(env.Formats()[0].Owner)

	tests := []struct {
		call func() error
		name string
		want string
	}{
		{func() error { _, err := f.Validate(ctx, []byte("x")); return err }, "validate", "The result should be true or false!"},
		{func() error { _, err := f.Copy(ctx, []byte("x")); return err }, "copy", "The result should be a String!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *errors.CallError
			if err := tt.call(); !stderrors.As(err, &ce) || ce.Message != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBridge_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := load(t)
	f := l.b.Format(l.format)
	served := l.b.Worker().Stats().Served

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 8; j++ {
				out, err := f.Copy(ctx, []byte("payload"))
				if err != nil {
					return err
				}
				if string(out) != "payload" {
					return stderrors.New("copy returned " + string(out))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent copy failed: %v", err)
	}
	if got := l.b.Worker().Stats().Served - served; got != 128 {
		t.Errorf("served %d calls, want 128", got)
	}
}

func TestBridge_Reentrant(t *testing.T) {
	ctx := context.Background()
	l := load(t)

	c := &confine.Call{
		Name: "outer",
		Target: func(ctx context.Context, c *confine.Call) error {
			ok, err := l.b.Format(l.format).Validate(ctx, []byte("x"))
			c.Result = ok
			return err
		},
	}
	if _, err := l.b.Invoke(ctx, c); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if c.Result != true {
		t.Errorf("nested validate = %v", c.Result)
	}
	if l.b.Worker().Stats().Reentrant == 0 {
		t.Error("nested dispatch should run inline")
	}
}

func TestDefault(t *testing.T) {
	prev := SetDefault(nil)
	t.Cleanup(func() { SetDefault(prev) })

	d := Default()
	if d != Default() {
		t.Fatal("Default should be stable")
	}
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	EnsureWorkerStarted()
	EnsureWorkerStarted()

	c := &confine.Call{
		Name: "answer",
		Target: func(ctx context.Context, c *confine.Call) error {
			c.Result = 42
			return nil
		},
	}
	if status, err := Invoke(context.Background(), c); err != nil || status != confine.StatusOK || c.Result != 42 {
		t.Fatalf("Invoke = %s, %v, %v", status, c.Result, err)
	}

	_, err := d.GetSyncInfo(context.Background(), NewEnv())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotInitialized {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestEnv_Rejects(t *testing.T) {
	env := NewEnv()
	owner := registry.NewOwner()

	if err := env.AddOwner(callback.OwnerSink, "contact", owner); err == nil {
		t.Error("env should reject sinks")
	}
	if err := env.AddOwner(callback.OwnerPlugin, "", owner); err == nil {
		t.Error("env should reject unnamed owners")
	}
	if _, ok := Lookup(owner); ok {
		t.Error("rejected owner should stay unbound")
	}
	if err := env.AddOwner(callback.OwnerPlugin, "demo", owner); err != nil {
		t.Fatalf("AddOwner failed: %v", err)
	}
	r, ok := Lookup(owner)
	if !ok || r.Name != "demo" || r.Kind != callback.OwnerPlugin {
		t.Fatalf("Lookup = %+v, %v", r, ok)
	}
	if got := owner.String(); got != "plugin demo" {
		t.Errorf("owner.String() = %q", got)
	}
	if err := env.AddOwner(callback.OwnerPlugin, "demo", registry.NewOwner()); err == nil {
		t.Error("env should reject duplicate names")
	}
}
