package watgen

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syncbridge/wasm"
)

func TestRender(t *testing.T) {
	text, err := Render(`(func (export "a") (result i32 i32) {{str "hi"}})
  (func (export "b") (result i32 i32) {{str "hi"}})
  (func (export "c") (result i32 i32) {{str "a\"b"}})
  (func (export "s") (result i32) {{slot "objtype_sink.read"}} {{owner "objformat"}} drop)`, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, want := range []string{
		"(i32.const 16) (i32.const 2)",
		"(i32.const 18) (i32.const 3)",
		`(data (i32.const 16) "hi")`,
		`(data (i32.const 18) "a\22b")`,
		"(i32.const 9) (i32.const 3) drop",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("render missing %q:\n%s", want, text)
		}
	}
	if n := strings.Count(text, "(data "); n != 2 {
		t.Errorf("render has %d data segments, want 2", n)
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"slot", `{{slot "plugin.nope"}}`, `unknown callback slot "plugin.nope"`},
		{"owner", `{{owner "nope"}}`, `unknown owner kind "nope"`},
		{"heap", `{{allocator 8 1}}`, "overlaps the string table"},
		{"template", `{{end}}`, "unexpected {{end}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.src, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Compile(`(func (bogus))`, nil); err == nil || !strings.Contains(err.Error(), "compile guest text") {
		t.Fatalf("Compile err = %v", err)
	}
}

func TestCompile_Runs(t *testing.T) {
	ctx := context.Background()
	bin, err := Compile(`{{allocator 1024 1}}
  {{pins}}
  (func (export "hello") (result i64)
    (i64.or
      (i64.shl (i64.const {{.Ptr}}) (i64.const 32))
      (i64.const 5)))
  (func (export "add") (param i32 i32) (result i32)
    (i32.add (local.get 0) (local.get 1)))
  (func (export "touch") (result i32 i32) {{str "hello"}})`, struct{ Ptr int }{StringBase})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	mod, err := r.Instantiate(ctx, bin)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	out, err := mod.ExportedFunction("add").Call(ctx, 40, 2)
	if err != nil || out[0] != 42 {
		t.Fatalf("add = %v, %v", out, err)
	}

	out, err = mod.ExportedFunction("hello").Call(ctx)
	if err != nil {
		t.Fatalf("hello failed: %v", err)
	}
	ptr, length := uint32(out[0]>>32), uint32(out[0])
	got, ok := mod.Memory().Read(ptr, length)
	if !ok || string(got) != "hello" {
		t.Fatalf("hello = %q", got)
	}

	alloc := mod.ExportedFunction("cabi_realloc")
	a, _ := alloc.Call(ctx, 0, 0, 1, 8)
	b, _ := alloc.Call(ctx, 0, 0, 1, 8)
	if a[0] != 1024 || b[0] != 1032 {
		t.Errorf("bump allocations = %d, %d", a[0], b[0])
	}

	retain := mod.ExportedFunction("osync_retain")
	for i := 0; i < 3; i++ {
		if _, err := retain.Call(ctx, 5); err != nil {
			t.Fatalf("retain failed: %v", err)
		}
	}
	if _, err := mod.ExportedFunction("osync_release").Call(ctx, 5); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	pins, _ := mod.ExportedFunction("pins").Call(ctx)
	if pins[0] != 2 {
		t.Errorf("pins = %d, want 2", pins[0])
	}
}

func TestDemo_Compiles(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, Demo())
	if err != nil {
		t.Fatalf("CompileModule failed: %v", err)
	}

	imports := compiled.ImportedFunctions()
	if len(imports) != 12 {
		t.Fatalf("demo imports %d functions, want 12", len(imports))
	}
	for _, def := range imports {
		if mod, _, _ := def.Import(); mod != HostModule {
			t.Errorf("import from %q", mod)
		}
	}

	exports := compiled.ExportedFunctions()
	for _, name := range []string{
		"get_sync_info", "get_format_info", "get_conversion_info",
		"plugin_initialize", "sink_commit", "format_duplicate", "convert_identity",
	} {
		if _, ok := exports[name]; !ok {
			t.Errorf("missing export %q", name)
		}
	}
	if got := exports["format_duplicate"].ResultTypes(); len(got) != 3 || got[2] != api.ValueTypeI32 {
		t.Errorf("format_duplicate results = %v", got)
	}
}

func TestDemo_Strings(t *testing.T) {
	m, err := wasm.ParseModuleValidate(Demo())
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}

	var got []string
	for _, d := range m.Data {
		got = append(got, string(d.Init))
	}
	for _, want := range []string{"demo", "contact", "demo-text", "demo-identity", "demo.rb:3:in `read'"} {
		found := false
		for _, s := range got {
			found = found || s == want
		}
		if !found {
			t.Errorf("demo is missing static string %q", want)
		}
	}

	var names []string
	for _, imp := range m.Imports {
		names = append(names, imp.Name)
	}
	want := []string{"raise", "frame", "init", "free", "set_data", "get_data",
		"set_callback", "new_owner", "report", "get_field", "set_field", "log"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
}
