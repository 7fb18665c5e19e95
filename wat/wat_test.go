package wat

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/syncbridge/wasm"
)

func TestCompile(t *testing.T) {
	t.Run("empty_module", func(t *testing.T) {
		bin, err := Compile("(module)")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(bin) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(bin))
		}
		if bin[0] != 0x00 || bin[1] != 0x61 || bin[2] != 0x73 || bin[3] != 0x6D {
			t.Error("invalid WASM magic")
		}
	})

	t.Run("plugin_shape", func(t *testing.T) {
		bin, err := Compile(`(module
			(import "osync" "init" (func $init (param i32)))
			(import "osync" "get_field" (func $get_field (param i32 i32 i32) (result i64)))
			(memory (export "memory") 1)
			(global $heap (mut i32) (i32.const 1024))
			(func (export "get_sync_info") (param $env i32) (result i32)
				(call $init (local.get $env))
				(i32.const 1))
			(data (i32.const 16) "demo\00\ff"))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		m, err := wasm.ParseModuleValidate(bin)
		if err != nil {
			t.Fatalf("ParseModuleValidate: %v", err)
		}

		var imports []string
		for _, imp := range m.Imports {
			imports = append(imports, imp.Module+"."+imp.Name)
		}
		if diff := cmp.Diff([]string{"osync.init", "osync.get_field"}, imports); diff != "" {
			t.Errorf("imports mismatch (-want +got):\n%s", diff)
		}
		ft := m.GetFuncType(1)
		if ft == nil || len(ft.Params) != 3 || len(ft.Results) != 1 || ft.Results[0] != wasm.ValI64 {
			t.Errorf("get_field type = %+v", ft)
		}
		if len(m.Data) != 1 || string(m.Data[0].Init) != "demo\x00\xff" {
			t.Errorf("data = %+v", m.Data)
		}
	})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
	}{
		{"missing_module", "(func)", "expected 'module'"},
		{"unclosed", "(module", "unexpected end"},
		{"unknown_instr", "(module (func (bogus)))", "unknown instruction"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func (block (br $x))))", "unknown label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}

// TestWasmValidation parses compiled output back for the constructs guest
// plugins are written with.
func TestWasmValidation(t *testing.T) {
	tests := []struct {
		name string
		wat  string
	}{
		{"memory_export", `(module (memory (export "memory") 2))`},
		{"mut_global", "(module (global $g (mut i32) (i32.const 0)) (func (global.set $g (i32.const 1))))"},
		{"named_params", "(module (func (param $a i32) (param $b i32) (result i32) (i32.add (local.get $a) (local.get $b))))"},
		{"named_local", "(module (func (result i32) (local $p i32) (local.set $p (i32.const 4)) (local.get $p)))"},
		{"multi_value", "(module (func (result i64 i64 i32) (i64.const 1) (i64.const 2) (i32.const 3)))"},
		{"import_func", `(module (import "osync" "log" (func $log (param i32 i32 i32))))`},
		{"wasi_import", `(module (import "wasi_snapshot_preview1" "proc_exit" (func $exit (param i32))))`},
		{"call_import", `(module (import "m" "f" (func $f (result i32))) (func (result i32) (i32.add (call $f) (i32.const 1))))`},
		{"drop_call", `(module (import "m" "f" (func $f (result i32))) (func (drop (call $f))))`},
		{"unreachable", "(module (func unreachable))"},
		{"i64_pack", "(module (func (param i32 i32) (result i64) (i64.or (i64.shl (i64.extend_i32_u (local.get 0)) (i64.const 32)) (i64.extend_i32_u (local.get 1)))))"},
		{"i64_unpack", "(module (func (param i64) (result i32) (i32.wrap_i64 (i64.shr_u (local.get 0) (i64.const 32)))))"},
		{"eqz", "(module (func (param i32) (result i32) (i32.eqz (i32.eqz (local.get 0)))))"},
		{"data_active", `(module (memory 1) (data (i32.const 16) "hello"))`},
		{"data_escapes", `(module (memory 1) (data (i32.const 0) "\22\5c\0a"))`},
		{"flat_block", "(module (func block nop end))"},
		{"if_else", "(module (func (result i32) (if (result i32) (i32.const 1) (then (i32.const 2)) (else (i32.const 3)))))"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, err := Compile(tt.wat)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if _, err := wasm.ParseModuleValidate(bin); err != nil {
				t.Errorf("ParseModuleValidate: %v", err)
			}
		})
	}
}
