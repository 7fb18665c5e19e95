// Package watgen builds guest plugins from WebAssembly text.
//
// Sources are the fields of a module, without the enclosing (module ...),
// written as text/template. The template helpers know the osync ABI:
//
//	{{host}}              imports every osync entry point as $raise, $frame, ...
//	{{allocator 4096 1}}  exports memory and a bump cabi_realloc
//	{{pins}}              exports osync_retain/osync_release and a "pins" counter
//	{{str "text"}}        pushes the pointer and length of a static string
//	{{slot "plugin.initialize"}}, {{owner "objtype_sink"}}
//	                      push the wire id of a callback slot or owner kind
//
// Static strings are laid out in a data segment starting at StringBase, so
// allocator heaps must start above the strings a module uses.
package watgen

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/wat"
)

// HostModule is the import namespace of the bridge's host functions.
const HostModule = "osync"

// StringBase is the guest address of the first static string.
const StringBase = 16

const hostImports = `(import "osync" "raise" (func $raise (param i32 i32 i32 i32)))
  (import "osync" "frame" (func $frame (param i32 i32)))
  (import "osync" "init" (func $init (param i32)))
  (import "osync" "free" (func $free (param i32)))
  (import "osync" "set_data" (func $set_data (param i32 i32)))
  (import "osync" "get_data" (func $get_data (param i32) (result i32)))
  (import "osync" "set_callback" (func $set_callback (param i32 i32 i32 i32) (result i32)))
  (import "osync" "new_owner" (func $new_owner (param i32 i32 i32 i32) (result i32)))
  (import "osync" "report" (func $report (param i32 i32 i32 i32)))
  (import "osync" "get_field" (func $get_field (param i32 i32 i32) (result i64)))
  (import "osync" "set_field" (func $set_field (param i32 i32 i32 i32 i32)))
  (import "osync" "log" (func $log (param i32 i32 i32)))`

const allocatorFields = `(memory (export "memory") %d)
  (global $heap (mut i32) (i32.const %d))
  (func (export "cabi_realloc") (param i32 i32 i32 i32) (result i32)
    (local $p i32)
    (local.set $p (global.get $heap))
    (global.set $heap (i32.add (local.get $p) (local.get 3)))
    (local.get $p))`

const pinFields = `(global $pins (mut i32) (i32.const 0))
  (func (export "osync_retain") (param i32)
    (global.set $pins (i32.add (global.get $pins) (i32.const 1))))
  (func (export "osync_release") (param i32)
    (global.set $pins (i32.sub (global.get $pins) (i32.const 1))))
  (func (export "pins") (result i32) (global.get $pins))`

// strtab assigns addresses to the static strings of one module.
type strtab struct {
	offsets map[string]int
	order   []string
	next    int
}

func (t *strtab) push(s string) string {
	off, ok := t.offsets[s]
	if !ok {
		off = t.next
		t.offsets[s] = off
		t.order = append(t.order, s)
		t.next += len(s)
	}
	return fmt.Sprintf("(i32.const %d) (i32.const %d)", off, len(s))
}

func (t *strtab) data() string {
	var b strings.Builder
	for _, s := range t.order {
		fmt.Fprintf(&b, "  (data (i32.const %d) \"%s\")\n", t.offsets[s], escape(s))
	}
	return b.String()
}

// escape renders s as a WAT string literal body.
func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "\\%02x", c)
	}
	return b.String()
}

func slotID(name string) (string, error) {
	for _, s := range callback.All() {
		if s.String() == name {
			return fmt.Sprintf("(i32.const %d)", uint16(s)), nil
		}
	}
	return "", fmt.Errorf("unknown callback slot %q", name)
}

func ownerID(name string) (string, error) {
	for _, k := range []callback.OwnerKind{
		callback.OwnerPlugin, callback.OwnerSink, callback.OwnerFormat, callback.OwnerConverter,
	} {
		if k.String() == name {
			return fmt.Sprintf("(i32.const %d)", uint32(k)), nil
		}
	}
	return "", fmt.Errorf("unknown owner kind %q", name)
}

// Render expands the module fields in src and wraps them in a module.
func Render(src string, data any) (string, error) {
	tab := &strtab{offsets: make(map[string]int), next: StringBase}
	tmpl, err := template.New("guest").Funcs(template.FuncMap{
		"host": func() string { return hostImports },
		"allocator": func(heapBase, pages int) (string, error) {
			if heapBase < StringBase {
				return "", fmt.Errorf("heap base %d overlaps the string table", heapBase)
			}
			return fmt.Sprintf(allocatorFields, pages, heapBase), nil
		},
		"pins":  func() string { return pinFields },
		"str":   tab.push,
		"slot":  slotID,
		"owner": ownerID,
	}).Parse(src)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("(module\n  ")
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	b.WriteString("\n")
	b.WriteString(tab.data())
	b.WriteString(")\n")
	return b.String(), nil
}

// Compile renders src and compiles the result to a core wasm module.
func Compile(src string, data any) ([]byte, error) {
	text, err := Render(src, data)
	if err != nil {
		return nil, err
	}
	bin, err := wat.Compile(text)
	if err != nil {
		return nil, fmt.Errorf("compile guest text: %w", err)
	}
	return bin, nil
}

// MustCompile is Compile for sources known to be valid.
func MustCompile(src string, data any) []byte {
	bin, err := Compile(src, data)
	if err != nil {
		panic(err)
	}
	return bin
}
