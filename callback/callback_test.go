package callback

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/signature"
)

func TestSlots_Declared(t *testing.T) {
	for _, s := range All() {
		t.Run(s.String(), func(t *testing.T) {
			if s.Kind() == OwnerUnknown {
				t.Fatal("slot has no owner kind")
			}
			if s.Signature() == nil || len(s.Signature().In) == 0 {
				t.Fatal("slot has no argument table")
			}
			for _, in := range s.Signature().In {
				if in.Kind == signature.KindUnknown {
					t.Errorf("argument %s did not resolve (type %q)", in.Name, in.Type)
				}
			}
			if s.Result() != ResultVoid && s.Result() != ResultData && s.Spec().Mismatch == "" {
				t.Error("checked result without a mismatch message")
			}
			if !s.Required() && s.Result() == ResultBool && s.Spec().Default == nil {
				t.Error("optional bool slot without default")
			}
		})
	}
}

func TestSlots_ByKind(t *testing.T) {
	names := func(kind OwnerKind) []string {
		var out []string
		for _, s := range Slots(kind) {
			out = append(out, s.Name())
		}
		return out
	}

	tests := []struct {
		kind OwnerKind
		want []string
	}{
		{OwnerPlugin, []string{"initialize", "finalize", "discover"}},
		{OwnerSink, []string{"connect", "disconnect", "get_changes", "commit", "committed_all", "read", "sync_done", "connect_done"}},
		{OwnerFormat, []string{"initialize", "finalize", "compare", "copy", "duplicate", "create", "destroy", "print", "revision", "marshal", "demarshal", "validate"}},
		{OwnerConverter, []string{"convert", "initialize", "finalize"}},
	}
	total := 0
	for _, tt := range tests {
		got := names(tt.kind)
		total += len(got)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s slots mismatch (-want +got):\n%s", tt.kind, diff)
		}
	}
	if total != len(All()) {
		t.Fatalf("kinds cover %d of %d slots", total, len(All()))
	}
}

func TestSlot_Key(t *testing.T) {
	if got := Sink.Connect.Key(); got != "connect_func" {
		t.Fatalf("Key = %q", got)
	}
	if got := Format.Duplicate.Key(); got != "duplicate_func" {
		t.Fatalf("Key = %q", got)
	}
	if SlotNone.Key() != "" || Slot(999).Key() != "" {
		t.Fatal("invalid slots must have no key")
	}
}

func TestLookup(t *testing.T) {
	for _, s := range All() {
		got, ok := Lookup(uint32(s))
		if !ok || got != s {
			t.Fatalf("Lookup(%d) = %v, %v", s, got, ok)
		}
	}
	for _, id := range []uint32{0, uint32(slotCount), 1 << 20} {
		if _, ok := Lookup(id); ok {
			t.Errorf("Lookup(%d) succeeded", id)
		}
	}
}

func TestSlot_Code(t *testing.T) {
	for _, s := range All() {
		want := errors.CodeGeneric
		if s == PluginInitialize || s == PluginDiscover {
			want = errors.CodeInitialization
		}
		if s.Code() != want {
			t.Errorf("%s code = %v, want %v", s, s.Code(), want)
		}
	}
}

func TestSignature_Buffers(t *testing.T) {
	compare := Format.Compare.Signature()
	left, _ := compare.Slot("leftdata")
	right, _ := compare.Slot("rightdata")
	if left.Kind != signature.KindBuffer || left.Size != "leftdatasize" {
		t.Errorf("leftdata = %+v", left)
	}
	if right.Kind != signature.KindBuffer || right.Size != "rightdatasize" {
		t.Errorf("rightdata = %+v", right)
	}

	convert := Converter.Convert.Signature()
	input, _ := convert.Slot("input")
	if input.Kind != signature.KindBuffer || input.Size != "inpsize" {
		t.Errorf("input = %+v", input)
	}
	config, _ := convert.Slot("config")
	if config.Kind != signature.KindString {
		t.Errorf("config = %+v", config)
	}

	slow, _ := Sink.GetChanges.Signature().Slot("slow_sync")
	if slow.Kind != signature.KindBool {
		t.Errorf("slow_sync = %+v", slow)
	}
}

func TestContract_Kinds(t *testing.T) {
	want := []signature.Kind{signature.KindBuffer, signature.KindBuffer, signature.KindBool}
	if diff := cmp.Diff(want, ResultDuplicate.Kinds()); diff != "" {
		t.Fatalf("duplicate kinds mismatch (-want +got):\n%s", diff)
	}
	if ResultVoid.Kinds() != nil {
		t.Fatal("void contract decodes nothing")
	}
}
