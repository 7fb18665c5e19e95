package signature

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/syncbridge"
	bridgeerrors "github.com/wippyai/syncbridge/errors"
)

type fakeLowerer struct {
	handles map[any]uint32
	types   []string
	memory  []byte
}

func (f *fakeLowerer) Handle(typeName string, v any) (uint32, error) {
	f.types = append(f.types, typeName)
	if h, ok := f.handles[v]; ok {
		return h, nil
	}
	h := uint32(len(f.handles) + 1)
	f.handles[v] = h
	return h, nil
}

func (f *fakeLowerer) Bytes(b []byte) (uint32, uint32, error) {
	ptr := uint32(len(f.memory)) + 1024
	f.memory = append(f.memory, b...)
	return ptr, uint32(len(b)), nil
}

func newFakeLowerer() *fakeLowerer {
	return &fakeLowerer{handles: make(map[any]uint32)}
}

func TestLower(t *testing.T) {
	table := MustBind(
		"osync_bool (OSyncObjFormat *format, const char *input, unsigned int inputsize, osync_bool flag, OSyncMystery *mystery, void *user_data, OSyncError **error)",
		"format, input, flag, mystery, user_data, error", "")

	slots, err := table.Bind("vcard", "BEGIN:VCARD", true, "ignored", syncbridge.Ref(5), nil)
	if err != nil {
		t.Fatal(err)
	}

	l := newFakeLowerer()
	got, err := Lower(slots, l)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	want := []uint64{1, 1024, 11, 1, 0, 5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if string(l.memory) != "BEGIN:VCARD" {
		t.Fatalf("memory = %q", l.memory)
	}
	if diff := cmp.Diff([]string{"OSyncObjFormat"}, l.types); diff != "" {
		t.Fatalf("handle types mismatch (-want +got):\n%s", diff)
	}
}

func TestLower_Nil(t *testing.T) {
	table := MustBind("void (OSyncChange *change, const char *data, unsigned int size, osync_bool b, void *data2)",
		"change, data, b, data2", "")
	slots, _ := table.Bind(nil, nil, nil, nil)

	got, err := Lower(slots, newFakeLowerer())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{0, 0, 0, 0, 0}, got); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestLower_TypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		value any
	}{
		{"bool", "osync_bool b", "yes"},
		{"buffer", "const char *data, unsigned int size", 42},
		{"int", "int n", "x"},
		{"userdata", "void *data", 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := MustBind(tt.proto, table1stName(tt.proto), "")
			slots, _ := table.Bind(tt.value)
			_, err := Lower(slots, newFakeLowerer())
			if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseMarshal, Kind: bridgeerrors.KindTypeMismatch}) {
				t.Fatalf("err = %v, want type mismatch", err)
			}
		})
	}
}

func TestLower_Int(t *testing.T) {
	table := MustBind("time_t (int delta)", "delta", "")
	slots, _ := table.Bind(int32(-2))
	got, err := Lower(slots, newFakeLowerer())
	if err != nil {
		t.Fatal(err)
	}
	if int64(got[0]) != -2 {
		t.Fatalf("got %d, want -2", int64(got[0]))
	}
}

func table1stName(proto string) string {
	sig, err := Parse(proto)
	if err != nil || len(sig.Params) == 0 {
		return ""
	}
	return sig.Params[0].Name
}

func TestLower_MatchesCore(t *testing.T) {
	tests := []struct {
		kind  Kind
		value any
	}{
		{KindUnknown, nil},
		{KindHandle, "change"},
		{KindBool, true},
		{KindBuffer, []byte("ab")},
		{KindString, "s"},
		{KindInt, 3},
		{KindUserData, syncbridge.Ref(2)},
		{KindError, nil},
		{KindOutBuffer, nil},
		{KindOutSize, nil},
		{KindOutBool, nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			s := Slot{Name: "arg", Type: "OSyncChange *", Kind: tt.kind, Value: tt.value}
			got, err := Lower([]Slot{s}, newFakeLowerer())
			if err != nil {
				t.Fatalf("Lower failed: %v", err)
			}
			if len(got) != len(s.Core()) {
				t.Errorf("lowered %d params, Core has %d", len(got), len(s.Core()))
			}
			if tt.kind.Passed() == (len(got) == 0) {
				t.Errorf("Passed() = %v with %d params", tt.kind.Passed(), len(got))
			}
		})
	}
}
