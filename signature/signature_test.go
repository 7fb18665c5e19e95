package signature

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/syncbridge"
	bridgeerrors "github.com/wippyai/syncbridge/errors"
)

const copyPrototype = "OSyncObjFormat *format, const char *input, unsigned int insize, char **output, unsigned int *outpsize, void *user_data, OSyncError **error"

func TestBind_ObjFormatCopy(t *testing.T) {
	table, err := Bind(copyPrototype, "format, input, insize, error, user_data", "output, outpsize")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	want := map[string]string{
		"format":    "OSyncObjFormat*",
		"input":     "const char*",
		"insize":    "unsigned int",
		"error":     "OSyncError**",
		"user_data": "void*",
	}
	for name, typ := range want {
		s, ok := table.Slot(name)
		if !ok {
			t.Errorf("slot %s not bound", name)
			continue
		}
		if s.Type != typ {
			t.Errorf("slot %s type = %q, want %q", name, s.Type, typ)
		}
	}

	input, _ := table.Slot("input")
	if input.Kind != KindBuffer || input.Size != "insize" {
		t.Errorf("input = %+v, want buffer sized by insize", input)
	}
	if diff := cmp.Diff([]string{"format", "input", "insize", "error", "user_data"}, table.Names()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(table.Out) != 2 || table.Out[0].Kind != KindOutBuffer || table.Out[1].Kind != KindOutSize {
		t.Errorf("Out = %+v", table.Out)
	}
}

func TestBind_WordBoundary(t *testing.T) {
	text := "OSyncPlugin *plugin, OSyncPluginInfo *pluginInfo, void *data"

	table, err := Bind(text, "info, plugin, data", "")
	if err != nil {
		t.Fatal(err)
	}
	info, _ := table.Slot("info")
	if info.Kind != KindUnknown || info.Type != "" {
		t.Fatalf("info bound to %+v; it must not match inside pluginInfo", info)
	}
	plugin, _ := table.Slot("plugin")
	if plugin.Type != "OSyncPlugin*" || plugin.Kind != KindHandle {
		t.Fatalf("plugin = %+v", plugin)
	}

	snake := MustBind("OSyncPlugin *plugin, OSyncPluginInfo *plugin_info, void *myinfo", "info", "")
	if s := snake.In[0]; s.Kind != KindUnknown || s.Type != "" {
		t.Fatalf("info bound to %+v inside a longer identifier", s)
	}

	sig, _ := Parse(text)
	if typ, ok := sig.Lookup("pluginInfo"); !ok || typ != "OSyncPluginInfo*" {
		t.Fatalf("Lookup(pluginInfo) = %q, %v", typ, ok)
	}
}

func TestLookup(t *testing.T) {
	sig, err := Parse("void (OSyncObjTypeSink *sink, OSyncPluginInfo *info, OSyncContext *ctx, osync_bool slow_sync, void *data)")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"sink", "OSyncObjTypeSink*", true},
		{"info", "OSyncPluginInfo*", true},
		{"ctx", "OSyncContext*", true},
		{"slow_sync", "osync_bool", true},
		{"data", "void*", true},
		{"sync", "", false},
		{"Sink", "", false},
		{"OSyncContext", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sig.Lookup(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParse(t *testing.T) {
	sig, err := Parse("char * (OSyncObjFormat *format, const char *data, unsigned int size, void *user_data, OSyncError **error)")
	if err != nil {
		t.Fatal(err)
	}
	if sig.Result != "char*" {
		t.Errorf("Result = %q", sig.Result)
	}
	want := []Param{
		{Name: "format", Type: "OSyncObjFormat*"},
		{Name: "data", Type: "const char*"},
		{Name: "size", Type: "unsigned int"},
		{Name: "user_data", Type: "void*"},
		{Name: "error", Type: "OSyncError**"},
	}
	if diff := cmp.Diff(want, sig.Params); diff != "" {
		t.Errorf("Params mismatch (-want +got):\n%s", diff)
	}

	empty, err := Parse("int (void)")
	if err != nil || len(empty.Params) != 0 || empty.Result != "int" {
		t.Errorf("Parse(int (void)) = %+v, %v", empty, err)
	}

	if _, err := Parse("void ) broken ("); err == nil {
		t.Error("expected error for unbalanced parentheses")
	}
	if _, err := Parse("OSyncPlugin *"); err == nil {
		t.Error("expected error for parameter without a name")
	}
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"const char *":     "const char*",
		" OSyncError * * ": "OSyncError**",
		"unsigned   int":   "unsigned int",
		"void*":            "void*",
	}
	for in, want := range tests {
		if got := NormalizeType(in); got != want {
			t.Errorf("NormalizeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		cType string
		want  Kind
	}{
		{"OSyncObjFormat*", KindHandle},
		{"const OSyncChange *", KindHandle},
		{"OSyncObjFormat**", KindUnknown},
		{"OSyncSomethingNew*", KindUnknown},
		{"osync_bool", KindBool},
		{"osync_bool*", KindOutBool},
		{"const char*", KindBuffer},
		{"char**", KindOutBuffer},
		{"unsigned int*", KindOutSize},
		{"time_t", KindInt},
		{"void*", KindUserData},
		{"OSyncError**", KindError},
		{"double", KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.cType); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.cType, got, tt.want)
		}
	}

	r := NewRules().Native("OSyncSomethingNew").Map("double", KindInt)
	if r.Classify("OSyncSomethingNew*") != KindHandle || r.Classify("double") != KindInt {
		t.Error("custom rules not applied")
	}
}

func TestDeclareMatchesBind(t *testing.T) {
	bound := MustBind(
		"osync_bool (OSyncObjFormat *format, const char *uid, const char *input, unsigned int inputsize, char **newuid, char **output, unsigned int *outputsize, osync_bool *dirty, void *user_data, OSyncError **error)",
		"format, uid, input, user_data", "newuid, output, outputsize, dirty")

	declared := Declare("osync_bool", []Param{
		{Name: "format", Type: "OSyncObjFormat *"},
		{Name: "uid", Type: "const char *"},
		{Name: "input", Type: "const char *", Size: "inputsize"},
		{Name: "user_data", Type: "void *"},
	}, []Param{
		{Name: "newuid", Type: "char **"},
		{Name: "output", Type: "char **", Size: "outputsize"},
		{Name: "outputsize", Type: "unsigned int *"},
		{Name: "dirty", Type: "osync_bool *"},
	})

	if diff := cmp.Diff(declared, bound); diff != "" {
		t.Fatalf("Declare and Bind disagree (-declared +bound):\n%s", diff)
	}
	uid, _ := bound.Slot("uid")
	if uid.Kind != KindString {
		t.Errorf("uid kind = %v, want string", uid.Kind)
	}
}

func TestTable_Bind(t *testing.T) {
	table := MustBind("void (OSyncObjTypeSink *sink, osync_bool slow_sync, void *data)", "sink, slow_sync, data", "")

	slots, err := table.Bind("sink-object", true, syncbridge.Ref(9))
	if err != nil {
		t.Fatal(err)
	}
	if slots[1].Value != true || slots[2].Value != syncbridge.Ref(9) {
		t.Fatalf("values not bound: %+v", slots)
	}
	if table.In[1].Value != nil {
		t.Fatal("Bind must not mutate the table")
	}

	_, err = table.Bind("only one")
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseBind, Kind: bridgeerrors.KindInvalidInput}) {
		t.Fatalf("arity error = %v", err)
	}
}

func TestTable_Core(t *testing.T) {
	table := MustBind(copyPrototype, "format, input, insize, error, user_data", "output, outpsize")
	want := []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32}
	if diff := cmp.Diff(want, table.Core()); diff != "" {
		t.Errorf("core types mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		kind Kind
		want []api.ValueType
	}{
		{KindHandle, []api.ValueType{api.ValueTypeI32}},
		{KindBool, []api.ValueType{api.ValueTypeI32}},
		{KindString, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}},
		{KindInt, []api.ValueType{api.ValueTypeI64}},
		{KindError, nil},
		{KindOutBuffer, nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Slot{Kind: tt.kind}.Core()); diff != "" {
				t.Errorf("Core mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTable_ABI(t *testing.T) {
	table := MustBind(copyPrototype, "format, input, user_data", "")
	want := []wit.Type{wit.U32{}, wit.String{}, wit.U32{}}
	got := table.ABI()
	if len(got) != len(want) {
		t.Fatalf("ABI = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ABI[%d] = %T, want %T", i, got[i], want[i])
		}
	}
}
