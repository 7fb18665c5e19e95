package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseMarshal,
				Kind:   KindTypeMismatch,
				Path:   []string{"copy_func", "input"},
				Slot:   "copy_func",
				CType:  "const char*",
				Detail: "cannot convert",
			},
			contains: []string{"[marshal]", "type_mismatch", "copy_func.input", "slot copy_func", "const char*", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRegistry,
				Kind:  KindNotFound,
			},
			contains: []string{"[registry]", "not_found"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCall,
				Kind:   KindAllocation,
				Detail: "memory full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[call]", "allocation", "memory full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseBoot,
		Kind:  KindInstantiation,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseCall,
		Kind:  KindMissingCallback,
		Slot:  "connect_func",
	}

	if !errors.Is(err, &Error{Phase: PhaseCall, Kind: KindMissingCallback}) {
		t.Error("errors.Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseBind, Kind: KindMissingCallback}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindClosed}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseMarshal, KindTypeMismatch).
		Path("compare_func", "leftdata").
		CType("const char*").
		Slot("compare_func").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "[]byte", "int").
		Build()

	if err.Phase != PhaseMarshal || err.Kind != KindTypeMismatch {
		t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[1] != "leftdata" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.CType != "const char*" || err.Slot != "compare_func" {
		t.Errorf("CType=%q Slot=%q", err.CType, err.Slot)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected []byte, got int" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"TypeMismatch", TypeMismatch(PhaseMarshal, []string{"x"}, "osync_bool", "str"), KindTypeMismatch},
		{"AllocationFailed", AllocationFailed(PhaseMarshal, 1024, 8), KindAllocation},
		{"Unsupported", Unsupported(PhaseHost, "conversion registration"), KindUnsupported},
		{"OutOfBounds", OutOfBounds(PhaseResult, nil, 10, 5), KindOutOfBounds},
		{"NotInitialized", NotInitialized(PhaseRegistry, "owner"), KindNotInitialized},
		{"AlreadyInitialized", AlreadyInitialized(PhaseRegistry, "owner"), KindAlreadyInitialized},
		{"NotFound", NotFound(PhaseLoad, "export", "get_sync_info"), KindNotFound},
		{"MissingCallback", MissingCallback("sink", "read_func"), KindMissingCallback},
		{"Closed", Closed(PhaseCall, "worker"), KindClosed},
		{"Timeout", Timeout(PhaseCall, "call", nil), KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if d := AllocationFailed(PhaseMarshal, 1024, 8).Detail; !strings.Contains(d, "1024") {
		t.Errorf("Detail = %v, should contain size", d)
	}
	if d := AlreadyInitialized(PhaseRegistry, "owner").Detail; d != "init called twice for the same owner" {
		t.Errorf("Detail = %q", d)
	}
}
