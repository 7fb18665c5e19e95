package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestRaised_Format(t *testing.T) {
	tests := []struct {
		name string
		r    Raised
		want string
	}{
		{
			name: "top frame",
			r:    Raised{Class: "RuntimeError", Message: "boom", Frames: []string{"foo.rb:10"}},
			want: "foo.rb:10: boom (RuntimeError)",
		},
		{
			name: "remaining frames",
			r: Raised{
				Class:   "Trap",
				Message: "unreachable",
				Frames:  []string{"plugin.fail()", "plugin.connect(i32)", "plugin.dispatch()"},
			},
			want: "plugin.fail(): unreachable (Trap)\nplugin.connect(i32)\nplugin.dispatch()",
		},
		{
			name: "no frames",
			r:    Raised{Class: "ArgumentError", Message: "bad"},
			want: "bad (ArgumentError)",
		},
		{
			name: "no class",
			r:    Raised{Message: "bad", Frames: []string{"a"}},
			want: "a: bad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Format(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCall(t *testing.T) {
	raised := &Raised{Class: "RuntimeError", Message: "boom", Frames: []string{"foo.rb:10", "foo.rb:3"}}
	cause := fmt.Errorf("guest call: %w", raised)

	ce := Call(CodeGeneric, cause, "Failed to call %s!", "connect_func")
	if ce.Code != CodeGeneric {
		t.Errorf("Code = %v", ce.Code)
	}
	if ce.Backtrace != "foo.rb:10: boom (RuntimeError)\nfoo.rb:3" {
		t.Errorf("Backtrace = %q", ce.Backtrace)
	}
	if want := "Failed to call connect_func!\nfoo.rb:10: boom (RuntimeError)\nfoo.rb:3"; ce.Error() != want {
		t.Errorf("Error() = %q, want %q", ce.Error(), want)
	}

	var r *Raised
	if !errors.As(ce, &r) || r != raised {
		t.Error("errors.As should reach the Raised cause")
	}
	if !errors.Is(ce, &CallError{Code: CodeGeneric}) {
		t.Error("errors.Is should match by code")
	}
	if !errors.Is(ce, &CallError{}) {
		t.Error("CodeNone target should match any CallError")
	}
	if errors.Is(ce, &CallError{Code: CodeInitialization}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestCall_PlainCause(t *testing.T) {
	ce := Call(CodeInitialization, errors.New("no such export"), "Failed to call initialize_func!")
	if ce.Backtrace != "no such export" {
		t.Errorf("Backtrace = %q", ce.Backtrace)
	}
	if Call(CodeGeneric, nil, "The result should be a String!").Error() != "The result should be a String!" {
		t.Error("message-only CallError should render the message alone")
	}
}

func TestAsCall(t *testing.T) {
	if AsCall(nil, CodeGeneric, "x") != nil {
		t.Fatal("AsCall(nil) should be nil")
	}
	orig := Call(CodeInitialization, nil, "first")
	if got := AsCall(fmt.Errorf("wrapped: %w", orig), CodeGeneric, "second"); got != orig {
		t.Errorf("AsCall should return the existing CallError, got %v", got)
	}
	got := AsCall(errors.New("plain"), CodeGeneric, "Failed to call %s!", "read_func")
	if got.Code != CodeGeneric || got.Message != "Failed to call read_func!" {
		t.Errorf("AsCall = %+v", got)
	}
}

func TestCode_String(t *testing.T) {
	if CodeGeneric.String() != "GENERIC" || CodeInitialization.String() != "INITIALIZATION" {
		t.Error("unexpected code names")
	}
	if Code(9).String() != "Code(9)" {
		t.Errorf("Code(9) = %s", Code(9))
	}
}
