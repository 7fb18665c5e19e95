package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	bridgeerrors "github.com/wippyai/syncbridge/errors"
)

type guestRef uint32

func TestRegistry_RoundTrip(t *testing.T) {
	reg := New(nil)
	owner := NewOwner()

	if err := reg.Set(owner, "connect_func", guestRef(7)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := reg.Get(owner, "connect_func"); got != guestRef(7) {
		t.Fatalf("Get = %v, want 7", got)
	}

	if err := reg.Set(owner, "connect_func", nil); err != nil {
		t.Fatalf("Set(nil) failed: %v", err)
	}
	if got := reg.Get(owner, "connect_func"); got != nil {
		t.Fatalf("Get after Set(nil) = %v, want nil", got)
	}

	if got := reg.Get(NewOwner(), "connect_func"); got != nil {
		t.Fatalf("Get on unknown owner = %v, want nil", got)
	}
	if _, ok := reg.Lookup(owner, "read_func"); ok {
		t.Fatal("Lookup on unknown key should report absent")
	}
}

func TestRegistry_Clear(t *testing.T) {
	pins := NewPinTable()
	reg := New(pins)
	owner := NewOwner()
	other := NewOwner()

	for i, key := range []string{"connect_func", "read_func", "data"} {
		if err := reg.Set(owner, key, guestRef(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Set(other, "data", guestRef(100)); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"connect_func", "data", "read_func"}, reg.Keys(owner)); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}

	reg.Clear(owner)
	for _, key := range []string{"connect_func", "read_func", "data"} {
		if got := reg.Get(owner, key); got != nil {
			t.Errorf("Get(%s) after Clear = %v", key, got)
		}
	}
	if reg.Get(other, "data") != guestRef(100) {
		t.Error("Clear touched another owner")
	}
	if pins.Live() != 1 {
		t.Errorf("Live = %d, want 1", pins.Live())
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}

	reg.Clear(owner)
}

func TestRegistry_NoPinLeak(t *testing.T) {
	pins := NewPinTable()
	reg := New(pins)
	owner := NewOwner()

	const n = 50
	for i := 0; i < n; i++ {
		if err := reg.Set(owner, "commit_func", guestRef(i+1)); err != nil {
			t.Fatal(err)
		}
	}

	if pins.Live() != 1 {
		t.Fatalf("Live = %d after %d replacements, want 1", pins.Live(), n)
	}
	if pins.Count(guestRef(n)) != 1 {
		t.Fatalf("Count(last) = %d, want 1", pins.Count(guestRef(n)))
	}
	if pins.Count(guestRef(1)) != 0 {
		t.Fatalf("Count(first) = %d, want 0", pins.Count(guestRef(1)))
	}

	reg.Set(owner, "commit_func", nil)
	if pins.Live() != 0 {
		t.Fatalf("Live = %d after Set(nil), want 0", pins.Live())
	}
}

func TestRegistry_SetSameValue(t *testing.T) {
	pins := NewPinTable()
	reg := New(pins)
	owner := NewOwner()

	reg.Set(owner, "data", guestRef(3))
	reg.Set(owner, "data", guestRef(3))
	if pins.Count(guestRef(3)) != 1 {
		t.Fatalf("Count = %d, want 1", pins.Count(guestRef(3)))
	}
}

func TestRegistry_SharedValue(t *testing.T) {
	pins := NewPinTable()
	reg := New(pins)
	a, b := NewOwner(), NewOwner()

	reg.Set(a, "data", "shared")
	reg.Set(b, "data", "shared")
	if pins.Count("shared") != 2 {
		t.Fatalf("Count = %d, want 2", pins.Count("shared"))
	}
	reg.Clear(a)
	if pins.Count("shared") != 1 {
		t.Fatalf("Count after Clear = %d, want 1", pins.Count("shared"))
	}
}

func TestRegistry_NotComparable(t *testing.T) {
	type boxed struct{ v any }

	tests := []struct {
		name  string
		value any
	}{
		{"slice", []byte("x")},
		{"slice in interface field", boxed{[]int{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pins := NewPinTable()
			reg := New(pins)
			err := reg.Set(NewOwner(), "data", tt.value)
			if err == nil {
				t.Fatal("expected error for uncomparable value")
			}
			if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseRegistry, Kind: bridgeerrors.KindInvalidInput}) {
				t.Fatalf("unexpected error: %v", err)
			}
			if reg.Len() != 0 || pins.Live() != 0 {
				t.Fatalf("len = %d, live = %d", reg.Len(), pins.Live())
			}
		})
	}
}

func TestPinTable_Uncomparable(t *testing.T) {
	type boxed struct{ v any }
	pins := NewPinTable()
	v := boxed{[]int{1}}

	pins.Pin(v)
	pins.Unpin(v)
	if pins.Count(v) != 0 || pins.Live() != 0 {
		t.Fatalf("count = %d, live = %d", pins.Count(v), pins.Live())
	}
}

func TestRegistry_Attach(t *testing.T) {
	reg := New(nil)
	owner := NewOwner()

	if reg.Attached(owner) {
		t.Fatal("fresh owner should not be attached")
	}
	if err := reg.Attach(owner); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	err := reg.Attach(owner)
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseRegistry, Kind: bridgeerrors.KindAlreadyInitialized}) {
		t.Fatalf("second Attach = %v, want already_initialized", err)
	}

	reg.Set(owner, "data", guestRef(1))
	reg.Set(owner, "data", nil)
	if !reg.Attached(owner) {
		t.Fatal("removing the last value should keep the owner attached")
	}

	reg.Clear(owner)
	if reg.Attached(owner) {
		t.Fatal("Clear should detach")
	}
	if err := reg.Attach(owner); err != nil {
		t.Fatalf("Attach after Clear failed: %v", err)
	}
}

func TestRegistry_Observer(t *testing.T) {
	reg := New(nil)
	owner := NewOwner()

	var got []EventType
	reg.Subscribe(ObserverFunc(func(e Event) {
		if e.Owner != owner {
			t.Errorf("event for wrong owner %v", e.Owner)
		}
		got = append(got, e.Type)
	}))

	reg.Set(owner, "read_func", guestRef(1))
	reg.Set(owner, "read_func", guestRef(2))
	reg.Clear(owner)

	want := []EventType{EventPinned, EventUnpinned, EventPinned, EventUnpinned, EventCleared}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	pins := NewPinTable()
	reg := New(pins)
	owners := make([]Owner, 10)
	for i := range owners {
		owners[i] = NewOwner()
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := owners[i%len(owners)]
			key := fmt.Sprintf("slot%d", i%3)
			reg.Set(owner, key, guestRef(i))
			reg.Get(owner, key)
			if i%7 == 0 {
				reg.Clear(owner)
			}
		}(i)
	}
	wg.Wait()

	if pins.Live() != reg.Len() {
		t.Fatalf("Live = %d, Len = %d; every stored value should hold exactly one pin", pins.Live(), reg.Len())
	}
}

func TestPinTable_Hooks(t *testing.T) {
	pins := NewPinTable()
	var retained, released []any
	pins.OnRetain(func(v any) { retained = append(retained, v) })
	pins.OnRelease(func(v any) { released = append(released, v) })

	pins.Pin(guestRef(1))
	pins.Pin(guestRef(1))
	pins.Unpin(guestRef(1))
	if len(released) != 0 {
		t.Fatal("released while still pinned")
	}
	pins.Unpin(guestRef(1))
	pins.Unpin(guestRef(1))
	pins.Pin(nil)
	if diff := cmp.Diff([]any{guestRef(1)}, released); diff != "" {
		t.Fatalf("released mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{guestRef(1)}, retained); diff != "" {
		t.Fatalf("retained mismatch (-want +got):\n%s", diff)
	}
}

func TestOwner(t *testing.T) {
	a, b := NewOwner(), NewOwner()
	if a == b {
		t.Fatal("NewOwner returned duplicate keys")
	}
	if a.Handle()&1 == 0 {
		t.Fatal("synthetic owner missing marker bit")
	}
	if OwnerFromHandle(a.Handle()) != a {
		t.Fatal("handle round trip failed")
	}

	if v, ok := a.Object(); !ok || v != nil {
		t.Fatalf("fresh owner bound to %v, %v", v, ok)
	}
	a.Bind(guestRef(7))
	if v, _ := OwnerFromHandle(a.Handle()).Object(); v != guestRef(7) {
		t.Fatalf("Object = %v", v)
	}
	a.Release()
	if _, ok := a.Object(); ok {
		t.Fatal("released owner still bound")
	}
	if !strings.HasPrefix(a.String(), "owner(0x") {
		t.Errorf("String = %q", a.String())
	}

	var zero Owner
	if !zero.IsZero() || a.IsZero() {
		t.Fatal("IsZero mismatch")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unaligned pointer")
		}
	}()
	buf := make([]byte, 8)
	_ = OwnerFromPtr(unsafe.Pointer(&buf[1]))
}
