package resource

import (
	"errors"
	"sync"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

type nativeObject struct {
	name string
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()
	format := &nativeObject{name: "vcard30"}

	h, err := table.Insert("OSyncObjFormat", format)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != format {
		t.Fatalf("Get = %v, %v", val, ok)
	}

	if _, ok := table.GetTyped(h, "OSyncObjFormat"); !ok {
		t.Fatal("GetTyped with correct type failed")
	}
	if _, ok := table.GetTyped(h, "OSyncObjTypeSink"); ok {
		t.Fatal("GetTyped with wrong type should fail")
	}
	if name, _ := table.TypeName(h); name != "OSyncObjFormat" {
		t.Fatalf("TypeName = %q", name)
	}

	val, ok = table.Remove(h)
	if !ok || val != format {
		t.Fatalf("Remove = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_Identity(t *testing.T) {
	table := NewTable()
	sink := &nativeObject{name: "contact"}

	h1, _ := table.Insert("OSyncObjTypeSink", sink)
	h2, _ := table.Insert("OSyncObjTypeSink", sink)
	if h1 != h2 {
		t.Fatalf("same object got two handles: %d, %d", h1, h2)
	}
	if got, ok := table.Lookup(sink); !ok || got != h1 {
		t.Fatalf("Lookup = %d, %v", got, ok)
	}

	if _, err := table.Insert("OSyncPlugin", sink); err == nil {
		t.Fatal("expected type conflict error")
	}

	if _, freed := table.Release(h1); freed {
		t.Fatal("first Release should keep the handle alive")
	}
	if _, ok := table.Get(h1); !ok {
		t.Fatal("handle gone after one of two releases")
	}
	if _, freed := table.Release(h1); !freed {
		t.Fatal("second Release should free the handle")
	}
	if _, ok := table.Lookup(sink); ok {
		t.Fatal("Lookup should fail after free")
	}
}

func TestTable_NilAndUncomparable(t *testing.T) {
	table := NewTable()

	h, err := table.Insert("OSyncChange", nil)
	if err != nil || h != 0 {
		t.Fatalf("Insert(nil) = %d, %v; want 0, nil", h, err)
	}

	buf := []byte("raw")
	h1, _ := table.Insert("OSyncData", buf)
	h2, _ := table.Insert("OSyncData", buf)
	if h1 == h2 {
		t.Fatal("uncomparable values are not deduplicated")
	}
	if _, ok := table.Remove(h1); !ok {
		t.Fatal("Remove of uncomparable value failed")
	}

	type boxed struct{ v any }
	h3, err := table.Insert("OSyncData", boxed{[]int{1}})
	if err != nil || h3 == 0 {
		t.Fatalf("Insert(boxed slice) = %d, %v", h3, err)
	}
	if _, ok := table.Lookup(boxed{[]int{1}}); ok {
		t.Fatal("boxed slice should not be indexed")
	}
	if _, ok := table.Remove(h3); !ok {
		t.Fatal("Remove of boxed slice failed")
	}
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable()

	h1, _ := table.Insert("OSyncChange", &nativeObject{name: "a"})
	table.Remove(h1)
	h2, _ := table.Insert("OSyncChange", &nativeObject{name: "b"})
	if h1 != h2 {
		t.Fatalf("expected freed handle %d to be reused, got %d", h1, h2)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	obj := &nativeObject{}
	h, _ := table.Insert("OSyncPlugin", obj)
	table.Insert("OSyncPlugin", obj)
	table.Remove(h)

	want := []EventType{EventCreated, EventRetained, EventDropped}
	if len(obs.events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(obs.events))
	}
	for i, e := range obs.events {
		if e.Type != want[i] || e.Handle != h {
			t.Errorf("event %d = %+v", i, e)
		}
	}

	table.Unsubscribe(obs)
	table.Insert("OSyncPlugin", &nativeObject{})
	if len(obs.events) != len(want) {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_CloseDrops(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	table.Insert("OSyncContext", d)

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Expected Drop() once, called %d times", d.count)
	}
	if _, err := table.Insert("OSyncContext", &dropCounter{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close = %v, want ErrClosed", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	for i := 0; i < 3; i++ {
		table.Insert("OSyncChange", &nativeObject{})
	}

	seen := 0
	table.Each(func(h Handle, typeName string, v any) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("Each visited %d, want early stop at 2", seen)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := table.Insert("OSyncChange", &nativeObject{})
			if err != nil {
				t.Errorf("Insert failed: %v", err)
				return
			}
			table.Get(h)
			table.Release(h)
		}()
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Fatalf("Len = %d, want 0", table.Len())
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	table := NewTable()
	for _, h := range []Handle{0, 1, 99} {
		if _, ok := table.Get(h); ok {
			t.Errorf("Get(%d) should fail", h)
		}
		if _, ok := table.Release(h); ok {
			t.Errorf("Release(%d) should fail", h)
		}
	}
}
