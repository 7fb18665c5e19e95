package resource

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

// Table maps host objects to guest handles. Inserting a comparable value
// that is already present returns its existing handle and bumps its
// reference count, so a native object keeps one identity on the guest side.
type Table struct {
	index     map[any]Handle
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value    any
	typeName string
	refs     uint32
	valid    bool
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		index:    make(map[any]Handle),
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Insert returns the handle for value, allocating one if needed.
// A value already registered under a different type name is an error.
func (t *Table) Insert(typeName string, value any) (Handle, error) {
	if value == nil {
		return 0, nil
	}
	indexed := hashable(value)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	if indexed {
		if h, ok := t.index[value]; ok {
			e := &t.entries[h-1]
			if e.typeName != typeName {
				t.mu.Unlock()
				return 0, fmt.Errorf("host object already exposed as %s, not %s", e.typeName, typeName)
			}
			e.refs++
			t.mu.Unlock()
			t.notify(Event{Type: EventRetained, Handle: h, TypeName: typeName, Value: value})
			return h, nil
		}
	}

	e := entry{value: value, typeName: typeName, refs: 1, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	if indexed {
		t.index[value] = h
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, TypeName: typeName, Value: value})
	return h, nil
}

// Get retrieves a host object by handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(h)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetTyped retrieves a host object only if it was exposed under typeName.
func (t *Table) GetTyped(h Handle, typeName string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(h)
	if !ok || e.typeName != typeName {
		return nil, false
	}
	return e.value, true
}

// TypeName returns the type name a handle was exposed under.
func (t *Table) TypeName(h Handle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(h)
	if !ok {
		return "", false
	}
	return e.typeName, true
}

// Lookup returns the handle of an already exposed host object.
func (t *Table) Lookup(value any) (Handle, bool) {
	if value == nil || !hashable(value) {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.index[value]
	return h, ok
}

// Release drops one reference. The handle is freed when the last reference
// goes, and the value is returned with true in that case.
func (t *Table) Release(h Handle) (any, bool) {
	t.mu.Lock()
	e, ok := t.lookup(h)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	if e.refs > 1 {
		e.refs--
		t.mu.Unlock()
		return nil, false
	}
	value, typeName := t.drop(h)
	t.mu.Unlock()

	t.finish(h, typeName, value)
	return value, true
}

// Remove frees a handle regardless of its reference count.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	if _, ok := t.lookup(h); !ok {
		t.mu.Unlock()
		return nil, false
	}
	value, typeName := t.drop(h)
	t.mu.Unlock()

	t.finish(h, typeName, value)
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live handles.
func (t *Table) Each(fn func(Handle, string, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.typeName, e.value) {
				break
			}
		}
	}
}

// Close frees every handle and stops accepting inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = nil
	t.freeList = nil
	t.index = nil
	t.mu.Unlock()

	for i, e := range entries {
		if e.valid {
			t.finish(Handle(i+1), e.typeName, e.value)
		}
	}
	return nil
}

func (t *Table) lookup(h Handle) (*entry, bool) {
	if h == 0 || int(h) > len(t.entries) {
		return nil, false
	}
	e := &t.entries[h-1]
	if !e.valid {
		return nil, false
	}
	return e, true
}

// drop invalidates h; t.mu must be held.
func (t *Table) drop(h Handle) (any, string) {
	e := &t.entries[h-1]
	value, typeName := e.value, e.typeName
	if hashable(value) && t.index[value] == h {
		delete(t.index, value)
	}
	*e = entry{}
	t.freeList = append(t.freeList, h)
	return value, typeName
}

func (t *Table) finish(h Handle, typeName string, value any) {
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: h, TypeName: typeName, Value: value})
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// hashable reports whether value can key the identity index. Comparable
// types holding uncomparable dynamic values panic when hashed.
func hashable(value any) (ok bool) {
	if value == nil || !reflect.TypeOf(value).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{value: {}}
	return true
}
