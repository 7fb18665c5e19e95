package registry

import (
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/syncbridge/errors"
)

// EventType identifies a registry lifecycle notification.
type EventType uint8

const (
	EventPinned EventType = iota
	EventUnpinned
	EventCleared
)

// Event describes one registry transition.
type Event struct {
	Value any
	Key   string
	Owner Owner
	Type  EventType
}

// Observer receives registry events after the registry lock is released.
type Observer interface {
	OnRegistryEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnRegistryEvent(e Event) { f(e) }

// Registry maps (owner, key) pairs to pinned confined-runtime values.
// The nil value is the empty sentinel. All operations are serialized by the
// registry's own lock.
type Registry struct {
	owners    map[Owner]*record
	pinner    Pinner
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

type record struct {
	values   map[string]any
	attached bool
}

// New creates a registry pinning through p. A nil p gets a fresh PinTable.
func New(p Pinner) *Registry {
	if p == nil {
		p = NewPinTable()
	}
	return &Registry{
		owners: make(map[Owner]*record),
		pinner: p,
	}
}

// Pinner returns the pinner backing the registry.
func (r *Registry) Pinner() Pinner {
	return r.pinner
}

// Set stores value under (owner, key). A nil value removes and unpins any
// existing entry. A prior value under the same key is unpinned before the
// new one takes its place.
func (r *Registry) Set(owner Owner, key string, value any) error {
	if value != nil && !pinnable(value) {
		return errors.New(errors.PhaseRegistry, errors.KindInvalidInput).
			Path(owner.String(), key).
			Value(value).
			Detail("value of type %T cannot be pinned", value).
			Build()
	}

	var events []Event

	r.mu.Lock()
	rec := r.owners[owner]
	if rec == nil {
		if value == nil {
			r.mu.Unlock()
			return nil
		}
		rec = &record{values: make(map[string]any)}
		r.owners[owner] = rec
	}

	if old, ok := rec.values[key]; ok {
		if old == value {
			r.mu.Unlock()
			return nil
		}
		delete(rec.values, key)
		r.pinner.Unpin(old)
		events = append(events, Event{Type: EventUnpinned, Owner: owner, Key: key, Value: old})
	}

	if value != nil {
		r.pinner.Pin(value)
		rec.values[key] = value
		events = append(events, Event{Type: EventPinned, Owner: owner, Key: key, Value: value})
	} else if len(rec.values) == 0 && !rec.attached {
		delete(r.owners, owner)
	}
	r.mu.Unlock()

	r.notify(events)
	return nil
}

// Get returns the value under (owner, key), or nil if either is unknown.
func (r *Registry) Get(owner Owner, key string) any {
	v, _ := r.Lookup(owner, key)
	return v
}

// Lookup is Get with an explicit presence flag.
func (r *Registry) Lookup(owner Owner, key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.owners[owner]
	if rec == nil {
		return nil, false
	}
	v, ok := rec.values[key]
	return v, ok
}

// Clear removes and unpins every value stored for owner and forgets the
// owner entirely, including its attached state.
func (r *Registry) Clear(owner Owner) {
	r.mu.Lock()
	rec := r.owners[owner]
	if rec == nil {
		r.mu.Unlock()
		return
	}
	delete(r.owners, owner)

	keys := sortedKeys(rec.values)
	events := make([]Event, 0, len(keys)+1)
	for _, k := range keys {
		v := rec.values[k]
		r.pinner.Unpin(v)
		events = append(events, Event{Type: EventUnpinned, Owner: owner, Key: k, Value: v})
	}
	events = append(events, Event{Type: EventCleared, Owner: owner})
	r.mu.Unlock()

	r.notify(events)
}

// Attach marks owner as initialized for use by the confined runtime.
// Attaching the same owner twice fails until it is cleared.
func (r *Registry) Attach(owner Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.owners[owner]
	if rec == nil {
		rec = &record{values: make(map[string]any)}
		r.owners[owner] = rec
	}
	if rec.attached {
		return errors.AlreadyInitialized(errors.PhaseRegistry, "owner")
	}
	rec.attached = true
	return nil
}

// Attached reports whether owner has been attached and not cleared since.
func (r *Registry) Attached(owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.owners[owner]
	return rec != nil && rec.attached
}

// Keys returns the keys currently set for owner in sorted order.
func (r *Registry) Keys(owner Owner) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.owners[owner]
	if rec == nil {
		return nil
	}
	return sortedKeys(rec.values)
}

// Len returns the total number of stored entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.owners {
		n += len(rec.values)
	}
	return n
}

// Subscribe adds an observer for registry events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, e := range events {
		for _, o := range r.observers {
			o.OnRegistryEvent(e)
		}
	}
}

// pinnable reports whether v can be used as a map key. A comparable type
// can still hold an uncomparable dynamic value, such as an interface field
// set to a slice, which only shows up as a panic when hashed.
func pinnable(v any) (ok bool) {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{v: {}}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
