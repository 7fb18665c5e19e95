package registry

import (
	"sync"
)

// Pinner keeps confined-runtime values reachable while native code holds them.
type Pinner interface {
	Pin(v any)
	Unpin(v any)
}

// PinTable is a reference-counting Pinner. Values must be usable as map
// keys; others are ignored. A value is live while its count is above zero;
// Unpin of a value that is not pinned is ignored.
type PinTable struct {
	counts    map[any]int
	onRetain  func(v any)
	onRelease func(v any)
	mu        sync.Mutex
}

// NewPinTable creates an empty pin table.
func NewPinTable() *PinTable {
	return &PinTable{counts: make(map[any]int)}
}

// OnRetain installs fn to be called whenever a value becomes pinned.
// fn runs without the table lock held.
func (p *PinTable) OnRetain(fn func(v any)) {
	p.mu.Lock()
	p.onRetain = fn
	p.mu.Unlock()
}

// OnRelease installs fn to be called whenever a value's count drops to zero.
// fn runs without the table lock held.
func (p *PinTable) OnRelease(fn func(v any)) {
	p.mu.Lock()
	p.onRelease = fn
	p.mu.Unlock()
}

// Pin increments the pin count of v.
func (p *PinTable) Pin(v any) {
	if !pinnable(v) {
		return
	}
	p.mu.Lock()
	p.counts[v]++
	var fn func(any)
	if p.counts[v] == 1 {
		fn = p.onRetain
	}
	p.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// Unpin decrements the pin count of v.
func (p *PinTable) Unpin(v any) {
	if !pinnable(v) {
		return
	}
	p.mu.Lock()
	n, ok := p.counts[v]
	if !ok {
		p.mu.Unlock()
		return
	}
	var fn func(any)
	if n <= 1 {
		delete(p.counts, v)
		fn = p.onRelease
	} else {
		p.counts[v] = n - 1
	}
	p.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// Count returns the current pin count of v.
func (p *PinTable) Count(v any) int {
	if !pinnable(v) {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[v]
}

// Live returns the number of distinct values currently pinned.
func (p *PinTable) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}

var _ Pinner = (*PinTable)(nil)
