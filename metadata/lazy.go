package metadata

import (
	"sync"
	"sync/atomic"
)

// once holds a value computed exactly once. Concurrent first readers block on
// the mutex until the value is published; later reads take no lock. The init
// function must not read the same cell.
type once[T any] struct {
	val  T
	mu   sync.Mutex
	done atomic.Bool
}

func (o *once[T]) get(init func() T) T {
	if o.done.Load() {
		return o.val
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.done.Load() {
		o.val = init()
		o.done.Store(true)
	}
	return o.val
}

// loaded reports whether the value has been computed.
func (o *once[T]) loaded() bool {
	return o.done.Load()
}

// cell holds a value published by compare-and-swap. Compute runs without a
// lock and may run more than once under contention or re-entry; the first
// published value wins and every reader returns it. Used where compute may
// reach back into the same cell through a cyclic reference.
type cell[T any] struct {
	p atomic.Pointer[T]
}

func (c *cell[T]) get(compute func() T) T {
	if v := c.p.Load(); v != nil {
		return *v
	}
	v := compute()
	c.p.CompareAndSwap(nil, &v)
	return *c.p.Load()
}

func (c *cell[T]) peek() (T, bool) {
	if v := c.p.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}

// rowCache maps 1-based table rows to objects created on first request.
// Creation happens outside any lock; the first published object wins so that
// a row always yields the same object.
type rowCache[T any] struct {
	items []atomic.Pointer[T]
}

func newRowCache[T any](rows uint32) rowCache[T] {
	return rowCache[T]{items: make([]atomic.Pointer[T], rows)}
}

func (c *rowCache[T]) get(row uint32, create func() *T) (*T, bool) {
	if row == 0 || int(row) > len(c.items) {
		return nil, false
	}
	slot := &c.items[row-1]
	if v := slot.Load(); v != nil {
		return v, true
	}
	slot.CompareAndSwap(nil, create())
	return slot.Load(), true
}
