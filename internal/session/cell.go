package session

import (
	"sort"
	"sync"
)

// Cell is an observable value. Subscribers are called synchronously, in subscription order,
// after every Set or Reset, outside of the cell's lock.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	initial T
	nextID  int
	subs    map[int]func(T)
}

// NewCell creates a cell holding initial. Reset restores it.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, initial: initial, subs: map[int]func(T){}}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	subs := c.snapshot()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Reset restores the initial value.
func (c *Cell[T]) Reset() {
	c.Set(c.initial)
}

// Subscribe registers fn and returns a function that removes it.
func (c *Cell[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Cell[T]) snapshot() []func(T) {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}
