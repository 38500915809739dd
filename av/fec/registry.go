package fec

import (
	"sync"

	"go.uber.org/atomic"
)

// arena is one immutable generation of a registry: items in creation order
// and an SSRC index into them.
type arena[T any] struct {
	index map[uint32]int
	items []T
}

// registry maps SSRCs to lazily created per-stream instances.
//
// Lookups load the current arena without locking. Inserts are serialized by
// mu and publish a new arena, so readers never observe a partial update.
type registry[T any] struct {
	mu      sync.Mutex
	current *atomic.Pointer[arena[T]]
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		current: atomic.NewPointer(&arena[T]{index: map[uint32]int{}}),
	}
}

// get returns the instance registered for ssrc.
func (r *registry[T]) get(ssrc uint32) (T, bool) {
	a := r.current.Load()
	if i, ok := a.index[ssrc]; ok {
		return a.items[i], true
	}
	var zero T
	return zero, false
}

// getOrCreate returns the instance for ssrc, creating it with create on first
// use. create runs at most once per SSRC.
func (r *registry[T]) getOrCreate(ssrc uint32, create func(uint32) T) T {
	if v, ok := r.get(ssrc); ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	if i, ok := old.index[ssrc]; ok {
		return old.items[i]
	}

	v := create(ssrc)
	next := &arena[T]{
		index: make(map[uint32]int, len(old.index)+1),
		items: make([]T, len(old.items), len(old.items)+1),
	}
	for k, i := range old.index {
		next.index[k] = i
	}
	copy(next.items, old.items)
	next.index[ssrc] = len(next.items)
	next.items = append(next.items, v)
	r.current.Store(next)
	return v
}

// each calls fn for every registered instance in creation order.
func (r *registry[T]) each(fn func(ssrc uint32, v T)) {
	a := r.current.Load()
	ssrcs := make([]uint32, len(a.items))
	for k, i := range a.index {
		ssrcs[i] = k
	}
	for i, v := range a.items {
		fn(ssrcs[i], v)
	}
}

// len returns the number of registered instances.
func (r *registry[T]) len() int {
	return len(r.current.Load().items)
}

// reset drops every instance and returns the dropped generation.
func (r *registry[T]) reset() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current.Swap(&arena[T]{index: map[uint32]int{}})
	return old.items
}
