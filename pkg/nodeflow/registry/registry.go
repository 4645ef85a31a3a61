// Package registry provides a thread-safe keyed table used for node kinds
// and open trees.
//
// Reads take a read lock. Iteration works on a sorted snapshot, so callers
// may add or remove entries while walking the result.
//
//	kinds := registry.New[string, nodeflow.NodeKind]()
//	if !kinds.Add("add", addKind) {
//	    // already registered
//	}
package registry

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// Registry is a thread-safe table of values indexed by an ordered key.
type Registry[K cmp.Ordered, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty registry.
func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Add stores value under key unless the key is taken.
// It reports whether the value was stored.
func (r *Registry[K, V]) Add(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = value
	return true
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Remove deletes key and returns the value it held.
func (r *Registry[K, V]) Remove(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	delete(r.entries, key)
	return v, ok
}

// Keys returns all keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Values returns a snapshot of all values ordered by key.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedValues()
}

// Drain empties the registry and returns the removed values ordered by key.
func (r *Registry[K, V]) Drain() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedValues()
	clear(r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry[K, V]) sortedValues() []V {
	out := make([]V, 0, len(r.entries))
	for _, k := range slices.Sorted(maps.Keys(r.entries)) {
		out = append(out, r.entries[k])
	}
	return out
}
