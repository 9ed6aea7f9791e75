package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map.
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	seed   maphash.Seed
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New creates a map with DefaultShardCount shards.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards creates a map with n shards. n is rounded to
// DefaultShardCount when it is not a positive power of two.
func NewWithShards[K comparable, V any](n int) *Map[K, V] {
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultShardCount
	}
	m := &Map[K, V]{
		shards: make([]*shard[K, V], n),
		mask:   uint64(n - 1),
		seed:   maphash.MakeSeed(),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[maphash.Comparable(m.seed, key)&m.mask]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores a value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// SetIfAbsent stores value only when key is absent and reports whether it did.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// GetOrSet returns the existing value for key, or stores and returns value.
// The boolean reports whether the value already existed.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[key]; ok {
		return v, true
	}
	s.items[key] = value
	return value, false
}

// Compute replaces the value of key with the result of fn while holding the
// shard lock. When fn returns keep=false the key is removed. Compute returns
// the stored value and whether the key is present afterwards.
func (m *Map[K, V]) Compute(key K, fn func(old V, exists bool) (next V, keep bool)) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.items[key]
	next, keep := fn(old, exists)
	if !keep {
		delete(s.items, key)
		var zero V
		return zero, false
	}
	s.items[key] = next
	return next, true
}

// Delete removes a key.
func (m *Map[K, V]) Delete(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Pop removes key and returns its previous value.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// Has reports whether key exists.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Count returns the total number of items.
func (m *Map[K, V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every item, one shard at a time, until fn returns false.
// fn must not call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Values returns a snapshot of all values.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Count())
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear removes all items.
func (m *Map[K, V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
}
