// Package cmap provides a concurrent-safe sharded map.
//
// Keys are spread over a power-of-two number of shards, each guarded by
// its own RWMutex. Compute runs a read-modify-write under a single shard
// lock, which the in-memory stores use for atomic toggles and counters.
//
//	m := cmap.New[string, *domain.APIKey]()
//	m.Set(k.Key, k)
//	v, ok := m.Get(k.Key)
package cmap
