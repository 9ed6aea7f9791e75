package memory

import (
	"sync"

	"github.com/yndnr/metalgate/pkg/cmap"
)

// keySet is a concurrent-safe set of API key strings.
type keySet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newKeySet() *keySet {
	return &keySet{items: make(map[string]struct{})}
}

func (s *keySet) add(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[k] = struct{}{}
}

func (s *keySet) remove(k string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, k)
	return len(s.items)
}

func (s *keySet) list() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}

// OwnerIndex maps an owner to the set of keys they own.
type OwnerIndex struct {
	index *cmap.Map[string, *keySet]
}

// NewOwnerIndex creates an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{index: cmap.New[string, *keySet]()}
}

// Add records that owner owns key.
func (i *OwnerIndex) Add(owner, key string) {
	set, _ := i.index.GetOrSet(owner, newKeySet())
	set.add(key)
}

// Remove forgets key for owner, dropping empty sets.
func (i *OwnerIndex) Remove(owner, key string) {
	set, ok := i.index.Get(owner)
	if !ok {
		return
	}
	if set.remove(key) == 0 {
		i.index.Delete(owner)
	}
}

// Get returns the keys of owner.
func (i *OwnerIndex) Get(owner string) []string {
	set, ok := i.index.Get(owner)
	if !ok {
		return nil
	}
	return set.list()
}

// Clear drops every key of owner and returns them.
func (i *OwnerIndex) Clear(owner string) []string {
	set, ok := i.index.Pop(owner)
	if !ok {
		return nil
	}
	return set.list()
}
