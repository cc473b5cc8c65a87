package sharded

import (
	"sort"
	"sync"
)

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent map from string keys to V.
type Map[V any] struct {
	shards []*mapShard[V]
}

// NewMap creates a Map. numShards is rounded up to a power of two; zero
// selects the default.
func NewMap[V any](numShards int) *Map[V] {
	n := normalizeShards(numShards)
	m := &Map[V]{shards: make([]*mapShard[V], n)}
	for i := range m.shards {
		m.shards[i] = &mapShard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *mapShard[V] {
	return m.shards[shardIndex(key, len(m.shards))]
}

// Store sets the value for key.
func (m *Map[V]) Store(key string, value V) {
	sh := m.shard(key)
	sh.mu.Lock()
	sh.items[key] = value
	sh.mu.Unlock()
}

// Load returns the value for key.
func (m *Map[V]) Load(key string) (V, bool) {
	sh := m.shard(key)
	sh.mu.RLock()
	v, ok := sh.items[key]
	sh.mu.RUnlock()
	return v, ok
}

// Count returns the number of entries across all shards.
func (m *Map[V]) Count() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// SortedKeys returns all keys in ascending order.
func (m *Map[V]) SortedKeys() []string {
	keys := make([]string, 0, m.Count())
	for _, sh := range m.shards {
		sh.mu.RLock()
		for k := range sh.items {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}
