package sharded

import "sync"

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent set of strings.
type Set struct {
	shards []*setShard
}

// NewSet creates a Set. numShards is rounded up to a power of two; zero
// selects the default.
func NewSet(numShards int) *Set {
	n := normalizeShards(numShards)
	s := &Set{shards: make([]*setShard, n)}
	for i := range s.shards {
		s.shards[i] = &setShard{items: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shard(key string) *setShard {
	return s.shards[shardIndex(key, len(s.shards))]
}

// Store adds key to the set.
func (s *Set) Store(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.items[key] = struct{}{}
	sh.mu.Unlock()
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	sh := s.shard(key)
	sh.mu.RLock()
	_, ok := sh.items[key]
	sh.mu.RUnlock()
	return ok
}

// LoadOrStore adds key and reports whether it was already present.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	_, loaded = sh.items[key]
	if !loaded {
		sh.items[key] = struct{}{}
	}
	sh.mu.Unlock()
	return loaded
}

// Count returns the number of keys across all shards.
func (s *Set) Count() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}
