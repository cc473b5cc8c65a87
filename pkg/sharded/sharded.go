// Package sharded provides string-keyed sets and maps split across
// independently locked shards, for state shared by many pipeline workers.
package sharded

import "hash/fnv"

const defaultShards = 64

// shardIndex picks a shard with FNV-1a. numShards must be a power of two.
func shardIndex(key string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}

func normalizeShards(n int) int {
	if n <= 0 {
		return defaultShards
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
