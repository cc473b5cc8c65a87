package sharded

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetConcurrentLoadOrStore(t *testing.T) {
	s := NewSet(0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	firstStores := 0

	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				if !s.LoadOrStore(fmt.Sprintf("dir/%d", i)) {
					mu.Lock()
					firstStores++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firstStores != 100 {
		t.Errorf("expected exactly 100 first stores, got %d", firstStores)
	}
	if s.Count() != 100 {
		t.Errorf("expected 100 keys, got %d", s.Count())
	}
	if !s.Has("dir/42") || s.Has("dir/100") {
		t.Error("unexpected membership result")
	}
}

func TestMapSortedKeys(t *testing.T) {
	m := NewMap[error](5) // rounded up to 8 shards
	if len(m.shards) != 8 {
		t.Fatalf("expected 8 shards, got %d", len(m.shards))
	}
	m.Store("b", nil)
	m.Store("a", fmt.Errorf("boom"))
	m.Store("c", nil)

	keys := m.SortedKeys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("unexpected keys %v", keys)
	}
	if v, ok := m.Load("a"); !ok || v == nil {
		t.Error("expected stored error for key a")
	}
	if _, ok := m.Load("z"); ok {
		t.Error("expected missing key")
	}
}
