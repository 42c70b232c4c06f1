package cryptofs

import (
	"fmt"
	"testing"
)

func TestChunkCacheGetPutRoundTrip(t *testing.T) {
	c := NewChunkCache(5, func(int, []byte) error { return nil })
	c.Put(0, []byte("chunk-0"), false)
	data, ok := c.Get(0)
	if !ok {
		t.Fatal("expected chunk 0 to be present")
	}
	if string(data) != "chunk-0" {
		t.Errorf("Get(0) = %q, want %q", data, "chunk-0")
	}
}

func TestChunkCacheEvictsLRU(t *testing.T) {
	var written []int
	c := NewChunkCache(2, func(index int, _ []byte) error {
		written = append(written, index)
		return nil
	})
	c.Put(0, []byte("a"), true)
	c.Put(1, []byte("b"), true)
	// touch 0 so it's most-recently-used, 1 becomes LRU
	c.Get(0)
	c.Put(2, []byte("c"), true)

	if len(written) != 1 || written[0] != 1 {
		t.Errorf("expected chunk 1 to be written back on eviction, got %v", written)
	}
	if _, ok := c.Get(1); ok {
		t.Error("chunk 1 should have been evicted")
	}
	if _, ok := c.Get(0); !ok {
		t.Error("chunk 0 should still be cached")
	}
}

func TestChunkCacheQueuesWriteBackErrors(t *testing.T) {
	boom := fmt.Errorf("disk full")
	c := NewChunkCache(1, func(int, []byte) error { return boom })
	c.Put(0, []byte("a"), true)
	c.Put(1, []byte("b"), true) // evicts 0, dirty -> write-back fails

	if err := c.DrainErrors(); err == nil {
		t.Fatal("expected a queued write-back error")
	}
	if err := c.DrainErrors(); err != nil {
		t.Errorf("DrainErrors() a second time should be nil, got %v", err)
	}
}

func TestChunkCacheEvictDoesNotWriteBack(t *testing.T) {
	called := false
	c := NewChunkCache(5, func(int, []byte) error {
		called = true
		return nil
	})
	c.Put(0, []byte("a"), true)
	c.Evict(0)
	if called {
		t.Error("Evict should never write back")
	}
	if _, ok := c.Get(0); ok {
		t.Error("evicted chunk should not be cached anymore")
	}
}

func TestChunkCacheFlushWritesAllDirty(t *testing.T) {
	var written []int
	c := NewChunkCache(5, func(index int, _ []byte) error {
		written = append(written, index)
		return nil
	})
	c.Put(0, []byte("a"), true)
	c.Put(1, []byte("b"), false)
	c.Put(2, []byte("c"), true)

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(written) != 2 {
		t.Errorf("expected 2 dirty chunks written back, got %d: %v", len(written), written)
	}
}
