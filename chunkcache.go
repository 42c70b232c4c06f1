package cryptofs

// chunkCacheEntry holds one decrypted chunk's cleartext bytes.
type chunkCacheEntry struct {
	index int
	data  []byte
	dirty bool
}

// ChunkCache is a bounded LRU over (chunk index -> cleartext bytes),
// write-back on eviction. It is not internally synchronized: writers
// hold the owning OpenFile's lock for the cache's lifetime, so eviction
// I/O runs under that lock rather than on a separate worker.
type ChunkCache struct {
	capacity  int
	entries   []*chunkCacheEntry // front = most recently used
	writeBack func(index int, cleartext []byte) error

	pendingErrors []error
}

func NewChunkCache(capacity int, writeBack func(index int, cleartext []byte) error) *ChunkCache {
	if capacity <= 0 {
		capacity = 5
	}
	return &ChunkCache{capacity: capacity, writeBack: writeBack}
}

func (c *ChunkCache) find(index int) (int, *chunkCacheEntry) {
	for i, e := range c.entries {
		if e.index == index {
			return i, e
		}
	}
	return -1, nil
}

func (c *ChunkCache) touch(pos int) {
	e := c.entries[pos]
	c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
	c.entries = append([]*chunkCacheEntry{e}, c.entries...)
}

// Get returns the cached cleartext for index, if present, promoting it
// to most-recently-used.
func (c *ChunkCache) Get(index int) ([]byte, bool) {
	pos, e := c.find(index)
	if e == nil {
		return nil, false
	}
	c.touch(pos)
	return e.data, true
}

// Put installs cleartext for index, evicting the least-recently-used
// entry (writing it back if dirty) when over capacity.
func (c *ChunkCache) Put(index int, cleartext []byte, dirty bool) {
	if pos, e := c.find(index); e != nil {
		e.data = cleartext
		e.dirty = e.dirty || dirty
		c.touch(pos)
		return
	}
	c.entries = append([]*chunkCacheEntry{{index: index, data: cleartext, dirty: dirty}}, c.entries...)
	for len(c.entries) > c.capacity {
		victim := c.entries[len(c.entries)-1]
		c.entries = c.entries[:len(c.entries)-1]
		if victim.dirty {
			if err := c.writeBack(victim.index, victim.data); err != nil {
				c.pendingErrors = append(c.pendingErrors, err)
			}
		}
	}
}

// Evict removes index from the cache (used by Truncate to drop chunks
// beyond the new size); it does not write back, since the caller is
// about to overwrite or has already discarded that range.
func (c *ChunkCache) Evict(index int) {
	if pos, e := c.find(index); e != nil {
		c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
	}
}

// Flush writes back every dirty entry, most recently used first, and
// clears the dirty bit on success.
func (c *ChunkCache) Flush() error {
	for _, e := range c.entries {
		if !e.dirty {
			continue
		}
		if err := c.writeBack(e.index, e.data); err != nil {
			c.pendingErrors = append(c.pendingErrors, err)
			continue
		}
		e.dirty = false
	}
	return c.DrainErrors()
}

// DrainErrors returns and removes the oldest queued write-back error, or
// nil if none is queued; any later errors stay queued for the following
// calls. Deferred errors surface at the next user-visible call, never
// silently dropped.
func (c *ChunkCache) DrainErrors() error {
	if len(c.pendingErrors) == 0 {
		return nil
	}
	err := c.pendingErrors[0]
	c.pendingErrors = c.pendingErrors[1:]
	return err
}
