package zarr

import "github.com/coocood/freecache"

// ChunkCache holds decoded chunk bytes so that overlapping reads of the
// same array do not decompress a chunk twice.
type ChunkCache struct {
	cache *freecache.Cache
}

// NewChunkCache returns a cache of roughly size bytes, or nil when size is
// zero. A nil *ChunkCache is valid and caches nothing.
func NewChunkCache(size int) *ChunkCache {
	if size <= 0 {
		return nil
	}
	return &ChunkCache{cache: freecache.NewCache(size)}
}

func (c *ChunkCache) get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *ChunkCache) put(key string, data []byte) {
	if c == nil {
		return
	}
	// Set fails with freecache.ErrLargeEntry for chunks over the entry
	// limit; those are decoded again on the next read.
	_ = c.cache.Set([]byte(key), data, 0)
}

// Stats returns hit and miss counts.
func (c *ChunkCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.cache.HitCount(), c.cache.MissCount()
}
