package streamer

import (
	"sync"
	"time"

	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
	"clipflow/internal/metrics"
)

// chunkKey identifies one cached byte span of one rendition.
type chunkKey struct {
	videoID string
	quality mediatypes.Quality
	start   int64
	end     int64
}

type chunkEntry struct {
	data      []byte
	expiresAt time.Time
}

// ChunkCache keeps recently served byte ranges in memory so repeated
// seeks over the same span skip the disk read. Entries expire on a
// sliding window: every hit pushes the expiry out by the full TTL.
type ChunkCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[chunkKey]*chunkEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewChunkCache creates a cache whose entries live for ttl past their
// last use, and starts the background sweeper.
func NewChunkCache(ttl time.Duration) *ChunkCache {
	c := &ChunkCache{
		ttl:     ttl,
		entries: make(map[chunkKey]*chunkEntry),
		stop:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached bytes for a span and refreshes its expiry.
func (c *ChunkCache) Get(key chunkKey) ([]byte, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		metrics.ChunkCacheMisses.Inc()
		return nil, false
	}

	entry.expiresAt = now.Add(c.ttl)
	metrics.ChunkCacheHits.Inc()
	return entry.data, true
}

// Put stores a span. The caller must not modify data afterwards.
func (c *ChunkCache) Put(key chunkKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &chunkEntry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
	metrics.ChunkCacheEntries.Set(float64(len(c.entries)))
}

// Invalidate drops every cached span for a video, across all renditions.
func (c *ChunkCache) Invalidate(videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.videoID == videoID {
			delete(c.entries, key)
		}
	}
	metrics.ChunkCacheEntries.Set(float64(len(c.entries)))
}

// Len reports the current number of cached spans.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the sweeper.
func (c *ChunkCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// sweep evicts expired entries so idle videos do not pin memory.
func (c *ChunkCache) sweep() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			evicted := 0
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
					evicted++
				}
			}
			remaining := len(c.entries)
			c.mu.Unlock()

			if evicted > 0 {
				metrics.ChunkCacheEvictions.Add(float64(evicted))
				metrics.ChunkCacheEntries.Set(float64(remaining))
				logging.Debug("chunk cache: evicted %d expired spans, %d remain", evicted, remaining)
			}
		}
	}
}
