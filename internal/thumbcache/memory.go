package thumbcache

import (
	"image"

	"peekraw/internal/fileref"
	"peekraw/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultMemoryItems is the default capacity of the memory tier.
const DefaultMemoryItems = 100

// memoryTier is an item-count bounded LRU. It is not safe for concurrent use;
// Cache guards it with its mutex.
type memoryTier struct {
	lru   *simplelru.LRU[fileref.ID, image.Image]
	limit int
}

func newMemoryTier(limit int) (*memoryTier, error) {
	if limit <= 0 {
		limit = DefaultMemoryItems
	}
	lru, err := simplelru.NewLRU[fileref.ID, image.Image](limit, nil)
	if err != nil {
		return nil, err
	}
	return &memoryTier{lru: lru, limit: limit}, nil
}

func (m *memoryTier) get(key fileref.ID) (image.Image, bool) {
	return m.lru.Get(key)
}

func (m *memoryTier) peek(key fileref.ID) (image.Image, bool) {
	return m.lru.Peek(key)
}

func (m *memoryTier) contains(key fileref.ID) bool {
	return m.lru.Contains(key)
}

// add inserts or replaces key, evicting the least recently used entry when
// the tier is full.
func (m *memoryTier) add(key fileref.ID, img image.Image) {
	if m.lru.Add(key, img) {
		metrics.CacheEvictionsTotal.WithLabelValues("memory").Inc()
	}
	metrics.CacheMemoryItems.Set(float64(m.lru.Len()))
}

func (m *memoryTier) remove(key fileref.ID) {
	m.lru.Remove(key)
	metrics.CacheMemoryItems.Set(float64(m.lru.Len()))
}

func (m *memoryTier) purge() {
	m.lru.Purge()
	metrics.CacheMemoryItems.Set(0)
}

func (m *memoryTier) len() int {
	return m.lru.Len()
}
