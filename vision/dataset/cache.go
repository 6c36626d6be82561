package dataset

import (
	"container/list"
	"sync"

	"github.com/tsawler/go-volrecon/tensor"
)

// VolumeCache keeps the most recently decoded volumes in memory
type VolumeCache struct {
	mu      sync.Mutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	// Statistics
	hits   int64
	misses int64
}

type cacheEntry struct {
	key    string
	volume *tensor.Tensor
}

// NewVolumeCache creates a cache holding up to maxSize volumes. A
// non-positive maxSize disables caching.
func NewVolumeCache(maxSize int) *VolumeCache {
	return &VolumeCache{
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Get retrieves a volume from the cache
func (vc *VolumeCache) Get(key string) (*tensor.Tensor, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if elem, ok := vc.cache[key]; ok {
		vc.lru.MoveToFront(elem)
		vc.hits++
		return elem.Value.(*cacheEntry).volume, true
	}
	vc.misses++
	return nil, false
}

// Put adds a volume, evicting the least recently used ones over capacity
func (vc *VolumeCache) Put(key string, volume *tensor.Tensor) {
	if vc.maxSize <= 0 {
		return
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if elem, ok := vc.cache[key]; ok {
		elem.Value.(*cacheEntry).volume = volume
		vc.lru.MoveToFront(elem)
		return
	}

	vc.cache[key] = vc.lru.PushFront(&cacheEntry{key: key, volume: volume})
	for vc.lru.Len() > vc.maxSize {
		oldest := vc.lru.Back()
		vc.lru.Remove(oldest)
		delete(vc.cache, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached volumes
func (vc *VolumeCache) Len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.lru.Len()
}

// Stats returns cache hits and misses
func (vc *VolumeCache) Stats() (hits, misses int64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.hits, vc.misses
}
