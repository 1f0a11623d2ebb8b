package artwork

import (
	"image"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultMemoryBytes bounds the decoded pixel data held in memory (64MB).
	DefaultMemoryBytes = 64 * 1024 * 1024

	// DefaultMemoryEntries caps the number of cached bitmaps.
	DefaultMemoryEntries = 4096
)

// MemoryCache is a least-recently-used store of decoded bitmaps bounded by
// resident pixel bytes. It is safe for concurrent use.
type MemoryCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, image.Image]
	maxBytes int64
	size     int64
}

// NewMemoryCache creates a memory cache holding at most maxBytes of pixel
// data in at most maxEntries bitmaps. Non-positive values select the defaults.
func NewMemoryCache(maxBytes int64, maxEntries int) *MemoryCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryBytes
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}

	c := &MemoryCache{maxBytes: maxBytes}
	// simplelru.NewLRU only errors on a non-positive size, guarded above.
	c.lru, _ = simplelru.NewLRU[string, image.Image](maxEntries, func(_ string, img image.Image) {
		c.size -= ImageBytes(img)
	})
	return c
}

// Get returns the bitmap stored under key and marks it most recently used.
func (c *MemoryCache) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Get(key)
}

// Put stores img under key, evicting least recently used bitmaps until the
// byte budget holds. Bitmaps larger than the whole budget are not stored.
func (c *MemoryCache) Put(key string, img image.Image) {
	if img == nil {
		return
	}
	n := ImageBytes(img)
	if n > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing a value does not fire the eviction callback.
	if old, ok := c.lru.Peek(key); ok {
		c.size -= ImageBytes(old)
	}
	c.lru.Add(key, img)
	c.size += n

	for c.size > c.maxBytes && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
	}
}

// Len returns the number of cached bitmaps.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the resident pixel bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// ImageBytes estimates the pixel buffer size of img.
func ImageBytes(img image.Image) int64 {
	switch p := img.(type) {
	case *image.RGBA:
		return int64(len(p.Pix))
	case *image.NRGBA:
		return int64(len(p.Pix))
	case *image.RGBA64:
		return int64(len(p.Pix))
	case *image.Gray:
		return int64(len(p.Pix))
	case *image.Paletted:
		return int64(len(p.Pix))
	case *image.YCbCr:
		return int64(len(p.Y) + len(p.Cb) + len(p.Cr))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
