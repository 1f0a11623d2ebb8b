package artwork_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xFF})
		}
	}
	return img
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(width, height)); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, encodePNG(t, width, height), 0644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}
}

func prepareDisk(t *testing.T) *artwork.DiskCache {
	t.Helper()
	disk, err := artwork.PrepareCacheArea(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("PrepareCacheArea failed: %v", err)
	}
	return disk
}

// MockLibrary implements artwork.LibraryIndex.
type MockLibrary struct {
	paths map[string]string
	err   error
	calls atomic.Int32
}

func (m *MockLibrary) LookupAlbumArt(album string) (string, error) {
	m.calls.Add(1)
	return m.paths[album], m.err
}

// MockExtractor implements artwork.Extractor by writing a PNG to dest.
type MockExtractor struct {
	width int
	err   error

	mu    sync.Mutex
	dests []string
}

func (m *MockExtractor) ExtractArtwork(_ context.Context, _ artwork.MediaRef, dest string) error {
	m.mu.Lock()
	m.dests = append(m.dests, dest)
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(m.width, m.width)); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0644)
}

func (m *MockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dests...)
}

// MockFetcher implements artwork.RemoteFetcher.
type MockFetcher struct {
	data  []byte
	err   error
	calls atomic.Int32
}

func (m *MockFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	m.calls.Add(1)
	return m.data, m.err
}

// countingSource wraps a Source and counts lookups.
type countingSource struct {
	artwork.Source
	calls atomic.Int32
}

func (c *countingSource) Find(ctx context.Context, m artwork.MediaRef) (artwork.SourceResult, error) {
	c.calls.Add(1)
	return c.Source.Find(ctx, m)
}

// staticCheck implements artwork.StorageCheck.
type staticCheck bool

func (p staticCheck) Available() bool { return bool(p) }

// MockRecorder implements artwork.Recorder.
type MockRecorder struct {
	mu       sync.Mutex
	hits     map[string]int
	sources  map[string]int
	misses   int
	failures map[string]int
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		hits:     make(map[string]int),
		sources:  make(map[string]int),
		failures: make(map[string]int),
	}
}

func (m *MockRecorder) CacheHit(tier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[tier]++
}

func (m *MockRecorder) SourceHit(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source]++
}

func (m *MockRecorder) Miss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *MockRecorder) Failure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}
