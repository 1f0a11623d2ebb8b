package artwork_test

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

func TestSubsampleFactor(t *testing.T) {
	tests := []struct {
		native   int
		target   int
		expected int
	}{
		{1000, 300, 4},
		{1000, 1000, 1},
		{1000, 2000, 1},
		{1000, 500, 2},
		{1000, 499, 4},
		{1024, 64, 16},
		{300, 0, 1},
	}

	for _, tt := range tests {
		if got := artwork.SubsampleFactor(tt.native, tt.target); got != tt.expected {
			t.Errorf("SubsampleFactor(%d, %d): expected %d, got %d", tt.native, tt.target, tt.expected, got)
		}
	}
}

func TestDecoder_DecodeFileDownsamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	writePNG(t, path, 1000, 500)

	mem := artwork.NewMemoryCache(0, 0)
	img, err := artwork.NewDecoder(mem, 0).DecodeFile(path, 300)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	if img == nil {
		t.Fatal("Expected a bitmap")
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 250 || h != 125 {
		t.Errorf("Expected 250x125, got %dx%d", w, h)
	}

	// Opportunistic write keyed by path.
	if cached, ok := mem.Get(path); !ok || cached != img {
		t.Error("Decoded bitmap should be cached under its path")
	}
}

func TestDecoder_NoUpscale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	writePNG(t, path, 100, 100)

	img, err := artwork.NewDecoder(nil, 0).DecodeFile(path, 300)
	if err != nil || img == nil {
		t.Fatalf("Expected a bitmap, got %v / %v", img, err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("Expected native width 100, got %d", img.Bounds().Dx())
	}
}

func TestDecoder_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.jpg")
	text := filepath.Join(dir, "notes.jpg")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(text, []byte("definitely not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	mem := artwork.NewMemoryCache(0, 0)
	dec := artwork.NewDecoder(mem, 0)
	for _, path := range []string{empty, text} {
		img, err := dec.DecodeFile(path, 100)
		if err != nil {
			t.Errorf("Corrupt artwork %s must not be an error: %v", filepath.Base(path), err)
		}
		if img != nil {
			t.Errorf("Expected no bitmap for %s", filepath.Base(path))
		}
	}
	if mem.Len() != 0 {
		t.Error("Nothing should be cached for corrupt input")
	}
}

func TestDecoder_MissingFile(t *testing.T) {
	_, err := artwork.NewDecoder(nil, 0).DecodeFile(filepath.Join(t.TempDir(), "nope.png"), 100)
	if err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestDecoder_DecodeBytesCachesByKey(t *testing.T) {
	mem := artwork.NewMemoryCache(0, 0)
	url := "https://example.com/cover.png"

	img := artwork.NewDecoder(mem, 0).DecodeBytes(url, encodePNG(t, 640, 640), 200)
	if img == nil {
		t.Fatal("Expected a bitmap")
	}
	if img.Bounds().Dx() != 160 {
		t.Errorf("Expected width 160, got %d", img.Bounds().Dx())
	}
	if _, ok := mem.Get(url); !ok {
		t.Error("Decoded bitmap should be cached under its URL")
	}
}

// pngHeader returns a PNG that declares width x height but carries no pixel
// data past its IHDR chunk.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 0, 17)
	ihdr = append(ihdr, "IHDR"...)
	ihdr = binary.BigEndian.AppendUint32(ihdr, width)
	ihdr = binary.BigEndian.AppendUint32(ihdr, height)
	ihdr = append(ihdr, 8, 6, 0, 0, 0) // 8-bit RGBA, no interlace

	data := []byte("\x89PNG\r\n\x1a\n")
	data = binary.BigEndian.AppendUint32(data, 13)
	data = append(data, ihdr...)
	return binary.BigEndian.AppendUint32(data, crc32.ChecksumIEEE(ihdr))
}

func TestDecoder_RejectsOversizedDeclaration(t *testing.T) {
	data := pngHeader(16000, 16000)
	if len(data) > 100 {
		t.Fatalf("Expected a tiny input, got %d bytes", len(data))
	}

	mem := artwork.NewMemoryCache(0, 0)
	if img := artwork.NewDecoder(mem, 0).DecodeBytes("huge", data, 300); img != nil {
		t.Error("Expected no bitmap for a 16000x16000 declaration")
	}
	if mem.Len() != 0 {
		t.Error("Nothing should be cached for an oversized image")
	}

	path := filepath.Join(t.TempDir(), "huge.png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	img, err := artwork.NewDecoder(nil, 0).DecodeFile(path, 300)
	if err != nil || img != nil {
		t.Errorf("Expected (nil, nil) for an oversized file, got %v / %v", img, err)
	}
}

func TestDecoder_MaxPixelsConfigurable(t *testing.T) {
	data := encodePNG(t, 100, 100)

	if img := artwork.NewDecoder(nil, 9999).DecodeBytes("k", data, 100); img != nil {
		t.Error("Expected a 100x100 image to exceed a 9999 pixel cap")
	}
	if img := artwork.NewDecoder(nil, 10000).DecodeBytes("k", data, 100); img == nil {
		t.Error("Expected a 100x100 image to fit a 10000 pixel cap")
	}
}
