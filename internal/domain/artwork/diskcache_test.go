package artwork_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

func TestDiskCache_PrepareIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	disk := artwork.NewDiskCache(root)

	for i := 0; i < 2; i++ {
		if err := disk.Prepare(); err != nil {
			t.Fatalf("Prepare #%d failed: %v", i+1, err)
		}
	}

	for _, dir := range []string{disk.CoversDir(), disk.ArtDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s to exist", dir)
		}
	}
	if disk.CoversDir() != filepath.Join(root, "covers") {
		t.Errorf("Unexpected covers dir %s", disk.CoversDir())
	}
	if disk.ArtDir() != filepath.Join(root, "art") {
		t.Errorf("Unexpected art dir %s", disk.ArtDir())
	}
}

func TestDiskCache_ExistsIgnoresEmptyFile(t *testing.T) {
	disk := prepareDisk(t)

	if disk.Exists("key_100") {
		t.Error("Expected no entry")
	}

	if err := os.WriteFile(disk.Path("key_100"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if disk.Exists("key_100") {
		t.Error("Zero-length file must count as not cached")
	}
}

func TestDiskCache_WriteEncodesJPEG(t *testing.T) {
	disk := prepareDisk(t)

	if err := disk.Write("123_64", testImage(64, 48)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !disk.Exists("123_64") {
		t.Fatal("Expected cover on disk")
	}

	data, err := os.ReadFile(disk.Path("123_64"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Cover is not decodable: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("Expected jpeg, got %s", format)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDiskCache_WriteOnce(t *testing.T) {
	disk := prepareDisk(t)

	if err := disk.Write("k_10", testImage(10, 10)); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(disk.Path("k_10"))

	if err := disk.Write("k_10", testImage(30, 30)); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(disk.Path("k_10"))

	if !bytes.Equal(first, second) {
		t.Error("Second write must not replace an existing cover")
	}
}

func TestDiskCache_WriteReplacesEmptyFile(t *testing.T) {
	disk := prepareDisk(t)

	if err := os.WriteFile(disk.Path("k_10"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := disk.Write("k_10", testImage(10, 10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !disk.Exists("k_10") {
		t.Error("Empty leftover should be replaced")
	}
}

func TestDiskCache_ConcurrentWriters(t *testing.T) {
	disk := prepareDisk(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := disk.Write("race_20", testImage(10+i, 10+i)); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(disk.Path("race_20"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Cover was corrupted by concurrent writers: %v", err)
	}

	entries, _ := os.ReadDir(disk.CoversDir())
	if len(entries) != 1 {
		t.Errorf("Expected exactly one file in covers, got %d", len(entries))
	}
}

func TestDiskCache_ConcurrentWritersOverEmptyFile(t *testing.T) {
	disk := prepareDisk(t)

	for round := 0; round < 20; round++ {
		if err := os.WriteFile(disk.Path("empty_20"), nil, 0644); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := disk.Write("empty_20", testImage(10+i, 10+i)); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if !disk.Exists("empty_20") {
			t.Fatalf("Round %d: expected a published cover", round)
		}
		data, err := os.ReadFile(disk.Path("empty_20"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
			t.Fatalf("Round %d: cover is not a valid JPEG: %v", round, err)
		}
		if err := os.Remove(disk.Path("empty_20")); err != nil {
			t.Fatal(err)
		}
	}

	if entries, _ := os.ReadDir(disk.CoversDir()); len(entries) != 0 {
		t.Errorf("Expected no leftover files, got %d", len(entries))
	}
}

func TestDiskCache_ClearRecreatesMissingArea(t *testing.T) {
	disk := prepareDisk(t)
	if err := os.RemoveAll(disk.CoversDir()); err != nil {
		t.Fatal(err)
	}

	if err := disk.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	for _, dir := range []string{disk.CoversDir(), disk.ArtDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Expected %s to exist after Clear: %v", dir, err)
		}
	}
	if err := disk.Write("a_1", testImage(4, 4)); err != nil {
		t.Errorf("Write after Clear failed: %v", err)
	}
}

func TestDiskCache_Clear(t *testing.T) {
	disk := prepareDisk(t)

	if err := disk.Write("a_1", testImage(4, 4)); err != nil {
		t.Fatal(err)
	}
	writePNG(t, artwork.ArtistAlbumArtPath(disk.ArtDir(), "Artist", "Album"), 4, 4)

	if err := disk.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for _, dir := range []string{disk.CoversDir(), disk.ArtDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("Cache directory %s should survive Clear: %v", dir, err)
		}
		if len(entries) != 0 {
			t.Errorf("Expected %s to be empty, found %d entries", dir, len(entries))
		}
	}

	// Writes work without preparing again.
	if err := disk.Write("a_1", testImage(4, 4)); err != nil {
		t.Errorf("Write after Clear failed: %v", err)
	}
}
