package artwork

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CoverQuality is the JPEG quality of every file written to the covers area.
const CoverQuality = 90

const lockFileName = ".coverart.lock"

// DiskCache persists encoded covers under <root>/covers and owns the
// embedded-artwork area <root>/art.
type DiskCache struct {
	root      string
	coversDir string
	artDir    string

	// clearMu keeps writes out while Clear empties the tree.
	clearMu sync.RWMutex
	// replaceMu serializes replacing zero-length leftovers.
	replaceMu sync.Mutex
	// lock excludes other processes during Prepare and Clear.
	lock *flock.Flock
}

// NewDiskCache creates a disk cache rooted at root. Prepare must be called
// before any other operation.
func NewDiskCache(root string) *DiskCache {
	return &DiskCache{
		root:      root,
		coversDir: filepath.Join(root, CoversDirName),
		artDir:    filepath.Join(root, ArtDirName),
		lock:      flock.New(filepath.Join(root, lockFileName)),
	}
}

// PrepareCacheArea creates a disk cache rooted at root and prepares it.
func PrepareCacheArea(root string) (*DiskCache, error) {
	d := NewDiskCache(root)
	if err := d.Prepare(); err != nil {
		return nil, err
	}
	return d, nil
}

// Root returns the cache root.
func (d *DiskCache) Root() string { return d.root }

// CoversDir returns the derived-cover area.
func (d *DiskCache) CoversDir() string { return d.coversDir }

// ArtDir returns the embedded-artwork area.
func (d *DiskCache) ArtDir() string { return d.artDir }

// Prepare ensures both cache areas exist. It is idempotent.
func (d *DiskCache) Prepare() error {
	if err := os.MkdirAll(d.root, 0755); err != nil {
		return fmt.Errorf("failed to create cache root: %w", err)
	}

	d.clearMu.Lock()
	defer d.clearMu.Unlock()

	if err := d.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock cache root: %w", err)
	}
	defer d.lock.Unlock()

	for _, dir := range []string{d.artDir, d.coversDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	log.Debug().Str("root", d.root).Msg("Cache area prepared")
	return nil
}

// Path returns the covers file for key.
func (d *DiskCache) Path(key string) string {
	return filepath.Join(d.coversDir, key)
}

// Exists reports whether a non-empty cover file exists for key. A zero-length
// file counts as absent so the entry can be retried.
func (d *DiskCache) Exists(key string) bool {
	return nonEmptyFile(d.Path(key))
}

// Write encodes img as JPEG and stores it under key unless a non-empty file
// is already there. Concurrent writers of one key leave exactly one file.
func (d *DiskCache) Write(key string, img image.Image) error {
	if img == nil {
		return ErrNoArtwork
	}

	d.clearMu.RLock()
	defer d.clearMu.RUnlock()

	target := d.Path(key)
	if nonEmptyFile(target) {
		return nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: CoverQuality}); err != nil {
		return fmt.Errorf("failed to encode cover: %w", err)
	}

	tmp := filepath.Join(d.coversDir, "."+key+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write cover: %w", err)
	}
	defer os.Remove(tmp)

	// A hard link fails if the target exists, which makes the publish exclusive.
	err := os.Link(tmp, target)
	if errors.Is(err, os.ErrExist) && !nonEmptyFile(target) {
		err = d.replaceEmpty(tmp, target)
	}
	switch {
	case err == nil:
		log.Debug().Str("key", key).Int("size", buf.Len()).Msg("Cached cover")
		return nil
	case errors.Is(err, os.ErrExist):
		return nil
	default:
		return fmt.Errorf("failed to publish cover: %w", err)
	}
}

// replaceEmpty swaps a zero-length leftover at target for tmp. Another writer
// may have replaced it first, in which case its file stays.
func (d *DiskCache) replaceEmpty(tmp, target string) error {
	d.replaceMu.Lock()
	defer d.replaceMu.Unlock()

	if nonEmptyFile(target) {
		return os.ErrExist
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace empty cover: %w", err)
	}
	return os.Link(tmp, target)
}

// Clear deletes everything below both cache areas, keeping the areas themselves.
func (d *DiskCache) Clear() error {
	d.clearMu.Lock()
	defer d.clearMu.Unlock()

	if err := d.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock cache root: %w", err)
	}
	defer d.lock.Unlock()

	var errs []error
	for _, dir := range []string{d.artDir, d.coversDir} {
		if err := emptyDir(dir); err != nil {
			errs = append(errs, err)
		}
		// Writers expect both areas to exist after a clear.
		if err := os.MkdirAll(dir, 0755); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	log.Info().Str("root", d.root).Msg("Cache cleared")
	return nil
}

func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
