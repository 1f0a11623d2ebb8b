package artwork

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// LockMode selects how concurrent resolutions are coordinated.
type LockMode int

const (
	// LockPerKey lets resolutions of different keys run in parallel while
	// concurrent callers for one key share a single resolution.
	LockPerKey LockMode = iota
	// LockGlobal serializes every resolution behind one mutex.
	LockGlobal
)

// ParseLockMode maps "global" and "per-key" to a LockMode.
func ParseLockMode(s string) (LockMode, error) {
	switch s {
	case "", "per-key":
		return LockPerKey, nil
	case "global":
		return LockGlobal, nil
	}
	return LockPerKey, fmt.Errorf("invalid locking mode %q (must be 'global' or 'per-key')", s)
}

// Resolver is the artwork engine. Resolution order:
// 1. Memory cache (derived key)
// 2. Disk cache (derived key)
// 3. Source chain: embedded, library, folder, remote
// 4. Decode, then write back to both tiers
type Resolver struct {
	mem     *MemoryCache
	disk    *DiskCache
	chain   *SourceChain
	decoder *Decoder

	storage  StorageCheck
	recorder Recorder
	mode     LockMode

	mu     sync.Mutex
	flight singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStorageCheck overrides the storage availability check.
func WithStorageCheck(p StorageCheck) Option {
	return func(r *Resolver) {
		r.storage = p
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithMaxDecodePixels caps the declared pixel count of artwork the resolver
// will decode. n <= 0 selects DefaultMaxPixels.
func WithMaxDecodePixels(n int) Option {
	return func(r *Resolver) {
		r.decoder.setMaxPixels(n)
	}
}

// WithLocking sets the concurrency mode.
func WithLocking(mode LockMode) Option {
	return func(r *Resolver) {
		r.mode = mode
	}
}

// NewResolver creates a resolver over the two cache tiers and a source chain.
func NewResolver(mem *MemoryCache, disk *DiskCache, chain *SourceChain, opts ...Option) *Resolver {
	r := &Resolver{
		mem:      mem,
		disk:     disk,
		chain:    chain,
		decoder:  NewDecoder(mem, 0),
		storage:  DirCheck{Root: disk.Root()},
		recorder: nopRecorder{},
		mode:     LockPerKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PrepareCacheArea ensures the disk tier exists. Call it before resolving.
func (r *Resolver) PrepareCacheArea() error {
	return r.disk.Prepare()
}

// ClearCache empties both tiers.
func (r *Resolver) ClearCache() error {
	r.mem.Purge()
	return r.disk.Clear()
}

// Resolve returns the cover of m at roughly width pixels, or nil when there
// is none. It never fails: every error degrades to nil.
func (r *Resolver) Resolve(ctx context.Context, m MediaRef, width int) image.Image {
	return r.ResolveResult(ctx, m, width).Image
}

// ResolveResult is Resolve with diagnostics.
func (r *Resolver) ResolveResult(ctx context.Context, m MediaRef, width int) Result {
	if width <= 0 {
		log.Error().Int("width", width).Str("title", m.Title).Msg("Invalid cover width requested")
		return Result{Status: StatusNotFound, Err: ErrInvalidWidth}
	}

	// Slow or missing storage would stall browsing; skip covers entirely.
	if !r.storage.Available() {
		return Result{Status: StatusNotFound, Err: ErrStorageUnavailable}
	}

	if r.mode == LockGlobal {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.safeResolve(ctx, m, width)
	}

	v, _, _ := r.flight.Do(flightKey(m, width), func() (any, error) {
		return r.safeResolve(ctx, m, width), nil
	})
	return v.(Result)
}

// safeResolve turns a panic into a failed result. It must run inside the
// flight so that waiting callers never see the panic.
func (r *Resolver) safeResolve(ctx context.Context, m MediaRef, width int) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("title", m.Title).Msg("Artwork resolution panicked")
			r.recorder.Failure("panic")
			res = Result{Status: StatusFailed, Err: fmt.Errorf("artwork resolution panicked: %v", p)}
		}
	}()
	return r.resolve(ctx, m, width)
}

// flightKey identifies requests that would do the same work.
func flightKey(m MediaRef, width int) string {
	if m.HasArtistAlbum() {
		return DiskKey(m.Artist, m.Album, width)
	}
	return strconv.Itoa(width) + "\x00" + m.ArtworkRef + "\x00" + m.Title + "\x00" + m.Location
}

func (r *Resolver) resolve(ctx context.Context, m MediaRef, width int) Result {
	var key, path string

	if m.HasArtistAlbum() {
		key = DiskKey(m.Artist, m.Album, width)

		if img, ok := r.mem.Get(key); ok {
			r.recorder.CacheHit(TierMemory)
			return Result{Image: img, Status: StatusFound, Key: key, Tier: TierMemory}
		}

		if r.disk.Exists(key) {
			path = r.disk.Path(key)
		}
	}

	tier, source := TierDisk, ""
	if path == "" {
		found := r.chain.Resolve(ctx, m)
		switch found.Kind {
		case KindBytes:
			// Remote artwork lives in memory only, keyed by its URL.
			img := r.decoder.DecodeBytes(found.URL, found.Data, width)
			if img == nil {
				r.recorder.Miss()
				return Result{Status: StatusNotFound, Err: ErrNoArtwork, Key: key}
			}
			r.recorder.SourceHit(found.Source)
			return Result{Image: img, Status: StatusFound, Key: key, Tier: TierSource, Source: found.Source}
		case KindPath:
			path = found.Path
			tier, source = TierSource, found.Source
		default:
			r.recorder.Miss()
			return Result{Status: StatusNotFound, Err: ErrNoArtwork, Key: key}
		}
	}

	// Cached below under the derived key only.
	img, err := r.decoder.decodeFile(path, width)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read artwork")
		r.recorder.Failure("read")
		return Result{Status: StatusFailed, Err: err, Key: key}
	}
	if img == nil {
		r.recorder.Miss()
		return Result{Status: StatusNotFound, Err: ErrNoArtwork, Key: key}
	}

	if key != "" {
		if err := r.disk.Write(key, img); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to write cover cache")
			r.recorder.Failure("write")
		}
		r.mem.Put(key, img)
	}

	if tier == TierDisk {
		r.recorder.CacheHit(TierDisk)
	} else {
		r.recorder.SourceHit(source)
	}
	return Result{Image: img, Status: StatusFound, Key: key, Tier: tier, Source: source}
}

// FromMemory returns the cover of m only if it is already in memory: first by
// derived key, then by its remote URL.
func (r *Resolver) FromMemory(m MediaRef, width int) image.Image {
	if m.HasArtistAlbum() {
		if img, ok := r.mem.Get(DiskKey(m.Artist, m.Album, width)); ok {
			return img
		}
	}
	if m.IsRemote() {
		if img, ok := r.mem.Get(m.ArtworkRef); ok {
			return img
		}
	}
	return nil
}

// ResolveAny returns the first cover found among items, trying each album at
// most once and skipping items whose artist or album is unknown. With
// memoryOnly set only the memory tier is consulted.
func (r *Resolver) ResolveAny(ctx context.Context, items []MediaRef, width int, memoryOnly bool) image.Image {
	tried := make(map[string]struct{})
	for _, m := range items {
		if !m.HasArtistAlbum() {
			continue
		}
		if _, ok := tried[m.Album]; ok {
			continue
		}

		var img image.Image
		if memoryOnly {
			img = r.FromMemory(m, width)
		} else {
			img = r.Resolve(ctx, m, width)
		}
		if img != nil {
			return img
		}
		tried[m.Album] = struct{}{}
	}
	return nil
}
