package artwork

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Source is one origin of artwork in the fallback chain.
type Source interface {
	Name() string
	// Find returns a KindNone result when the source has nothing for m.
	Find(ctx context.Context, m MediaRef) (SourceResult, error)
}

// SourceChain consults its sources in order and stops at the first success.
type SourceChain struct {
	sources []Source
}

// NewSourceChain creates a chain over the given sources; nil entries are dropped.
func NewSourceChain(sources ...Source) *SourceChain {
	c := &SourceChain{}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

// ChainConfig wires the collaborators of the default chain. Nil collaborators
// remove the sources that need them.
type ChainConfig struct {
	ArtDir    string
	Metadata  MetadataProvider
	Extractor Extractor
	Library   LibraryIndex
	Fetcher   RemoteFetcher

	UnknownArtist string
	UnknownAlbum  string
}

// NewDefaultChain builds the fixed order: embedded, library, folder, remote.
func NewDefaultChain(cfg ChainConfig) *SourceChain {
	var sources []Source
	sources = append(sources, NewEmbeddedSource(cfg.ArtDir, cfg.Metadata, cfg.Extractor, cfg.UnknownArtist, cfg.UnknownAlbum))
	if cfg.Library != nil {
		sources = append(sources, NewLibrarySource(cfg.Library))
	}
	sources = append(sources, NewFolderSource())
	if cfg.Fetcher != nil {
		sources = append(sources, NewRemoteSource(cfg.Fetcher))
	}
	return NewSourceChain(sources...)
}

// Sources returns the chain's sources in consultation order.
func (c *SourceChain) Sources() []Source {
	return append([]Source(nil), c.sources...)
}

// Resolve runs the chain. Source errors are logged and skipped, and a path
// result only counts when the file exists and is non-empty.
func (c *SourceChain) Resolve(ctx context.Context, m MediaRef) SourceResult {
	for _, s := range c.sources {
		res, err := s.Find(ctx, m)
		if err != nil {
			log.Debug().Err(err).Str("source", s.Name()).Str("title", m.Title).Msg("Artwork source failed")
			continue
		}

		switch res.Kind {
		case KindPath:
			if !nonEmptyFile(res.Path) {
				log.Debug().Str("source", s.Name()).Str("path", res.Path).Msg("Artwork path missing")
				continue
			}
		case KindBytes:
			if len(res.Data) == 0 {
				continue
			}
		default:
			continue
		}

		if res.Source == "" {
			res.Source = s.Name()
		}
		return res
	}
	return SourceResult{}
}

// EmbeddedSource resolves file:// references directly and attachment://
// references to the embedded-artwork cache, extracting on demand.
type EmbeddedSource struct {
	artDir        string
	metadata      MetadataProvider
	extractor     Extractor
	unknownArtist string
	unknownAlbum  string

	// One extraction per target file; widths of an album share it.
	flight singleflight.Group
}

// NewEmbeddedSource creates an embedded/attachment source.
func NewEmbeddedSource(artDir string, metadata MetadataProvider, extractor Extractor, unknownArtist, unknownAlbum string) *EmbeddedSource {
	if unknownArtist == "" {
		unknownArtist = DefaultUnknownArtist
	}
	if unknownAlbum == "" {
		unknownAlbum = DefaultUnknownAlbum
	}
	if metadata == nil {
		metadata = StaticMetadata{UnknownArtist: unknownArtist, UnknownAlbum: unknownAlbum}
	}
	return &EmbeddedSource{
		artDir:        artDir,
		metadata:      metadata,
		extractor:     extractor,
		unknownArtist: unknownArtist,
		unknownAlbum:  unknownAlbum,
	}
}

// Name implements Source.
func (e *EmbeddedSource) Name() string { return "embedded" }

// Find implements Source.
func (e *EmbeddedSource) Find(ctx context.Context, m MediaRef) (SourceResult, error) {
	ref := m.ArtworkRef
	if path, ok := FileRefPath(ref); ok {
		return PathResult(e.Name(), path), nil
	}
	if !strings.HasPrefix(ref, SchemeAttachment) {
		return SourceResult{}, nil
	}

	path := e.AttachmentPath(m)
	if nonEmptyFile(path) {
		return PathResult(e.Name(), path), nil
	}
	if e.extractor == nil {
		return SourceResult{}, nil
	}
	if _, err, _ := e.flight.Do(path, func() (any, error) {
		return nil, e.extract(ctx, m, path)
	}); err != nil {
		return SourceResult{}, err
	}
	return PathResult(e.Name(), path), nil
}

// extract has the extractor write into a temporary file next to path and
// renames it into place, so readers never see a partial image.
func (e *EmbeddedSource) extract(ctx context.Context, m MediaRef, path string) error {
	// A previous flight may have finished between the caller's check and now.
	if nonEmptyFile(path) {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artwork directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	defer os.Remove(tmp)

	if err := e.extractor.ExtractArtwork(ctx, m, tmp); err != nil {
		return fmt.Errorf("failed to extract embedded artwork: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to store embedded artwork: %w", err)
	}
	return nil
}

// FileRefPath returns the local path of a file:// artwork reference,
// percent-decoded.
func FileRefPath(ref string) (string, bool) {
	if !strings.HasPrefix(ref, SchemeFile) {
		return "", false
	}
	decoded, err := url.PathUnescape(ref)
	if err != nil {
		decoded = ref
	}
	return strings.TrimPrefix(decoded, SchemeFile), true
}

// WithinRoots reports whether path lies inside one of roots. Both sides are
// cleaned and have symlinks resolved when they exist. Relative paths and an
// empty root list never match.
func WithinRoots(path string, roots []string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return false
	}
	path = realPath(path)
	for _, root := range roots {
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(realPath(root), path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func realPath(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	// A missing file still resolves through its directory.
	dir, base := filepath.Split(path)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	return path
}

// AttachmentPath computes where the embedded artwork of m lives: keyed by a
// title hash when artist or album is unknown, by artist and album otherwise.
func (e *EmbeddedSource) AttachmentPath(m MediaRef) string {
	artist := e.metadata.Artist(m)
	album := e.metadata.Album(m)
	if artist == "" || album == "" || artist == e.unknownArtist || album == e.unknownAlbum {
		return AttachmentArtPath(e.artDir, AttachmentKey(m.Title, m.ArtworkRef))
	}
	return ArtistAlbumArtPath(e.artDir, artist, album)
}

// LibrarySource asks the media library for artwork stored against the album.
type LibrarySource struct {
	index LibraryIndex
}

// NewLibrarySource creates a library-index source.
func NewLibrarySource(index LibraryIndex) *LibrarySource {
	return &LibrarySource{index: index}
}

// Name implements Source.
func (l *LibrarySource) Name() string { return "library" }

// Find implements Source.
func (l *LibrarySource) Find(_ context.Context, m MediaRef) (SourceResult, error) {
	if m.Album == "" {
		return SourceResult{}, nil
	}
	path, err := l.index.LookupAlbumArt(m.Album)
	if err != nil {
		return SourceResult{}, fmt.Errorf("library lookup: %w", err)
	}
	if path == "" {
		return SourceResult{}, nil
	}
	return PathResult(l.Name(), path), nil
}

// RemoteSource downloads http(s) artwork references.
type RemoteSource struct {
	fetcher RemoteFetcher
}

// NewRemoteSource creates a remote source.
func NewRemoteSource(fetcher RemoteFetcher) *RemoteSource {
	return &RemoteSource{fetcher: fetcher}
}

// Name implements Source.
func (r *RemoteSource) Name() string { return "remote" }

// Find implements Source.
func (r *RemoteSource) Find(ctx context.Context, m MediaRef) (SourceResult, error) {
	if !m.IsRemote() {
		return SourceResult{}, nil
	}
	data, err := r.fetcher.Fetch(ctx, m.ArtworkRef)
	if err != nil {
		return SourceResult{}, err
	}
	if len(data) == 0 {
		return SourceResult{}, nil
	}
	return BytesResult(r.Name(), m.ArtworkRef, data), nil
}
