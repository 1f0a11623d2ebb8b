// Package artwork resolves and caches cover art for media items.
package artwork

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
)

var (
	// ErrNoArtwork is returned when no artwork is found.
	ErrNoArtwork = errors.New("no artwork found")

	// ErrInvalidWidth is reported for a non-positive requested width.
	ErrInvalidWidth = errors.New("invalid cover width requested")

	// ErrStorageUnavailable is reported when the cache storage is not available.
	ErrStorageUnavailable = errors.New("cache storage unavailable")
)

// Artwork reference schemes.
const (
	SchemeFile       = "file://"
	SchemeAttachment = "attachment://"
	SchemeHTTP       = "http://"
	SchemeHTTPS      = "https://"
)

// Default sentinels reported by metadata providers for missing tags.
const (
	DefaultUnknownArtist = "Unknown Artist"
	DefaultUnknownAlbum  = "Unknown Album"
)

// MediaRef identifies the item needing artwork.
// Empty Artist or Album means the value is unknown.
type MediaRef struct {
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Title      string `json:"title"`
	ArtworkRef string `json:"artworkRef,omitempty"` // file://, attachment:// or http(s):// reference
	Location   string `json:"location,omitempty"`   // path of the media file itself
}

// HasArtistAlbum reports whether both artist and album are known.
func (m MediaRef) HasArtistAlbum() bool {
	return m.Artist != "" && m.Album != ""
}

// IsRemote reports whether the artwork reference points at an http(s) URL.
func (m MediaRef) IsRemote() bool {
	return strings.HasPrefix(m.ArtworkRef, SchemeHTTP) || strings.HasPrefix(m.ArtworkRef, SchemeHTTPS)
}

// ResultKind tags a SourceResult.
type ResultKind int

const (
	// KindNone means the source found nothing.
	KindNone ResultKind = iota
	// KindPath means the source resolved a local file path.
	KindPath
	// KindBytes means the source returned raw encoded image bytes.
	KindBytes
)

// SourceResult is the outcome of a single source lookup. Exactly one of Path
// or Data is set, according to Kind.
type SourceResult struct {
	Kind   ResultKind
	Path   string
	Data   []byte
	URL    string // origin of Data, used as the memory cache key
	Source string // name of the source that produced the result
}

// Found reports whether the result carries a path or bytes.
func (r SourceResult) Found() bool {
	return r.Kind != KindNone
}

// PathResult builds a path-typed result.
func PathResult(source, path string) SourceResult {
	return SourceResult{Kind: KindPath, Path: path, Source: source}
}

// BytesResult builds a bytes-typed result.
func BytesResult(source, url string, data []byte) SourceResult {
	return SourceResult{Kind: KindBytes, Data: data, URL: url, Source: source}
}

// Status classifies a resolution outcome.
type Status int

const (
	// StatusNotFound means no artwork exists for the item.
	StatusNotFound Status = iota
	// StatusFound means a bitmap was produced.
	StatusFound
	// StatusFailed means the subsystem malfunctioned; callers still see "no artwork".
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// Tiers reported in Result.Tier.
const (
	TierMemory = "memory"
	TierDisk   = "disk"
	TierSource = "source"
)

// Result is the internal outcome of a resolution.
type Result struct {
	Image  image.Image
	Status Status
	Err    error  // cause for NotFound/Failed, if any
	Key    string // derived disk key, empty when artist/album are unknown
	Tier   string // memory, disk or source
	Source string // source name when Tier is source
}

// LibraryIndex is the media-library collaborator.
type LibraryIndex interface {
	// LookupAlbumArt returns the stored artwork path for an exact album name,
	// or an empty string when none is known.
	LookupAlbumArt(album string) (string, error)
}

// MetadataProvider reports artist and album names for a media item, substituting
// its own unknown sentinels for missing values.
type MetadataProvider interface {
	Artist(m MediaRef) string
	Album(m MediaRef) string
}

// Extractor writes the artwork embedded in a media container to dest.
type Extractor interface {
	ExtractArtwork(ctx context.Context, m MediaRef, dest string) error
}

// RemoteFetcher downloads remote artwork.
type RemoteFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StorageCheck reports whether the cache storage can be used.
type StorageCheck interface {
	Available() bool
}

// DirCheck reports storage as available when Root is an existing directory.
type DirCheck struct {
	Root string
}

// Available implements StorageCheck.
func (p DirCheck) Available() bool {
	info, err := os.Stat(p.Root)
	return err == nil && info.IsDir()
}

// Recorder receives resolution events.
type Recorder interface {
	CacheHit(tier string)
	SourceHit(source string)
	Miss()
	Failure(kind string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)  {}
func (nopRecorder) SourceHit(string) {}
func (nopRecorder) Miss()            {}
func (nopRecorder) Failure(string)   {}

// StaticMetadata is a MetadataProvider that reads names straight from the
// MediaRef, reporting the configured sentinels for missing values.
type StaticMetadata struct {
	UnknownArtist string
	UnknownAlbum  string
}

// Artist implements MetadataProvider.
func (s StaticMetadata) Artist(m MediaRef) string {
	if m.Artist != "" {
		return m.Artist
	}
	return s.UnknownArtist
}

// Album implements MetadataProvider.
func (s StaticMetadata) Album(m MediaRef) string {
	if m.Album != "" {
		return m.Album
	}
	return s.UnknownAlbum
}
