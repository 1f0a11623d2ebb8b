// Package tags reads audio file tags and extracts embedded artwork.
package tags

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

// ErrNoPicture is returned when a file carries no embedded picture.
var ErrNoPicture = errors.New("no embedded picture")

// Reader is the media backend built on embedded tags: it names artists and
// albums and extracts embedded pictures.
type Reader struct {
	unknownArtist string
	unknownAlbum  string
}

// NewReader creates a tag reader reporting the given sentinels for missing names.
func NewReader(unknownArtist, unknownAlbum string) *Reader {
	if unknownArtist == "" {
		unknownArtist = artwork.DefaultUnknownArtist
	}
	if unknownAlbum == "" {
		unknownAlbum = artwork.DefaultUnknownAlbum
	}
	return &Reader{
		unknownArtist: unknownArtist,
		unknownAlbum:  unknownAlbum,
	}
}

// Read parses the tags of the file at path.
func (r *Reader) Read(path string) (tag.Metadata, error) {
	f, err := os.Open(strings.TrimPrefix(path, artwork.SchemeFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	return m, nil
}

// ReadAlbum returns the album and album artist of the file at path, falling
// back to the track artist.
func (r *Reader) ReadAlbum(path string) (string, string, error) {
	m, err := r.Read(path)
	if err != nil {
		return "", "", err
	}
	artist := m.AlbumArtist()
	if artist == "" {
		artist = m.Artist()
	}
	return strings.TrimSpace(m.Album()), strings.TrimSpace(artist), nil
}

// Artist implements artwork.MetadataProvider.
func (r *Reader) Artist(m artwork.MediaRef) string {
	if m.Artist != "" {
		return m.Artist
	}
	if md, err := r.Read(m.Location); err == nil && md.Artist() != "" {
		return md.Artist()
	}
	return r.unknownArtist
}

// Album implements artwork.MetadataProvider.
func (r *Reader) Album(m artwork.MediaRef) string {
	if m.Album != "" {
		return m.Album
	}
	if md, err := r.Read(m.Location); err == nil && md.Album() != "" {
		return md.Album()
	}
	return r.unknownAlbum
}

// ExtractArtwork implements artwork.Extractor by writing the embedded picture
// of the media file to dest.
func (r *Reader) ExtractArtwork(ctx context.Context, m artwork.MediaRef, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Location == "" {
		return ErrNoPicture
	}
	md, err := r.Read(m.Location)
	if err != nil {
		return err
	}
	pic := md.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return ErrNoPicture
	}

	if err := os.WriteFile(dest, pic.Data, 0644); err != nil {
		return fmt.Errorf("write embedded picture: %w", err)
	}

	log.Debug().
		Str("location", m.Location).
		Str("dest", dest).
		Str("type", pic.MIMEType).
		Int("size", len(pic.Data)).
		Msg("Extracted embedded artwork")
	return nil
}
