package mpd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

// ErrOutsideMusicDir is returned for media files MPD cannot address.
var ErrOutsideMusicDir = errors.New("media file is outside the MPD music directory")

// PictureSource returns the artwork MPD holds for a URI.
type PictureSource interface {
	Picture(ctx context.Context, uri string) ([]byte, error)
}

// Extractor extracts artwork through MPD, which reads the embedded picture
// and falls back to the cover file of the song's directory.
type Extractor struct {
	mpd      PictureSource
	musicDir string
}

// NewExtractor creates an extractor for media under musicDir.
func NewExtractor(mpd PictureSource, musicDir string) *Extractor {
	return &Extractor{mpd: mpd, musicDir: musicDir}
}

// URI converts a media location into an MPD URI relative to the music directory.
func (e *Extractor) URI(location string) (string, error) {
	location = strings.TrimPrefix(location, artwork.SchemeFile)
	if location == "" {
		return "", ErrOutsideMusicDir
	}
	if e.musicDir == "" || !filepath.IsAbs(location) {
		return filepath.ToSlash(location), nil
	}

	rel, err := filepath.Rel(e.musicDir, location)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideMusicDir
	}
	return filepath.ToSlash(rel), nil
}

// ExtractArtwork implements artwork.Extractor.
func (e *Extractor) ExtractArtwork(ctx context.Context, m artwork.MediaRef, dest string) error {
	uri, err := e.URI(m.Location)
	if err != nil {
		return err
	}

	data, err := e.mpd.Picture(ctx, uri)
	if err != nil {
		return fmt.Errorf("mpd artwork: %w", err)
	}
	if len(data) == 0 {
		return artwork.ErrNoArtwork
	}

	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("write artwork: %w", err)
	}

	log.Debug().Str("uri", uri).Str("dest", dest).Int("size", len(data)).Msg("Extracted artwork via MPD")
	return nil
}
