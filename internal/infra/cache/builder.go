package cache

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

// AudioExtensions are the file types the builder reads tags from.
var AudioExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".opus", ".dsf", ".wav"}

// TagReader reads album names from audio files.
type TagReader interface {
	ReadAlbum(path string) (album, albumArtist string, err error)
}

// BuildStats summarizes an index build.
type BuildStats struct {
	FilesScanned  int
	AlbumsSeen    int
	AlbumsIndexed int
	Duration      time.Duration
}

// Builder populates the album artwork index from a music directory using the
// folder heuristic for each album's first track that has one.
type Builder struct {
	dao    *DAO
	tags   TagReader
	folder *artwork.FolderSource
}

// NewBuilder creates an index builder.
func NewBuilder(dao *DAO, tags TagReader) *Builder {
	return &Builder{
		dao:    dao,
		tags:   tags,
		folder: artwork.NewFolderSource(),
	}
}

// Build walks musicDir and records folder artwork per album.
func (b *Builder) Build(ctx context.Context, musicDir string) (*BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{}
	seen := make(map[string]bool) // album -> indexed

	log.Info().Str("musicDir", musicDir).Msg("Building library artwork index")

	err := filepath.WalkDir(musicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !isAudioFile(path) {
			return nil
		}
		stats.FilesScanned++

		album, albumArtist, err := b.tags.ReadAlbum(path)
		if err != nil || album == "" {
			return nil
		}
		indexed, known := seen[album]
		if !known {
			stats.AlbumsSeen++
		}
		if indexed {
			return nil
		}
		seen[album] = false

		artPath := b.folder.FindArtwork(path)
		if artPath == "" {
			return nil
		}
		if err := b.dao.UpsertAlbumArt(&AlbumArt{
			Album:       album,
			AlbumArtist: albumArtist,
			ArtPath:     artPath,
			Source:      "folder",
		}); err != nil {
			return err
		}
		seen[album] = true
		stats.AlbumsIndexed++
		return nil
	})

	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	log.Info().
		Int("files", stats.FilesScanned).
		Int("albums", stats.AlbumsSeen).
		Int("indexed", stats.AlbumsIndexed).
		Dur("duration", stats.Duration).
		Msg("Library artwork index built")
	return stats, nil
}

func isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range AudioExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
