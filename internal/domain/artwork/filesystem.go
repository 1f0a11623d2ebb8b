package artwork

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// SiblingImageExtensions are the extensions accepted for an image sharing the
// media file's base name.
var SiblingImageExtensions = []string{
	".png",
	".jpeg",
	".jpg",
}

// CoverFilenames lists conventional cover file names, matched by suffix.
var CoverFilenames = []string{
	"Folder.jpg",        // Windows
	"AlbumArtSmall.jpg", // Windows
	"AlbumArt.jpg",      // Windows
	"Album.jpg",
	".folder.png", // KDE
	"cover.jpg",   // rockbox
	"thumb.jpg",
}

// FolderSource looks for artwork next to the media file.
type FolderSource struct{}

// NewFolderSource creates a folder heuristic source.
func NewFolderSource() *FolderSource {
	return &FolderSource{}
}

// Name implements Source.
func (f *FolderSource) Name() string { return "folder" }

// Find implements Source.
func (f *FolderSource) Find(_ context.Context, m MediaRef) (SourceResult, error) {
	if path := f.FindArtwork(m.Location); path != "" {
		return PathResult(f.Name(), path), nil
	}
	return SourceResult{}, nil
}

// FindArtwork inspects the directory of the media file at location. A sibling
// image with the same base name wins over conventional cover names. It returns
// an empty string when nothing matches.
func (f *FolderSource) FindArtwork(location string) string {
	location = strings.TrimPrefix(location, SchemeFile)
	if location == "" {
		return ""
	}

	dir := filepath.Dir(location)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Cannot list media folder")
		return ""
	}

	name := filepath.Base(location)
	if ext := filepath.Ext(name); ext != "" && len(ext) < len(name) {
		base := strings.TrimSuffix(name, ext)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			candidate := entry.Name()
			candidateExt := filepath.Ext(candidate)
			if strings.TrimSuffix(candidate, candidateExt) == base && isSiblingImageExt(candidateExt) {
				return filepath.Join(dir, candidate)
			}
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		for _, cover := range CoverFilenames {
			if strings.HasSuffix(entry.Name(), cover) {
				path := filepath.Join(dir, entry.Name())
				log.Debug().Str("path", path).Msg("Found folder artwork")
				return path
			}
		}
	}

	return ""
}

func isSiblingImageExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, valid := range SiblingImageExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}
