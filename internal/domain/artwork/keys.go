package artwork

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Cache area layout under the cache root.
const (
	CoversDirName = "covers"
	ArtDirName    = "art"

	attachmentDirName  = "arturl"
	artistAlbumDirName = "artistalbum"
	embeddedArtName    = "art.png"
)

// DiskKey derives the covers cache key for an artist/album pair at a width.
// The hash is MurmurHash3 x86 32-bit, seed 0, over the UTF-8 bytes of
// artist+album, read as a signed int32.
func DiskKey(artist, album string, width int) string {
	h := int32(murmur3.Sum32([]byte(artist + album)))
	return encodeHash(h) + "_" + strconv.Itoa(width)
}

// encodeHash renders a hash without a minus sign: negative values get an "m" prefix.
func encodeHash(h int32) string {
	if h >= 0 {
		return strconv.FormatInt(int64(h), 10)
	}
	return "m" + strconv.FormatInt(-int64(h), 10)
}

// AttachmentKey derives the directory name used for embedded artwork of an
// item whose artist or album is unknown: MD5 of artworkRef+title as 32
// lowercase hex characters.
func AttachmentKey(title, artworkRef string) string {
	sum := md5.Sum([]byte(artworkRef + title))
	return hex.EncodeToString(sum[:])
}

// AttachmentArtPath returns <artDir>/arturl/<key>/art.png.
func AttachmentArtPath(artDir, key string) string {
	return filepath.Join(artDir, attachmentDirName, key, embeddedArtName)
}

// ArtistAlbumArtPath returns <artDir>/artistalbum/<artist>/<album>/art.png.
func ArtistAlbumArtPath(artDir, artist, album string) string {
	return filepath.Join(artDir, artistAlbumDirName, pathSegment(artist), pathSegment(album), embeddedArtName)
}

var segmentReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// pathSegment keeps a name inside its parent directory.
func pathSegment(name string) string {
	s := segmentReplacer.Replace(name)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}
