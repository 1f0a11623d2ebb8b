// Package config loads service configuration from viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

// Media backends for embedded artwork.
const (
	BackendTags = "tags"
	BackendMPD  = "mpd"
)

// Config is the full service configuration.
type Config struct {
	CacheRoot string

	MemoryMaxBytes   int64
	MemoryMaxEntries int

	Locking artwork.LockMode

	DecodeMaxPixels int

	UnknownArtist string
	UnknownAlbum  string

	Backend string

	LibraryDBPath   string
	LibraryMusicDir string

	MPDHost     string
	MPDPort     int
	MPDPassword string
	MPDMusicDir string

	RemoteEnabled   bool
	RemoteUserAgent string
	RemoteTimeout   time.Duration
	RemoteRateLimit int

	HTTPListen      string
	HTTPMediaRoots  []string
	HTTPAllowRemote bool

	LogLevel string
	LogJSON  bool
}

// DefaultCacheRoot returns the per-user cache directory for covers.
func DefaultCacheRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "stellar-coverart")
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cache_root", DefaultCacheRoot())
	v.SetDefault("memory.max_bytes", artwork.DefaultMemoryBytes)
	v.SetDefault("memory.max_entries", artwork.DefaultMemoryEntries)
	v.SetDefault("locking", "per-key")
	v.SetDefault("decode.max_pixels", artwork.DefaultMaxPixels)
	v.SetDefault("unknown_artist", artwork.DefaultUnknownArtist)
	v.SetDefault("unknown_album", artwork.DefaultUnknownAlbum)
	v.SetDefault("backend", BackendTags)
	v.SetDefault("library.db_path", "")
	v.SetDefault("library.music_dir", "")
	v.SetDefault("mpd.host", "localhost")
	v.SetDefault("mpd.port", 6600)
	v.SetDefault("mpd.password", "")
	v.SetDefault("mpd.music_dir", "/var/lib/mpd/music")
	v.SetDefault("remote.enabled", true)
	v.SetDefault("remote.user_agent", "")
	v.SetDefault("remote.timeout", 15*time.Second)
	v.SetDefault("remote.rate_limit", 4)
	v.SetDefault("http.listen", "127.0.0.1:3002")
	v.SetDefault("http.media_roots", []string{})
	v.SetDefault("http.allow_remote_artwork", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads configuration from v, applying defaults first.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	locking, err := artwork.ParseLockMode(v.GetString("locking"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CacheRoot:        v.GetString("cache_root"),
		MemoryMaxBytes:   v.GetInt64("memory.max_bytes"),
		MemoryMaxEntries: v.GetInt("memory.max_entries"),
		Locking:          locking,
		DecodeMaxPixels:  v.GetInt("decode.max_pixels"),
		UnknownArtist:    v.GetString("unknown_artist"),
		UnknownAlbum:     v.GetString("unknown_album"),
		Backend:          v.GetString("backend"),
		LibraryDBPath:    v.GetString("library.db_path"),
		LibraryMusicDir:  v.GetString("library.music_dir"),
		MPDHost:          v.GetString("mpd.host"),
		MPDPort:          v.GetInt("mpd.port"),
		MPDPassword:      v.GetString("mpd.password"),
		MPDMusicDir:      v.GetString("mpd.music_dir"),
		RemoteEnabled:    v.GetBool("remote.enabled"),
		RemoteUserAgent:  v.GetString("remote.user_agent"),
		RemoteTimeout:    v.GetDuration("remote.timeout"),
		RemoteRateLimit:  v.GetInt("remote.rate_limit"),
		HTTPListen:       v.GetString("http.listen"),
		HTTPMediaRoots:   v.GetStringSlice("http.media_roots"),
		HTTPAllowRemote:  v.GetBool("http.allow_remote_artwork"),
		LogLevel:         v.GetString("log.level"),
		LogJSON:          v.GetBool("log.json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MediaRoots returns the directories HTTP clients may name local files in:
// http.media_roots, plus the library music directory and, for the mpd
// backend, the MPD music directory.
func (c *Config) MediaRoots() []string {
	roots := append([]string(nil), c.HTTPMediaRoots...)
	if c.LibraryMusicDir != "" {
		roots = append(roots, c.LibraryMusicDir)
	}
	if c.Backend == BackendMPD && c.MPDMusicDir != "" {
		roots = append(roots, c.MPDMusicDir)
	}
	return roots
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.CacheRoot == "" {
		errs = append(errs, errors.New("cache_root is required"))
	}
	if c.MemoryMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("memory.max_bytes must be positive, got %d", c.MemoryMaxBytes))
	}
	if c.MemoryMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("memory.max_entries must be positive, got %d", c.MemoryMaxEntries))
	}
	if c.UnknownArtist == "" || c.UnknownAlbum == "" {
		errs = append(errs, errors.New("unknown_artist and unknown_album must not be empty"))
	}
	switch c.Backend {
	case BackendTags:
	case BackendMPD:
		if c.MPDPort <= 0 || c.MPDPort > 65535 {
			errs = append(errs, fmt.Errorf("mpd.port out of range: %d", c.MPDPort))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend: %s (must be 'tags' or 'mpd')", c.Backend))
	}
	if c.DecodeMaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("decode.max_pixels must be positive, got %d", c.DecodeMaxPixels))
	}
	if c.RemoteTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote.timeout must not be negative, got %s", c.RemoteTimeout))
	}

	return errors.Join(errs...)
}
