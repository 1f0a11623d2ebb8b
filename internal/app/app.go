// Package app wires configuration into a ready artwork resolver.
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/config"
	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverart/internal/infra/cache"
	"github.com/edumarques81/stellar-coverart/internal/infra/fetch"
	"github.com/edumarques81/stellar-coverart/internal/infra/metrics"
	"github.com/edumarques81/stellar-coverart/internal/infra/mpd"
	"github.com/edumarques81/stellar-coverart/internal/infra/tags"
)

// App holds the resolver and the collaborators it owns.
type App struct {
	Config   *config.Config
	Resolver *artwork.Resolver
	Registry *prometheus.Registry
	Library  *cache.DAO

	libraryDB *cache.DB
	mpdClient *mpd.Client
}

// New builds the resolver described by cfg and prepares its cache area.
func New(cfg *config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reader := tags.NewReader(cfg.UnknownArtist, cfg.UnknownAlbum)
	chainCfg := artwork.ChainConfig{
		Metadata:      reader,
		Extractor:     reader,
		UnknownArtist: cfg.UnknownArtist,
		UnknownAlbum:  cfg.UnknownAlbum,
	}

	if cfg.Backend == config.BackendMPD {
		// The client reconnects lazily, so MPD need not be up yet.
		a.mpdClient = mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
		chainCfg.Extractor = mpd.NewExtractor(a.mpdClient, cfg.MPDMusicDir)
	}

	if cfg.LibraryDBPath != "" {
		db := cache.NewDB(cfg.LibraryDBPath)
		if err := db.Open(); err != nil {
			return nil, fmt.Errorf("open library index: %w", err)
		}
		a.libraryDB = db
		a.Library = cache.NewDAO(db)
		chainCfg.Library = a.Library

		if n, err := a.Library.CountAlbumArt(); err != nil {
			log.Warn().Err(err).Msg("Failed to count library index")
		} else {
			log.Info().Int("albums", n).Str("path", cfg.LibraryDBPath).Msg("Library index opened")
		}
	}

	if cfg.RemoteEnabled {
		chainCfg.Fetcher = fetch.NewClient(
			fetch.WithUserAgent(cfg.RemoteUserAgent),
			fetch.WithTimeout(cfg.RemoteTimeout),
			fetch.WithRateLimit(cfg.RemoteRateLimit),
		)
	}

	recorder, err := metrics.NewRecorder("coverart", a.Registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	disk := artwork.NewDiskCache(cfg.CacheRoot)
	chainCfg.ArtDir = disk.ArtDir()

	a.Resolver = artwork.NewResolver(
		artwork.NewMemoryCache(cfg.MemoryMaxBytes, cfg.MemoryMaxEntries),
		disk,
		artwork.NewDefaultChain(chainCfg),
		artwork.WithLocking(cfg.Locking),
		artwork.WithRecorder(recorder),
		artwork.WithMaxDecodePixels(cfg.DecodeMaxPixels),
	)

	if err := a.Resolver.PrepareCacheArea(); err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Str("cacheRoot", cfg.CacheRoot).
		Str("backend", cfg.Backend).
		Bool("library", a.Library != nil).
		Bool("remote", cfg.RemoteEnabled).
		Msg("Artwork resolver ready")
	return a, nil
}

// Healthy reports whether the cache root is usable.
func (a *App) Healthy() error {
	if !(artwork.DirCheck{Root: a.Config.CacheRoot}).Available() {
		return artwork.ErrStorageUnavailable
	}
	return nil
}

// Close releases the library database and the MPD connection.
func (a *App) Close() error {
	var errs []error
	if a.libraryDB != nil {
		errs = append(errs, a.libraryDB.Close())
	}
	if a.mpdClient != nil {
		errs = append(errs, a.mpdClient.Close())
	}
	return errors.Join(errs...)
}
