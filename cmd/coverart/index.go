package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-coverart/internal/infra/cache"
	"github.com/edumarques81/stellar-coverart/internal/infra/tags"
)

var indexCmd = &cobra.Command{
	Use:   "index [music-dir]",
	Short: "Build the library artwork index",
	Long: `Index walks a music directory, reads the album tag of each track and records
the folder artwork of each album in the library index. The music directory
defaults to library.music_dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prune, _ := cmd.Flags().GetBool("prune")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.LibraryDBPath == "" {
			return errors.New("library.db_path is required (set --library-db or COVERART_LIBRARY_DB_PATH)")
		}

		musicDir := cfg.LibraryMusicDir
		if len(args) == 1 {
			musicDir = args[0]
		}
		if musicDir == "" {
			return errors.New("music directory is required")
		}

		db := cache.NewDB(cfg.LibraryDBPath)
		if err := db.Open(); err != nil {
			return err
		}
		defer db.Close()
		dao := cache.NewDAO(db)

		if prune {
			removed, err := dao.PruneMissing()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d stale entries\n", removed)
		}

		builder := cache.NewBuilder(dao, tags.NewReader(cfg.UnknownArtist, cfg.UnknownAlbum))
		stats, err := builder.Build(cmd.Context(), musicDir)
		if err != nil {
			return fmt.Errorf("index build failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d files, %d albums, indexed %d in %s\n",
			stats.FilesScanned, stats.AlbumsSeen, stats.AlbumsIndexed, stats.Duration)

		total, err := dao.CountAlbumArt()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index holds %d albums\n", total)
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("prune", false, "remove entries whose artwork file is gone before indexing")
	rootCmd.AddCommand(indexCmd)
}
