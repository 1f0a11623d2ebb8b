package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the cover of one media item",
	Example: `  coverart resolve --artist Radiohead --album "OK Computer" \
    --location /music/Radiohead/OKC/01.flac --width 300 --out cover.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		artist, _ := flags.GetString("artist")
		album, _ := flags.GetString("album")
		title, _ := flags.GetString("title")
		ref, _ := flags.GetString("artwork")
		location, _ := flags.GetString("location")
		width, _ := flags.GetInt("width")
		out, _ := flags.GetString("out")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		m := artwork.MediaRef{Artist: artist, Album: album, Title: title, ArtworkRef: ref, Location: location}
		res := a.Resolver.ResolveResult(cmd.Context(), m, width)

		fmt.Fprintf(cmd.OutOrStdout(), "status=%s", res.Status)
		if res.Key != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " key=%s", res.Key)
		}
		if res.Tier != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " tier=%s", res.Tier)
		}
		if res.Source != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " source=%s", res.Source)
		}
		if res.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), " error=%q", res.Err.Error())
		}
		fmt.Fprintln(cmd.OutOrStdout())

		if res.Image == nil {
			return artwork.ErrNoArtwork
		}
		return writeCover(out, res.Image)
	},
}

var resolveAnyCmd = &cobra.Command{
	Use:   "resolve-any [items.json]",
	Short: "Resolve the first available cover in a list of media items",
	Long: `Resolve-any reads a JSON array of media items from a file, or stdin when no
file is given, and writes the first cover found. Each album is tried once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		width, _ := cmd.Flags().GetInt("width")
		memoryOnly, _ := cmd.Flags().GetBool("memory-only")
		out, _ := cmd.Flags().GetString("out")

		var input io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			input = f
		}

		var items []artwork.MediaRef
		if err := json.NewDecoder(input).Decode(&items); err != nil {
			return fmt.Errorf("invalid item list: %w", err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		img := a.Resolver.ResolveAny(cmd.Context(), items, width, memoryOnly)
		if img == nil {
			return artwork.ErrNoArtwork
		}
		fmt.Fprintf(cmd.OutOrStdout(), "found %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy())
		return writeCover(out, img)
	},
}

func writeCover(path string, img image.Image) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: artwork.CoverQuality}); err != nil {
		f.Close()
		return fmt.Errorf("encode cover: %w", err)
	}
	return f.Close()
}

func init() {
	flags := resolveCmd.Flags()
	flags.String("artist", "", "album artist (empty when unknown)")
	flags.String("album", "", "album name (empty when unknown)")
	flags.String("title", "", "track title")
	flags.String("artwork", "", "artwork reference: file://, attachment:// or http(s)://")
	flags.String("location", "", "path of the media file")
	flags.Int("width", 300, "target width in pixels")
	flags.String("out", "", "write the cover as JPEG to this path")

	resolveAnyCmd.Flags().Int("width", 300, "target width in pixels")
	resolveAnyCmd.Flags().Bool("memory-only", false, "only consult the memory cache")
	resolveAnyCmd.Flags().String("out", "", "write the cover as JPEG to this path")

	rootCmd.AddCommand(resolveCmd, resolveAnyCmd)
}
