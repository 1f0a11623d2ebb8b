package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edumarques81/stellar-coverart/internal/transport/httpapi"
	"github.com/edumarques81/stellar-coverart/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve covers over HTTP",
	Long: `Serve starts the HTTP API:
  GET  /cover          cover for one media item (JPEG)
  POST /cover/any      first cover found in a list of items (JPEG)
  POST /cache/clear    empty both cache tiers
  GET  /health         cache root availability
  GET  /api/v1/version build information
  GET  /metrics        Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		log.Info().Msgf("%s", version.GetInfo().String())
		if len(a.Config.MediaRoots()) == 0 {
			log.Warn().Msg("No media roots configured; requests naming local files will be refused")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := httpapi.NewServer(a.Resolver,
			httpapi.WithHealthCheck(a.Healthy),
			httpapi.WithGatherer(a.Registry),
			httpapi.WithMediaRoots(a.Config.MediaRoots()...),
			httpapi.WithRemoteArtwork(a.Config.HTTPAllowRemote),
		)
		return server.ListenAndServe(ctx, a.Config.HTTPListen)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (default 127.0.0.1:3002)")
	if err := viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}
