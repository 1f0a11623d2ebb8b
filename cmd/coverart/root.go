package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edumarques81/stellar-coverart/internal/app"
	"github.com/edumarques81/stellar-coverart/internal/config"
	"github.com/edumarques81/stellar-coverart/internal/logger"
	"github.com/edumarques81/stellar-coverart/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coverart",
	Short: "Album artwork resolver and cache",
	Long: `Coverart finds the cover image for a media item, scales it to the requested
width and keeps it in a two-tier cache (memory and disk).

Artwork is looked up in embedded tags, the library index, the media folder
and finally remote URLs.`,
	Version:       version.GetInfo().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./coverart.yaml or $HOME/coverart.yaml)")
	flags.String("cache-root", "", "directory holding the covers and art cache areas")
	flags.String("locking", "", "resolution locking: 'per-key' or 'global'")
	flags.String("backend", "", "embedded artwork backend: 'tags' or 'mpd'")
	flags.String("library-db", "", "path of the library artwork index (disabled when empty)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON instead of console output")

	bindFlag("cache_root", "cache-root")
	bindFlag("locking", "locking")
	bindFlag("backend", "backend")
	bindFlag("library.db_path", "library-db")
	bindFlag("log.level", "log-level")
	bindFlag("log.json", "log-json")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("coverart")
	}

	// COVERART_MPD_HOST maps to mpd.host.
	viper.SetEnvPrefix("COVERART")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogJSON); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads the configuration and builds the resolver.
func newApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}
