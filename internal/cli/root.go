package cli

import (
	"fmt"

	"github.com/lazypower/saferoute/internal/config"
	"github.com/lazypower/saferoute/internal/logging"
	"github.com/lazypower/saferoute/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	cfg    config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "saferoute",
	Short: "Crowd-sourced safety scores for street map nodes",
	Long: "Saferoute collects safety ratings for map nodes, keeps the latest rating per user, " +
		"and annotates the street graph with decay-weighted safety scores.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.saferoute/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(ratingsCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(generateCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	var err error
	if cfg, err = config.Load(path); err != nil {
		return err
	}
	if logger, err = logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	return nil
}

// storePath resolves the configured store path, defaulting per backend.
func storePath() (string, error) {
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	if cfg.Store.Backend == store.BackendSQLite {
		return store.DefaultDBPath()
	}
	return store.DefaultFilePath()
}

// openStore is a helper that opens the configured rating store for CLI commands.
func openStore() (store.Ratings, error) {
	path, err := storePath()
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	s, err := store.OpenBackend(cfg.Store.Backend, path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
