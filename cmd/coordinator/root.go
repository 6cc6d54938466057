package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/config"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/coordinator"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "coordinator",
		Short:         "Agent coordination core: session context cache and prompt templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", getEnv("CONFIG_FILE", ""), "YAML configuration file")

	load := func() (*config.Config, error) {
		return config.LoadConfig(configFile)
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newSeedCmd(load),
		newRenderCmd(load),
		newStatsCmd(load),
	)
	return rootCmd
}

type loader func() (*config.Config, error)

// open loads the configuration and builds a coordinator whose logger rides
// on the returned context.
func open(ctx context.Context, load loader) (context.Context, *coordinator.Coordinator, error) {
	cfg, err := load()
	if err != nil {
		return ctx, nil, err
	}
	coordinator.Version = Version
	ctx = coordinator.LogContext(ctx, cfg.Observability)
	c, err := coordinator.New(ctx, cfg)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, c, nil
}
