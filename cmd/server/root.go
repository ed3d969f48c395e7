package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/config"
	"github.com/warp/tour-engine/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tourengine",
		Short:         "Tour scheduling, seat admission and refund engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to the TOML config file")

	load := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		log, err := logging.New(cfg.Logs.Level, cfg.Logs.Development)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, log, nil
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newWorkerCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type loader func() (config.Config, *zap.Logger, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tourengine %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
