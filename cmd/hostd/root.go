package main

import (
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// configPath is the --config flag; empty falls back to $HOSTKIT_CONFIG.
var configPath string

var rootCmd = &cobra.Command{
	Use:           "hostd",
	Short:         "Desktop host runtime",
	Long:          `hostd runs the desktop host runtime: per-file storage, window registry, IPC relay and updates.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
