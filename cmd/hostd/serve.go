package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/hostkit/internal/infrastructure/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort string
	serveHost string
	serveDev  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host HTTP and IPC server",
	Long:  `Starts the REST API, the /ipc websocket and /metrics. Stops gracefully on SIGINT or SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Override the listen port")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override the listen host")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Run in development mode")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveDev {
		cfg.IsDev = true
		cfg.Logging.Development = true
	}
	if version != "dev" && cfg.Updater.CurrentVersion == "0.0.0" {
		cfg.Updater.CurrentVersion = version
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		srv.Logger().Error("Server error", zap.Error(err))
		return err
	}
	if ctx.Err() == context.Canceled {
		srv.Logger().Info("Shut down gracefully")
	}
	return nil
}
