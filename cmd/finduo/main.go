// Command finduo imports Banco de Chile alert emails as transactions.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "finduo",
		Short:         "Import Banco de Chile alert emails as transactions",
		Long:          "finduo reads bank alert emails and stores them as transactions.\nConfiguration is read from environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			return err
		},
	}

	var dryRun bool
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one ingestion pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), cfg, dryRun, logger)
		},
	}
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and dedup without persisting (in-memory store)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /sync-email, GET /transactions and GET /health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	var format, output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the owner's transactions as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd.Context(), cfg, format, output, logger)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	exportCmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration, storage and mailbox connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cfg, logger)
		},
	}

	var force bool
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize the Gmail backend with Google OAuth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd.Context(), cfg, force, logger)
		},
	}
	setupCmd.Flags().BoolVar(&force, "force", false, "discard the saved token and authorize again")

	root.AddCommand(syncCmd, serveCmd, exportCmd, statusCmd, setupCmd)
	return root
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
