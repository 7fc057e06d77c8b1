package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/finduo/finduo-sync/internal/plugins"
	"github.com/finduo/finduo-sync/internal/server"
	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/extract"
	"github.com/finduo/finduo-sync/pkg/ingest"
	"github.com/finduo/finduo-sync/pkg/mailbox"
	"github.com/finduo/finduo-sync/pkg/store"
	"github.com/finduo/finduo-sync/pkg/store/memory"
)

const shutdownTimeout = 10 * time.Second

// newCoordinator wires the configured mailbox backend, the classifier and st.
func newCoordinator(ctx context.Context, cfg config.Config, st api.Store, logger *slog.Logger) (*ingest.Coordinator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	dialer, err := plugins.Default().CreateDialer(ctx, cfg, logger.With("component", cfg.MailboxBackend))
	if err != nil {
		return nil, fmt.Errorf("creating %s mailbox: %w", cfg.MailboxBackend, err)
	}

	return ingest.New(
		mailbox.NewScanner(dialer, logger),
		extract.New(extract.Config{Location: loc}, logger),
		st,
		ingest.Config{
			Senders:     cfg.Senders,
			Locations:   cfg.Locations,
			Limit:       cfg.BatchLimit,
			ScanTimeout: cfg.ScanTimeout,
			Currency:    cfg.Currency,
		},
		logger,
	), nil
}

// runSync runs one ingestion pass and prints the sync result.
func runSync(ctx context.Context, out io.Writer, cfg config.Config, dryRun bool, logger *slog.Logger) error {
	var (
		st  api.Store
		err error
	)
	if dryRun {
		st = memory.New()
	} else if st, err = store.Open(ctx, cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var result api.SyncResult
	coord, err := newCoordinator(ctx, cfg, st, logger)
	if err != nil {
		result = api.SyncResult{Imported: 0, Error: err.Error()}
	} else {
		result = coord.Sync(ctx, cfg.Owner())
	}

	enc := json.NewEncoder(out)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	return nil
}

// runServe serves the HTTP trigger until the context is canceled.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	coord, err := newCoordinator(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	srv := server.New(coord, st, server.Config{Owner: cfg.Owner(), Location: loc}, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
