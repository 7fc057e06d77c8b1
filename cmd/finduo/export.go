package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/store"
	"github.com/finduo/finduo-sync/pkg/writer"
	csvwriter "github.com/finduo/finduo-sync/pkg/writer/csv"
	jsonwriter "github.com/finduo/finduo-sync/pkg/writer/json"
)

// runExport writes the owner's transactions, newest first.
func runExport(ctx context.Context, cfg config.Config, format, output string, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w writer.Writer
	switch format {
	case "csv":
		w = csvwriter.New(out, csvwriter.Config{Location: loc}, logger)
	case "json":
		w = jsonwriter.New(out, jsonwriter.Config{Location: loc, Indent: true}, logger)
	default:
		return fmt.Errorf("unknown export format %q (want csv or json)", format)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	owner := cfg.Owner()
	userID, err := st.EnsureUser(ctx, owner.Email, owner.Name)
	if err != nil {
		return fmt.Errorf("resolving owner: %w", err)
	}

	txns, err := st.ListTransactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}

	if err := w.Write(txns); err != nil {
		return fmt.Errorf("writing %s: %w", format, err)
	}

	logger.Info("export complete", "format", format, "count", len(txns))
	return nil
}
