// Package csv implements a Writer that exports transactions as CSV.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/writer"
)

// Headers is the CSV header row.
var Headers = []string{"id", "type", "description", "amount", "currency", "date_time", "room_id"}

// Config holds configuration for the CSV writer.
type Config struct {
	// Location renders date_time. Defaults to UTC.
	Location *time.Location
	// OmitHeaders skips the header row.
	OmitHeaders bool
}

// Writer writes transactions as CSV rows.
type Writer struct {
	out    *csv.Writer
	cfg    Config
	logger *slog.Logger
}

// New creates a new CSV writer on out.
func New(out io.Writer, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		out:    csv.NewWriter(out),
		cfg:    cfg,
		logger: logger,
	}
}

// Write writes the header row followed by one row per transaction.
func (w *Writer) Write(txns []api.PersistedTransaction) error {
	if !w.cfg.OmitHeaders {
		if err := w.out.Write(Headers); err != nil {
			return fmt.Errorf("writing csv headers: %w", err)
		}
	}

	for _, t := range txns {
		r := writer.NewRecord(t, w.cfg.Location)

		room := ""
		if r.RoomID != nil {
			room = strconv.FormatInt(*r.RoomID, 10)
		}
		record := []string{
			strconv.FormatInt(r.ID, 10),
			r.Type,
			r.Description,
			strconv.FormatInt(r.Amount, 10),
			r.Currency,
			r.DateTime,
			room,
		}
		if err := w.out.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.out.Flush()
	if err := w.out.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", len(txns))
	return nil
}
