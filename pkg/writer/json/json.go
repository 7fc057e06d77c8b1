// Package json implements a Writer that exports transactions as a JSON array.
package json

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/writer"
)

// Config holds configuration for the JSON writer.
type Config struct {
	// Location renders date_time. Defaults to UTC.
	Location *time.Location
	// Indent pretty-prints the output with two spaces.
	Indent bool
}

// Writer writes transactions as a JSON array.
type Writer struct {
	out    io.Writer
	cfg    Config
	logger *slog.Logger
}

// New creates a new JSON writer on out.
func New(out io.Writer, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{out: out, cfg: cfg, logger: logger}
}

// Write encodes txns as a single array; an empty input yields [].
func (w *Writer) Write(txns []api.PersistedTransaction) error {
	records := make([]writer.Record, 0, len(txns))
	for _, t := range txns {
		records = append(records, writer.NewRecord(t, w.cfg.Location))
	}

	enc := json.NewEncoder(w.out)
	if w.cfg.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	w.logger.Debug("wrote transactions to json", "count", len(txns))
	return nil
}
