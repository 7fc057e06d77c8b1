// Package extract turns normalized notification bodies into transaction candidates.
package extract

import (
	"log/slog"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Config holds configuration for the Classifier.
type Config struct {
	// Location is the wall-clock zone the bank writes timestamps in. Defaults to UTC.
	Location *time.Location
	// Now supplies the fallback timestamp for transfers without a date.
	// Defaults to time.Now.
	Now func() time.Time
}

// Classifier runs the purchase and transfer cascades over a message body.
type Classifier struct {
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// New creates a new Classifier.
func New(cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Classifier{
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: logger,
	}
}

// Classify tries the purchase cascade first and the transfer cascade second.
// A body matching both is reported as a purchase.
func (c *Classifier) Classify(body string) (api.ParsedTransaction, bool) {
	if txn, ok := c.Purchase(body); ok {
		return txn, true
	}
	return c.Transfer(body)
}
