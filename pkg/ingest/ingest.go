// Package ingest runs one ingestion pass: scan the mailbox, normalize and
// classify each candidate message, drop duplicates and commit the rest in a
// single store transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/mailbox"
	"github.com/finduo/finduo-sync/pkg/normalize"
)

var (
	// ErrCommit wraps the store error when staged transactions could not be persisted.
	ErrCommit = errors.New("committing transactions")

	// ErrNoOwner is returned when the owner has no email address.
	ErrNoOwner = errors.New("owner email is required")
)

// previewLen is the number of body characters logged for unparsed messages.
const previewLen = 200

// Scanner retrieves candidate messages from the mailbox.
type Scanner interface {
	Scan(ctx context.Context, senders, locations []string, limit int) ([]api.RawMessage, error)
}

// Classifier turns a plain-text body into a transaction candidate.
type Classifier interface {
	Classify(body string) (api.ParsedTransaction, bool)
}

// Config holds configuration for the coordinator.
type Config struct {
	// Senders is the sender allow-list searched in every location.
	Senders []string
	// Locations are the mailbox folders or labels searched, in order.
	Locations []string
	// Limit caps the number of messages fetched per run. Defaults to mailbox.DefaultLimit.
	Limit int
	// ScanTimeout bounds the mailbox phase. Defaults to 2 minutes.
	ScanTimeout time.Duration
	// Currency is stamped on every persisted transaction. Defaults to CLP.
	Currency string
}

// Coordinator runs ingestion passes.
type Coordinator struct {
	scanner    Scanner
	classifier Classifier
	store      api.Store
	cfg        Config
	logger     *slog.Logger
}

// New creates a new coordinator.
func New(scanner Scanner, classifier Classifier, store api.Store, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = mailbox.DefaultLimit
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 2 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "CLP"
	}

	return &Coordinator{
		scanner:    scanner,
		classifier: classifier,
		store:      store,
		cfg:        cfg,
		logger:     logger.With("component", "ingest"),
	}
}

type outcome int

const (
	outcomeStaged outcome = iota
	outcomeDuplicate
	outcomeUnparsed
)

// Ingest runs one pass for owner. Per-message failures are counted, not
// returned. An error is returned when the owner cannot be resolved, the
// mailbox is unreachable or the final commit fails; in the last case the
// returned run reports nothing imported.
func (c *Coordinator) Ingest(ctx context.Context, owner api.Owner) (api.IngestionRun, error) {
	run := api.IngestionRun{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", run.RunID)

	if owner.Email == "" {
		return run, ErrNoOwner
	}

	userID, err := c.store.EnsureUser(ctx, owner.Email, owner.Name)
	if err != nil {
		return run, fmt.Errorf("resolving owner %s: %w", owner.Email, err)
	}
	run.UserID = userID
	logger = logger.With("user_id", userID)

	scanCtx, cancel := context.WithTimeout(ctx, c.cfg.ScanTimeout)
	messages, err := c.scanner.Scan(scanCtx, c.cfg.Senders, c.cfg.Locations, c.cfg.Limit)
	cancel()
	if err != nil {
		return run, fmt.Errorf("scanning mailbox: %w", err)
	}
	logger.Info("scanned mailbox", "messages", len(messages))

	staged := make([]api.PersistedTransaction, 0, len(messages))
	seen := make(map[api.DedupKey]struct{}, len(messages))

	for _, msg := range messages {
		msgLogger := logger.With("message_id", msg.ID, "location", msg.Location)

		parsed, result, err := c.process(ctx, msgLogger, userID, msg, seen)
		if err != nil {
			run.Errored++
			msgLogger.Error("failed to process message", "error", err)
			continue
		}

		switch result {
		case outcomeUnparsed:
			run.Unparsed++
		case outcomeDuplicate:
			run.SkippedDuplicate++
		case outcomeStaged:
			seen[parsed.Key(userID)] = struct{}{}
			staged = append(staged, api.PersistedTransaction{
				UserID:            userID,
				RoomID:            owner.RoomID,
				ParsedTransaction: parsed,
				Currency:          c.cfg.Currency,
			})
			run.Imported++
			msgLogger.Debug("staged transaction",
				"kind", parsed.Kind,
				"amount", parsed.Amount,
				"description", parsed.Description,
				"occurred_at", parsed.OccurredAt,
			)
		}
	}

	if len(staged) > 0 {
		if err := c.store.InsertTransactions(ctx, staged); err != nil {
			run.Errored += run.Imported
			run.Imported = 0
			logger.Error("failed to commit transactions", "staged", len(staged), "error", err)
			return run, fmt.Errorf("%w: %w", ErrCommit, err)
		}
	}

	logger.Info("ingestion complete",
		"imported", run.Imported,
		"skipped_duplicate", run.SkippedDuplicate,
		"unparsed", run.Unparsed,
		"errored", run.Errored,
	)
	return run, nil
}

// process normalizes, classifies and dedups a single message. Panics are
// recovered into errors so one bad message cannot abort the run.
func (c *Coordinator) process(ctx context.Context, logger *slog.Logger, userID int64, msg api.RawMessage, seen map[api.DedupKey]struct{}) (parsed api.ParsedTransaction, result outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
		}
	}()

	body, ok := normalize.Body(msg.Raw)
	if !ok {
		logger.Debug("message has no text body")
		return parsed, outcomeUnparsed, nil
	}

	parsed, ok = c.classifier.Classify(body)
	if !ok {
		logger.Debug("message did not match any rule", "preview", preview(body))
		return parsed, outcomeUnparsed, nil
	}

	key := parsed.Key(userID)
	if _, ok := seen[key]; ok {
		logger.Debug("duplicate within run")
		return parsed, outcomeDuplicate, nil
	}

	exists, err := c.store.HasTransaction(ctx, key)
	if err != nil {
		return parsed, 0, fmt.Errorf("checking for duplicate: %w", err)
	}
	if exists {
		logger.Debug("transaction already imported")
		return parsed, outcomeDuplicate, nil
	}
	return parsed, outcomeStaged, nil
}

// Sync runs Ingest and reduces the outcome to the shape returned to callers.
// It never returns an error; failures are reported in SyncResult.Error.
func (c *Coordinator) Sync(ctx context.Context, owner api.Owner) api.SyncResult {
	run, err := c.Ingest(ctx, owner)
	if err != nil {
		c.logger.Error("sync failed", "run_id", run.RunID, "error", err)
		return api.SyncResult{Imported: 0, Error: err.Error()}
	}
	return api.SyncResult{Imported: run.Imported}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return string(runes)
}
