// Package api defines the core interfaces and data structures for finduo-sync.
package api

import (
	"context"
	"fmt"
	"time"
)

// Kind tags a parsed transaction as a purchase or an outgoing transfer.
type Kind int

const (
	KindPurchase Kind = iota + 1
	KindTransferOut
)

// String returns the persisted name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPurchase:
		return "purchase"
	case KindTransferOut:
		return "transfer_out"
	default:
		return "unknown"
	}
}

// ParseKind converts a persisted kind name back into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "purchase":
		return KindPurchase, true
	case "transfer_out":
		return KindTransferOut, true
	default:
		return 0, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown transaction kind %q", b)
	}
	*k = parsed
	return nil
}

// MessageID is a mailbox-assigned message identifier. Higher means newer.
type MessageID uint64

// RawMessage is a message as fetched from the mailbox, before normalization.
type RawMessage struct {
	ID MessageID
	// Location is the mailbox folder or label the message was fetched from.
	Location string
	Raw      []byte
}

// ParsedTransaction is a transaction candidate extracted from a message body.
type ParsedTransaction struct {
	Kind Kind `json:"kind"`
	// Amount is in whole currency units; the currency has no minor units.
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PersistedTransaction is a ParsedTransaction owned by a user and stored.
type PersistedTransaction struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"owner_user_id"`
	RoomID *int64 `json:"room_id,omitempty"`
	ParsedTransaction
	Currency string `json:"currency"`
}

// DedupKey identifies an already-ingested transaction.
type DedupKey struct {
	UserID      int64
	Kind        Kind
	Amount      int64
	Description string
	OccurredAt  time.Time
}

// Equal reports whether k and o identify the same transaction. Times are
// compared as instants, so zone and monotonic readings do not matter.
func (k DedupKey) Equal(o DedupKey) bool {
	return k.UserID == o.UserID &&
		k.Kind == o.Kind &&
		k.Amount == o.Amount &&
		k.Description == o.Description &&
		k.OccurredAt.Equal(o.OccurredAt)
}

// Key returns the dedup key of t when owned by userID.
func (t ParsedTransaction) Key(userID int64) DedupKey {
	return DedupKey{
		UserID:      userID,
		Kind:        t.Kind,
		Amount:      t.Amount,
		Description: t.Description,
		OccurredAt:  t.OccurredAt.UTC(),
	}
}

// Owner identifies the user an ingestion run imports transactions for.
type Owner struct {
	Email string
	Name  string
	// RoomID optionally attaches imported transactions to a shared room.
	RoomID *int64
}

// IngestionRun holds the counters of a single ingestion invocation.
type IngestionRun struct {
	RunID            string `json:"run_id"`
	UserID           int64  `json:"user_id"`
	Imported         int    `json:"imported"`
	SkippedDuplicate int    `json:"skipped_duplicate"`
	Unparsed         int    `json:"unparsed"`
	Errored          int    `json:"errored"`
}

// SyncResult is the shape returned to callers of a sync trigger.
type SyncResult struct {
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// Store is the persistence collaborator consumed by the ingestion coordinator.
// It does not enforce dedup key uniqueness; callers check HasTransaction first.
type Store interface {
	// EnsureUser returns the ID of the user with the given email, creating it if needed.
	EnsureUser(ctx context.Context, email, name string) (int64, error)
	// HasTransaction reports whether a transaction with the given key exists.
	HasTransaction(ctx context.Context, key DedupKey) (bool, error)
	// InsertTransactions persists all transactions in a single transaction.
	InsertTransactions(ctx context.Context, txns []PersistedTransaction) error
	// ListTransactions returns the user's transactions, newest first.
	ListTransactions(ctx context.Context, userID int64) ([]PersistedTransaction, error)
	Close() error
}
