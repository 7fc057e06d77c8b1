// Package writer defines the export format shared by the csv and json writers.
package writer

import (
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Writer exports persisted transactions.
type Writer interface {
	Write(txns []api.PersistedTransaction) error
}

// Record is the exported shape of a transaction.
type Record struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	DateTime    string `json:"date_time"`
	RoomID      *int64 `json:"room_id,omitempty"`
}

// NewRecord converts t, rendering its time in loc (UTC when nil) as ISO-8601.
func NewRecord(t api.PersistedTransaction, loc *time.Location) Record {
	if loc == nil {
		loc = time.UTC
	}
	return Record{
		ID:          t.ID,
		Type:        t.Kind.String(),
		Description: t.Description,
		Amount:      t.Amount,
		Currency:    t.Currency,
		DateTime:    t.OccurredAt.In(loc).Format(time.RFC3339),
		RoomID:      t.RoomID,
	}
}
