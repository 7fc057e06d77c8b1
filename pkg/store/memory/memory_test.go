package memory

import (
	"context"
	"testing"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestHasTransaction_ZonedKey(t *testing.T) {
	ctx := context.Background()
	store := New()

	userID, err := store.EnsureUser(ctx, "ana@example.com", "Ana")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	clt := time.FixedZone("CLT", -3*60*60)
	occurred := time.Date(2025, 3, 14, 15, 30, 0, 0, clt)
	parsed := api.ParsedTransaction{
		Kind:        api.KindPurchase,
		Amount:      12990,
		Description: "SUPERMERCADO LIDER",
		OccurredAt:  occurred,
	}
	if err := store.InsertTransactions(ctx, []api.PersistedTransaction{
		{UserID: userID, ParsedTransaction: parsed, Currency: "CLP"},
	}); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"same zone", occurred, true},
		{"utc", occurred.UTC(), true},
		{"other zone", occurred.In(time.FixedZone("CET", 60*60)), true},
		{"other instant", occurred.Add(time.Minute), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key := api.DedupKey{
				UserID:      userID,
				Kind:        parsed.Kind,
				Amount:      parsed.Amount,
				Description: parsed.Description,
				OccurredAt:  tc.at,
			}
			got, err := store.HasTransaction(ctx, key)
			if err != nil {
				t.Fatalf("HasTransaction: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
