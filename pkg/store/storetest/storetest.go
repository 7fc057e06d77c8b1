// Package storetest holds behavior tests shared by every api.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Run exercises store against the api.Store contract. The store must be empty.
func Run(t *testing.T, store api.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("EnsureUser", func(t *testing.T) {
		first, err := store.EnsureUser(ctx, "ana@example.com", "Ana")
		if err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
		again, err := store.EnsureUser(ctx, "ana@example.com", "Otro nombre")
		if err != nil {
			t.Fatalf("EnsureUser again: %v", err)
		}
		if first != again {
			t.Errorf("user id: got %d, want %d", again, first)
		}

		other, err := store.EnsureUser(ctx, "beto@example.com", "Beto")
		if err != nil {
			t.Fatalf("EnsureUser other: %v", err)
		}
		if other == first {
			t.Errorf("distinct users share id %d", other)
		}
	})

	t.Run("InsertHasList", func(t *testing.T) {
		userID, err := store.EnsureUser(ctx, "carla@example.com", "Carla")
		if err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}
		otherID, err := store.EnsureUser(ctx, "diego@example.com", "Diego")
		if err != nil {
			t.Fatalf("EnsureUser: %v", err)
		}

		santiago := time.FixedZone("CLT", -3*60*60)
		room := int64(7)
		older := api.ParsedTransaction{
			Kind:        api.KindPurchase,
			Amount:      12345,
			Description: "FARMACIA AHUMADA",
			OccurredAt:  time.Date(2024, 3, 5, 14, 30, 0, 0, santiago),
		}
		newer := api.ParsedTransaction{
			Kind:        api.KindTransferOut,
			Amount:      50000,
			Description: "Transferencia a terceros",
			OccurredAt:  time.Date(2024, 3, 6, 9, 0, 0, 0, santiago),
		}

		err = store.InsertTransactions(ctx, []api.PersistedTransaction{
			{UserID: userID, ParsedTransaction: older, Currency: "CLP"},
			{UserID: userID, RoomID: &room, ParsedTransaction: newer, Currency: "CLP"},
			{UserID: otherID, ParsedTransaction: newer, Currency: "CLP"},
		})
		if err != nil {
			t.Fatalf("InsertTransactions: %v", err)
		}

		tests := []struct {
			name string
			key  api.DedupKey
			want bool
		}{
			{"same key", older.Key(userID), true},
			{"same instant in another zone", api.ParsedTransaction{
				Kind: older.Kind, Amount: older.Amount, Description: older.Description,
				OccurredAt: older.OccurredAt.UTC(),
			}.Key(userID), true},
			{"other amount", api.ParsedTransaction{
				Kind: older.Kind, Amount: 1, Description: older.Description, OccurredAt: older.OccurredAt,
			}.Key(userID), false},
			{"other kind", api.ParsedTransaction{
				Kind: api.KindTransferOut, Amount: older.Amount, Description: older.Description, OccurredAt: older.OccurredAt,
			}.Key(userID), false},
			{"other minute", api.ParsedTransaction{
				Kind: older.Kind, Amount: older.Amount, Description: older.Description,
				OccurredAt: older.OccurredAt.Add(time.Minute),
			}.Key(userID), false},
			{"other user", older.Key(otherID), false},
		}
		for _, tc := range tests {
			got, err := store.HasTransaction(ctx, tc.key)
			if err != nil {
				t.Fatalf("HasTransaction(%s): %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("HasTransaction(%s): got %v, want %v", tc.name, got, tc.want)
			}
		}

		txns, err := store.ListTransactions(ctx, userID)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		if len(txns) != 2 {
			t.Fatalf("count: got %d, want 2", len(txns))
		}

		first, second := txns[0], txns[1]
		if first.Kind != api.KindTransferOut || !first.OccurredAt.Equal(newer.OccurredAt) {
			t.Errorf("newest first: got %+v", first)
		}
		if first.RoomID == nil || *first.RoomID != room {
			t.Errorf("room: got %v, want %d", first.RoomID, room)
		}
		if second.Description != older.Description || second.Amount != older.Amount || second.Currency != "CLP" {
			t.Errorf("older: got %+v", second)
		}
		if second.RoomID != nil {
			t.Errorf("room: got %d, want nil", *second.RoomID)
		}
		if first.ID == 0 || second.ID == 0 || first.ID == second.ID {
			t.Errorf("ids: got %d and %d", first.ID, second.ID)
		}
		if first.UserID != userID {
			t.Errorf("user: got %d, want %d", first.UserID, userID)
		}
	})

	t.Run("InsertEmpty", func(t *testing.T) {
		if err := store.InsertTransactions(ctx, nil); err != nil {
			t.Errorf("InsertTransactions(nil): %v", err)
		}
	})
}
