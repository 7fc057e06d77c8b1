package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/extract"
	"github.com/finduo/finduo-sync/pkg/mailbox"
	"github.com/finduo/finduo-sync/pkg/store/memory"
)

var owner = api.Owner{Email: "owner@example.com", Name: "Usuario FinDuo"}

// fakeScanner returns a fixed batch of messages or a fixed error.
type fakeScanner struct {
	messages    []api.RawMessage
	err         error
	hadDeadline bool
}

func (f *fakeScanner) Scan(ctx context.Context, _, _ []string, _ int) ([]api.RawMessage, error) {
	_, f.hadDeadline = ctx.Deadline()
	return f.messages, f.err
}

// failingStore fails inserts; everything else is delegated.
type failingStore struct {
	*memory.Store
	insertErr error
	hasErr    error
}

func (f *failingStore) InsertTransactions(ctx context.Context, txns []api.PersistedTransaction) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.InsertTransactions(ctx, txns)
}

func (f *failingStore) HasTransaction(ctx context.Context, key api.DedupKey) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.Store.HasTransaction(ctx, key)
}

// panickyClassifier panics on bodies containing "BOOM".
type panickyClassifier struct {
	next Classifier
}

func (p panickyClassifier) Classify(body string) (api.ParsedTransaction, bool) {
	if strings.Contains(body, "BOOM") {
		panic("classifier exploded")
	}
	return p.next.Classify(body)
}

func rawMessage(id int, from, body string) api.RawMessage {
	raw := fmt.Sprintf("From: %s\r\nSubject: Aviso\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", from, body)
	return api.RawMessage{ID: api.MessageID(id), Location: "INBOX", Raw: []byte(raw)}
}

const (
	purchaseBody = "compra por $12.345 con cargo a Cuenta ****1234 en FARMACIA AHUMADA el 05/03/2024 14:30"
	transferBody = "Transferencia a terceros. Monto $50.000. Fecha 06/03/2024 09:00"
	otherBody    = "Tu estado de cuenta ya está disponible."
)

func batch() []api.RawMessage {
	return []api.RawMessage{
		rawMessage(1, "enviodigital@bancochile.cl", purchaseBody),
		rawMessage(2, "serviciodetransferencias@bancochile.cl", transferBody),
		rawMessage(3, "enviodigital@bancochile.cl", otherBody),
	}
}

func newClassifier() Classifier {
	return extract.New(extract.Config{
		Now: func() time.Time { return time.Date(2024, 6, 1, 9, 15, 0, 0, time.UTC) },
	}, nil)
}

func newCoordinator(scanner Scanner, classifier Classifier, store api.Store) *Coordinator {
	return New(scanner, classifier, store, Config{
		Senders:   []string{"enviodigital@bancochile.cl", "serviciodetransferencias@bancochile.cl"},
		Locations: []string{"INBOX"},
	}, nil)
}

func TestIngest(t *testing.T) {
	store := memory.New()
	scanner := &fakeScanner{messages: batch()}

	run, err := newCoordinator(scanner, newClassifier(), store).Ingest(context.Background(), owner)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := api.IngestionRun{RunID: run.RunID, UserID: 1, Imported: 2, Unparsed: 1}
	if run != want {
		t.Errorf("run: got %+v, want %+v", run, want)
	}
	if run.RunID == "" {
		t.Error("run id is empty")
	}
	if !scanner.hadDeadline {
		t.Error("scan context has no deadline")
	}

	txns, err := store.ListTransactions(context.Background(), run.UserID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("stored: got %d, want 2", len(txns))
	}

	// Newest first: the transfer on 06/03 precedes the purchase on 05/03.
	transfer, purchase := txns[0], txns[1]
	if transfer.Kind != api.KindTransferOut || transfer.Amount != 50000 || transfer.Description != "Transferencia a terceros" {
		t.Errorf("transfer: got %+v", transfer)
	}
	if purchase.Kind != api.KindPurchase || purchase.Amount != 12345 || purchase.Description != "FARMACIA AHUMADA" {
		t.Errorf("purchase: got %+v", purchase)
	}
	if purchase.Currency != "CLP" {
		t.Errorf("currency: got %q, want %q", purchase.Currency, "CLP")
	}
	if purchase.RoomID != nil {
		t.Errorf("room: got %v, want nil", *purchase.RoomID)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	store := memory.New()
	c := newCoordinator(&fakeScanner{messages: batch()}, newClassifier(), store)
	ctx := context.Background()

	if _, err := c.Ingest(ctx, owner); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	run, err := c.Ingest(ctx, owner)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if run.Imported != 0 || run.SkippedDuplicate != 2 || run.Unparsed != 1 {
		t.Errorf("second run: got %+v, want 0 imported, 2 duplicates, 1 unparsed", run)
	}

	txns, _ := store.ListTransactions(ctx, run.UserID)
	if len(txns) != 2 {
		t.Errorf("stored: got %d, want 2", len(txns))
	}
}

func TestIngest_DuplicateWithinRun(t *testing.T) {
	store := memory.New()
	scanner := &fakeScanner{messages: []api.RawMessage{
		rawMessage(1, "enviodigital@bancochile.cl", purchaseBody),
		rawMessage(2, "enviodigital@bancochile.cl", purchaseBody),
	}}

	run, err := newCoordinator(scanner, newClassifier(), store).Ingest(context.Background(), owner)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if run.Imported != 1 || run.SkippedDuplicate != 1 {
		t.Errorf("run: got %+v, want 1 imported, 1 duplicate", run)
	}
}

func TestIngest_UnparsedIsNotAnError(t *testing.T) {
	scanner := &fakeScanner{messages: []api.RawMessage{
		rawMessage(1, "enviodigital@bancochile.cl", otherBody),
		{ID: 2, Location: "INBOX", Raw: nil},
	}}

	run, err := newCoordinator(scanner, newClassifier(), memory.New()).Ingest(context.Background(), owner)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if run.Unparsed != 2 || run.Errored != 0 || run.Imported != 0 {
		t.Errorf("run: got %+v, want 2 unparsed", run)
	}
}

func TestIngest_PerMessageErrors(t *testing.T) {
	messages := append(batch(), rawMessage(4, "enviodigital@bancochile.cl", "BOOM"))
	classifier := panickyClassifier{next: newClassifier()}

	run, err := newCoordinator(&fakeScanner{messages: messages}, classifier, memory.New()).Ingest(context.Background(), owner)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if run.Errored != 1 || run.Imported != 2 || run.Unparsed != 1 {
		t.Errorf("run: got %+v, want 1 errored, 2 imported, 1 unparsed", run)
	}

	store := &failingStore{Store: memory.New(), hasErr: errors.New("lookup failed")}
	run, err = newCoordinator(&fakeScanner{messages: batch()}, newClassifier(), store).Ingest(context.Background(), owner)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if run.Errored != 2 || run.Imported != 0 || run.Unparsed != 1 {
		t.Errorf("run: got %+v, want 2 errored, 1 unparsed", run)
	}
}

func TestIngest_CommitFailure(t *testing.T) {
	insertErr := errors.New("disk full")
	store := &failingStore{Store: memory.New(), insertErr: insertErr}
	c := newCoordinator(&fakeScanner{messages: batch()}, newClassifier(), store)

	run, err := c.Ingest(context.Background(), owner)
	if !errors.Is(err, ErrCommit) || !errors.Is(err, insertErr) {
		t.Fatalf("error: got %v, want %v wrapping %v", err, ErrCommit, insertErr)
	}
	if run.Imported != 0 || run.Errored != 2 {
		t.Errorf("run: got %+v, want 0 imported, 2 errored", run)
	}

	result := c.Sync(context.Background(), owner)
	if result.Imported != 0 || result.Error == "" {
		t.Errorf("sync: got %+v, want an error result", result)
	}
}

func TestIngest_ConnectionFailure(t *testing.T) {
	scanErr := fmt.Errorf("%w: missing IMAP credentials", mailbox.ErrConnection)
	c := newCoordinator(&fakeScanner{err: scanErr}, newClassifier(), memory.New())

	run, err := c.Ingest(context.Background(), owner)
	if !errors.Is(err, mailbox.ErrConnection) {
		t.Fatalf("error: got %v, want %v", err, mailbox.ErrConnection)
	}
	if run.Imported != 0 || run.Errored != 0 {
		t.Errorf("run: got %+v, want zero counters", run)
	}

	result := c.Sync(context.Background(), owner)
	if result.Imported != 0 || !strings.Contains(result.Error, "missing IMAP credentials") {
		t.Errorf("sync: got %+v", result)
	}
}

func TestIngest_NoOwner(t *testing.T) {
	c := newCoordinator(&fakeScanner{}, newClassifier(), memory.New())

	if _, err := c.Ingest(context.Background(), api.Owner{}); !errors.Is(err, ErrNoOwner) {
		t.Errorf("error: got %v, want %v", err, ErrNoOwner)
	}
}

func TestIngest_RoomAndCurrency(t *testing.T) {
	store := memory.New()
	room := int64(42)
	c := New(&fakeScanner{messages: batch()[:1]}, newClassifier(), store, Config{Currency: "USD"}, nil)

	run, err := c.Ingest(context.Background(), api.Owner{Email: "owner@example.com", RoomID: &room})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	txns, _ := store.ListTransactions(context.Background(), run.UserID)
	if len(txns) != 1 {
		t.Fatalf("stored: got %d, want 1", len(txns))
	}
	if txns[0].RoomID == nil || *txns[0].RoomID != room {
		t.Errorf("room: got %v, want %d", txns[0].RoomID, room)
	}
	if txns[0].Currency != "USD" {
		t.Errorf("currency: got %q, want %q", txns[0].Currency, "USD")
	}
}

func TestSync(t *testing.T) {
	c := newCoordinator(&fakeScanner{messages: batch()}, newClassifier(), memory.New())

	got := c.Sync(context.Background(), owner)
	if want := (api.SyncResult{Imported: 2}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
