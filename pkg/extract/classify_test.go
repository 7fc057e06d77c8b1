package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
)

var fixedNow = time.Date(2024, 6, 1, 9, 15, 42, 123, time.UTC)

func newTestClassifier() *Classifier {
	return New(Config{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}, nil)
}

func TestPurchase(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantAmt  int64
		wantDesc string
		wantTime time.Time
	}{
		{
			name:     "account with asterisks",
			body:     "compra por $12.345 con cargo a Cuenta *1234 en FARMACIA AHUMADA el 05/03/2024 14:30",
			wantAmt:  12345,
			wantDesc: "FARMACIA AHUMADA",
			wantTime: time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "account without asterisks",
			body:     "Le informamos que se ha realizado una Compra por $1.234.567 con cargo a Cuenta 00123 en LIDER EXPRESS el 10/01/2024 08:05.",
			wantAmt:  1234567,
			wantDesc: "LIDER EXPRESS",
			wantTime: time.Date(2024, 1, 10, 8, 5, 0, 0, time.UTC),
		},
		{
			name:     "cargo en cuenta without clock",
			body:     "Cargo en Cuenta. Se registró un cargo en su cuenta por $8.990 en UBER TRIP, 02/02/2024",
			wantAmt:  8990,
			wantDesc: "UBER TRIP",
			wantTime: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "amount and date only",
			body:     "Monto: $45.000 pago recibido 15/04/2024 19:20",
			wantAmt:  45000,
			wantDesc: DefaultMerchant,
			wantTime: time.Date(2024, 4, 15, 19, 20, 0, 0, time.UTC),
		},
		{
			name:     "multiline body",
			body:     "Estimado cliente:\nse realizó una compra por $3.500\ncon cargo a Cuenta ****9876\nen COPEC\nel 07/07/2024 12:00",
			wantAmt:  3500,
			wantDesc: "COPEC",
			wantTime: time.Date(2024, 7, 7, 12, 0, 0, 0, time.UTC),
		},
	}

	c := newTestClassifier()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.Purchase(tc.body)
			if !ok {
				t.Fatalf("expected purchase match for %q", tc.body)
			}
			if got.Kind != api.KindPurchase {
				t.Errorf("kind: got %v, want %v", got.Kind, api.KindPurchase)
			}
			if got.Amount != tc.wantAmt {
				t.Errorf("amount: got %d, want %d", got.Amount, tc.wantAmt)
			}
			if got.Description != tc.wantDesc {
				t.Errorf("description: got %q, want %q", got.Description, tc.wantDesc)
			}
			if !got.OccurredAt.Equal(tc.wantTime) {
				t.Errorf("occurred_at: got %v, want %v", got.OccurredAt, tc.wantTime)
			}
		})
	}
}

func TestPurchase_FallsThroughMalformedRule(t *testing.T) {
	// The most specific rule reaches the impossible trailing date, while a
	// looser rule stops at the comma-separated one.
	body := "compra por $1.000 con cargo a Cuenta *1 en KIOSKO, 03/03/2024 y otros el 99/99/2024 10:00"

	got, ok := newTestClassifier().Purchase(body)
	if !ok {
		t.Fatal("expected a later rule to match")
	}
	if got.Description != "KIOSKO" {
		t.Errorf("description: got %q, want %q", got.Description, "KIOSKO")
	}
	if got.Amount != 1000 {
		t.Errorf("amount: got %d, want %d", got.Amount, 1000)
	}
	if !got.OccurredAt.Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("occurred_at: got %v", got.OccurredAt)
	}
}

func TestPurchase_AllRulesMalformed(t *testing.T) {
	body := "compra por $1.000 con cargo a Cuenta *1 en KIOSKO el 99/99/2024 10:00"
	if got, ok := newTestClassifier().Purchase(body); ok {
		t.Errorf("expected no match, got %+v", got)
	}
}

func TestPurchase_TruncatesDescription(t *testing.T) {
	merchant := strings.Repeat("Ñ", 150)
	body := "compra por $100 con cargo a Cuenta *1 en " + merchant + " el 01/01/2024 00:01"

	got, ok := newTestClassifier().Purchase(body)
	if !ok {
		t.Fatal("expected purchase match")
	}
	if n := len([]rune(got.Description)); n != MaxDescriptionLen {
		t.Errorf("description length: got %d, want %d", n, MaxDescriptionLen)
	}
}

func TestPurchase_NoMatch(t *testing.T) {
	bodies := []string{
		"",
		"Hola, tu estado de cuenta está disponible.",
		"compra por $12.345 sin fecha",
	}

	c := newTestClassifier()
	for _, body := range bodies {
		if got, ok := c.Purchase(body); ok {
			t.Errorf("expected no match for %q, got %+v", body, got)
		}
	}
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantAmt  int64
		wantTime time.Time
	}{
		{
			name:     "missing date uses the clock",
			body:     "Monto $50.000 transferencia",
			wantAmt:  50000,
			wantTime: fixedNow.Truncate(time.Second),
		},
		{
			name:     "slash date",
			body:     "Transferencia a terceros realizada. Monto $120.000. Fecha 20/05/2024 16:45",
			wantAmt:  120000,
			wantTime: time.Date(2024, 5, 20, 16, 45, 0, 0, time.UTC),
		},
		{
			name:     "dash date",
			body:     "Has realizado una transferencia a terceros por $7.500 el 21-05-2024 09:10",
			wantAmt:  7500,
			wantTime: time.Date(2024, 5, 21, 9, 10, 0, 0, time.UTC),
		},
		{
			name:     "amount before keyword",
			body:     "Enviaste $15.000 mediante transferencia electrónica",
			wantAmt:  15000,
			wantTime: fixedNow.Truncate(time.Second),
		},
		{
			name:     "bare monto",
			body:     "Monto transferido: 33.000",
			wantAmt:  33000,
			wantTime: fixedNow.Truncate(time.Second),
		},
	}

	c := newTestClassifier()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.Transfer(tc.body)
			if !ok {
				t.Fatalf("expected transfer match for %q", tc.body)
			}
			if got.Kind != api.KindTransferOut {
				t.Errorf("kind: got %v, want %v", got.Kind, api.KindTransferOut)
			}
			if got.Amount != tc.wantAmt {
				t.Errorf("amount: got %d, want %d", got.Amount, tc.wantAmt)
			}
			if got.Description != TransferDescription {
				t.Errorf("description: got %q, want %q", got.Description, TransferDescription)
			}
			if !got.OccurredAt.Equal(tc.wantTime) {
				t.Errorf("occurred_at: got %v, want %v", got.OccurredAt, tc.wantTime)
			}
		})
	}
}

func TestTransfer_NoAmount(t *testing.T) {
	c := newTestClassifier()
	for _, body := range []string{
		"Transferencia recibida",
		"Monto $0 transferencia",
		"Tu clave dinámica fue activada el 01/01/2024 10:00",
	} {
		if got, ok := c.Transfer(body); ok {
			t.Errorf("expected no transfer for %q, got %+v", body, got)
		}
	}
}

func TestClassify_PurchaseWinsOverTransfer(t *testing.T) {
	body := "compra por $12.345 con cargo a Cuenta *1234 en FARMACIA AHUMADA el 05/03/2024 14:30. " +
		"Monto $12.345 transferencia"

	got, ok := newTestClassifier().Classify(body)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Kind != api.KindPurchase {
		t.Errorf("kind: got %v, want %v", got.Kind, api.KindPurchase)
	}
}

func TestClassify_NeitherCascade(t *testing.T) {
	if got, ok := newTestClassifier().Classify("Bienvenido a Banco de Chile"); ok {
		t.Errorf("expected no match, got %+v", got)
	}
}
