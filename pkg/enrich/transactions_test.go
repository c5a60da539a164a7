package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ledgerline/enrich-client/internal/testutil"
	"github.com/ledgerline/enrich-client/pkg/client"
	"github.com/ledgerline/enrich-client/pkg/paging"
)

func newTestSDK(t *testing.T, mock *testutil.MockAPI) *SDK {
	t.Helper()
	c, err := client.New(client.Config{
		APIKey:  "test-key",
		BaseURL: mock.URL(),
		Timeout: 5 * time.Second,
		Retry: client.RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        10 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return New(c)
}

func validInput() TransactionInput {
	return TransactionInput{
		ID:          "tx-1",
		Description: "AMAZON MKTPL*2W4HO 440-555-0123 WA",
		EntryType:   EntryOutgoing,
		Amount:      42.17,
		Currency:    "USD",
		Date:        "2026-08-12",
	}
}

func TestTransactionInput_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*TransactionInput)
		expectedField string
	}{
		{
			name:   "valid input",
			mutate: func(tx *TransactionInput) {},
		},
		{
			name:          "missing id",
			mutate:        func(tx *TransactionInput) { tx.ID = "" },
			expectedField: "transaction_id",
		},
		{
			name:          "missing description",
			mutate:        func(tx *TransactionInput) { tx.Description = "" },
			expectedField: "description",
		},
		{
			name:          "bad entry type",
			mutate:        func(tx *TransactionInput) { tx.EntryType = "debit" },
			expectedField: "entry_type",
		},
		{
			name:          "negative amount",
			mutate:        func(tx *TransactionInput) { tx.Amount = -1 },
			expectedField: "amount",
		},
		{
			name:          "lowercase currency",
			mutate:        func(tx *TransactionInput) { tx.Currency = "usd" },
			expectedField: "iso_currency_code",
		},
		{
			name:          "malformed date",
			mutate:        func(tx *TransactionInput) { tx.Date = "12.08.2026" },
			expectedField: "date",
		},
		{
			name:          "impossible date",
			mutate:        func(tx *TransactionInput) { tx.Date = "2026-02-30" },
			expectedField: "date",
		},
		{
			name:   "empty date allowed",
			mutate: func(tx *TransactionInput) { tx.Date = "" },
		},
		{
			name:   "zero amount allowed",
			mutate: func(tx *TransactionInput) { tx.Amount = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validInput()
			tt.mutate(&tx)
			err := tx.Validate()

			if tt.expectedField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("Validate() = %v, want *FieldError", err)
			}
			if fieldErr.Field != tt.expectedField {
				t.Errorf("Validate() field = %q, want %q", fieldErr.Field, tt.expectedField)
			}
		})
	}
}

func TestTransactionsResource_Get(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)

	mock.SetHandler("/v3/transactions/tx-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"transaction_id": "tx-1",
			"merchant": {"id": "merchant-1", "name": "Amazon", "website": "amazon.com"},
			"categories": ["shopping", "online marketplace"],
			"confidence": 0.98
		}`)
	})

	tx, err := sdk.Transactions.Get(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tx.ID != "tx-1" {
		t.Errorf("tx.ID = %q, want %q", tx.ID, "tx-1")
	}
	if tx.Merchant == nil || tx.Merchant.Name != "Amazon" {
		t.Errorf("tx.Merchant = %+v, want resolved merchant", tx.Merchant)
	}
	if len(tx.Categories) != 2 {
		t.Errorf("tx.Categories = %v, want 2 entries", tx.Categories)
	}
	if tx.RequestID == "" {
		t.Error("tx.RequestID is empty, want the per-operation request id")
	}
}

func TestTransactionsResource_List(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)

	items := make([]json.RawMessage, 5)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"transaction_id": "tx-%d"}`, i))
	}
	mock.SetListing("/v3/transactions", 2, items...)

	txs, err := paging.Collect(context.Background(), sdk.Transactions.List(ListOptions{}))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(txs) != 5 {
		t.Fatalf("collected %d transactions, want 5", len(txs))
	}
	for i, tx := range txs {
		expected := fmt.Sprintf("tx-%d", i)
		if tx.ID != expected {
			t.Errorf("txs[%d].ID = %q, want %q (server order)", i, tx.ID, expected)
		}
	}
}

func TestListOptions_Query(t *testing.T) {
	opts := ListOptions{
		Limit:         50,
		CreatedAfter:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		CreatedBefore: time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
	}

	q := opts.query("cursor-2")
	if q.Get("cursor") != "cursor-2" {
		t.Errorf("cursor = %q, want %q", q.Get("cursor"), "cursor-2")
	}
	if q.Get("limit") != "50" {
		t.Errorf("limit = %q, want %q", q.Get("limit"), "50")
	}
	if q.Get("created_after") != "2026-08-01T00:00:00Z" {
		t.Errorf("created_after = %q, want RFC3339 UTC", q.Get("created_after"))
	}

	empty := ListOptions{}.query("")
	if len(empty) != 0 {
		t.Errorf("empty options produced query %v, want none", empty)
	}
}
