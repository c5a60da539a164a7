package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ledgerline/enrich-client/internal/testutil"
	"github.com/ledgerline/enrich-client/pkg/paging"
)

func TestAccountHolder_Validate(t *testing.T) {
	tests := []struct {
		name          string
		holder        AccountHolder
		expectedField string
	}{
		{
			name:   "valid consumer",
			holder: AccountHolder{ID: "holder-1", Type: AccountHolderConsumer},
		},
		{
			name:   "valid business",
			holder: AccountHolder{ID: "holder-2", Type: AccountHolderBusiness, Name: "ACME GmbH"},
		},
		{
			name:          "missing id",
			holder:        AccountHolder{Type: AccountHolderConsumer},
			expectedField: "id",
		},
		{
			name:          "unknown type",
			holder:        AccountHolder{ID: "holder-3", Type: "government"},
			expectedField: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.holder.Validate()
			if tt.expectedField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) || fieldErr.Field != tt.expectedField {
				t.Errorf("Validate() = %v, want FieldError on %q", err, tt.expectedField)
			}
		})
	}
}

func TestAccountHoldersResource_CreateAndGet(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)
	ctx := context.Background()

	mock.SetHandler("/v3/account_holders", func(w http.ResponseWriter, r *http.Request) {
		var holder AccountHolder
		if err := json.NewDecoder(r.Body).Decode(&holder); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(holder)
	})

	created, err := sdk.AccountHolders.Create(ctx, AccountHolder{ID: "holder-1", Type: AccountHolderConsumer})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "holder-1" {
		t.Errorf("created.ID = %q, want %q", created.ID, "holder-1")
	}

	// Client-side validation never reaches the network.
	before := mock.RequestCount
	if _, err := sdk.AccountHolders.Create(ctx, AccountHolder{Type: "invalid"}); err == nil {
		t.Error("Create() with invalid holder should fail")
	}
	if mock.RequestCount != before {
		t.Error("invalid holder was sent to the server")
	}
}

func TestWebhooksResource(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)
	ctx := context.Background()

	mock.SetHandler("/v3/webhooks", func(w http.ResponseWriter, r *http.Request) {
		var webhook Webhook
		_ = json.NewDecoder(r.Body).Decode(&webhook)
		webhook.ID = "wh-1"
		webhook.Enabled = true
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(webhook)
	})

	created, err := sdk.Webhooks.Create(ctx, Webhook{
		URL:    "https://example.com/hooks/enrich",
		Events: []WebhookEvent{EventBatchSucceeded, EventBatchFailed},
		Token:  "shared-secret",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "wh-1" || !created.Enabled {
		t.Errorf("created = %+v, want enabled webhook with server id", created)
	}

	if _, err := sdk.Webhooks.Create(ctx, Webhook{URL: "https://example.com"}); err == nil {
		t.Error("Create() without events should fail")
	}
	if _, err := sdk.Webhooks.Create(ctx, Webhook{Events: []WebhookEvent{EventBatchSucceeded}}); err == nil {
		t.Error("Create() without url should fail")
	}

	deleted := false
	mock.SetHandler("/v3/webhooks/wh-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = true
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{}`)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	if err := sdk.Webhooks.Delete(ctx, "wh-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() did not issue a DELETE request")
	}
}

func TestReportsResource_Create(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)
	ctx := context.Background()

	mock.SetHandler("/v3/reports", func(w http.ResponseWriter, r *http.Request) {
		var report Report
		_ = json.NewDecoder(r.Body).Decode(&report)
		report.ID = "report-1"
		report.Status = ReportPending
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})

	created, err := sdk.Reports.Create(ctx, Report{
		TransactionID: "tx-1",
		Description:   "merchant resolved to the wrong entity",
		Fields:        []string{"merchant"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Status != ReportPending {
		t.Errorf("created.Status = %v, want %v", created.Status, ReportPending)
	}

	if _, err := sdk.Reports.Create(ctx, Report{Description: "no transaction"}); err == nil {
		t.Error("Create() without transaction_id should fail")
	}
}

func TestReportsResource_List(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)

	items := []json.RawMessage{
		json.RawMessage(`{"id": "report-1", "status": "pending"}`),
		json.RawMessage(`{"id": "report-2", "status": "resolved"}`),
		json.RawMessage(`{"id": "report-3", "status": "rejected"}`),
	}
	mock.SetListing("/v3/reports", 2, items...)

	reports, err := paging.Collect(context.Background(), sdk.Reports.List(ListOptions{}))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("collected %d reports, want 3", len(reports))
	}
	if reports[1].Status != ReportResolved {
		t.Errorf("reports[1].Status = %v, want %v", reports[1].Status, ReportResolved)
	}
}

func TestModelsResource_Exists(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)
	ctx := context.Background()

	mock.SetHandler("/v3/models/finetuned-labeler", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name": "finetuned-labeler", "created_at": "2026-05-01T12:00:00Z"}`)
	})

	exists, err := sdk.Models.Exists(ctx, "finetuned-labeler")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true")
	}

	// Unregistered model paths 404 on the mock server.
	exists, err = sdk.Models.Exists(ctx, "no-such-model")
	if err != nil {
		t.Fatalf("Exists() error = %v (404 is not an error here)", err)
	}
	if exists {
		t.Error("Exists() = true, want false for unknown model")
	}

	if _, err := sdk.Models.Get(ctx, ""); err == nil {
		t.Error("Get() with empty name should fail before the network")
	}
}
