package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ledgerline/enrich-client/internal/testutil"
	"github.com/ledgerline/enrich-client/pkg/batch"
)

func batchInputs(n int) []batch.Record {
	records := make([]batch.Record, n)
	for i := 0; i < n; i++ {
		records[i] = TransactionInput{
			ID:          fmt.Sprintf("tx-%03d", i),
			Description: "SPOTIFY P1234ABCD Stockholm",
			EntryType:   EntryOutgoing,
			Amount:      9.99,
			Currency:    "EUR",
			Date:        "2026-08-20",
		}
	}
	return records
}

func batchManagerConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestBatchesResource_Lifecycle(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)
	ctx := context.Background()

	job, err := sdk.Batches.Create(ctx, batchInputs(3))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.ID == "" {
		t.Fatal("Create() returned empty job id")
	}
	if job.Status != batch.StatusCreated {
		t.Errorf("job.Status = %v, want %v", job.Status, batch.StatusCreated)
	}
	if job.Total != 3 {
		t.Errorf("job.Total = %d, want 3", job.Total)
	}

	// First poll reports the non-terminal state, second the terminal one.
	polled, err := sdk.Batches.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if polled.Status != batch.StatusStarted {
		t.Errorf("first poll status = %v, want %v", polled.Status, batch.StatusStarted)
	}

	polled, err = sdk.Batches.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if polled.Status != batch.StatusSucceeded {
		t.Errorf("second poll status = %v, want %v", polled.Status, batch.StatusSucceeded)
	}

	results, err := sdk.Batches.Results(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results.Results) != 3 {
		t.Fatalf("Results() returned %d items, want 3", len(results.Results))
	}
	for i, item := range results.Results {
		expected := fmt.Sprintf("tx-%03d", i)
		if item.ID != expected {
			t.Errorf("results[%d].ID = %q, want %q (submission order)", i, item.ID, expected)
		}
		if item.Merchant == nil {
			t.Errorf("results[%d].Merchant is nil, want enrichment output", i)
		}
	}
}

func TestJobService_EndToEnd(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)

	cfg := batchManagerConfig()
	cfg.MaxSyncItems = 0 // force the job machinery
	m := batch.NewManager(sdk.Batches.JobService(), cfg)

	records := batchInputs(6)
	results, err := m.SubmitAndWait(context.Background(), records)
	if err != nil {
		t.Fatalf("SubmitAndWait() error = %v", err)
	}
	if len(results) != len(records) {
		t.Fatalf("result count = %d, want %d", len(results), len(records))
	}
	for i, res := range results {
		if res.Failed() {
			t.Errorf("results[%d] failed: %v", i, res.Err)
		}
		if res.RecordID != records[i].RecordID() {
			t.Errorf("results[%d].RecordID = %q, want %q", i, res.RecordID, records[i].RecordID())
		}
	}
	if mock.JobCount() != 1 {
		t.Errorf("job count = %d, want 1", mock.JobCount())
	}
}

func TestJobService_EndToEnd_ItemErrors(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.FailItem("tx-002", "unparseable", "description is empty")
	sdk := newTestSDK(t, mock)

	cfg := batchManagerConfig()
	cfg.MaxSyncItems = 0
	m := batch.NewManager(sdk.Batches.JobService(), cfg)

	results, err := m.SubmitAndWait(context.Background(), batchInputs(5))
	if err != nil {
		t.Fatalf("SubmitAndWait() error = %v", err)
	}

	for i, res := range results {
		if i == 2 {
			var itemErr *batch.ItemError
			if !errors.As(res.Err, &itemErr) {
				t.Fatalf("results[2].Err = %v, want *batch.ItemError", res.Err)
			}
			if itemErr.Code != "unparseable" {
				t.Errorf("results[2] error code = %q, want %q", itemErr.Code, "unparseable")
			}
			continue
		}
		if res.Failed() {
			t.Errorf("results[%d] failed: %v", i, res.Err)
		}
	}
}

func TestJobService_SyncFastPath(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	sdk := newTestSDK(t, mock)

	m := batch.NewManager(sdk.Batches.JobService(), batchManagerConfig())

	results, err := m.SubmitAndWait(context.Background(), batchInputs(4))
	if err != nil {
		t.Fatalf("SubmitAndWait() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("result count = %d, want 4", len(results))
	}
	if mock.JobCount() != 0 {
		t.Errorf("job count = %d, want 0 (small inputs go through the sync endpoint)", mock.JobCount())
	}
}

func TestBatchesResource_CreateRetriesRateLimit(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.QueueFailure("/v3/batches", 429, `{"details": "slow down"}`, map[string]string{"Retry-After": "0"})
	sdk := newTestSDK(t, mock)

	job, err := sdk.Batches.Create(context.Background(), batchInputs(2))
	if err != nil {
		t.Fatalf("Create() error = %v, want success after one retry", err)
	}
	if job.ID == "" {
		t.Error("Create() returned empty job id after retry")
	}
}
