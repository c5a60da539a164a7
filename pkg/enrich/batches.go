package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerline/enrich-client/pkg/batch"
	"github.com/ledgerline/enrich-client/pkg/paging"
)

// Job tracks one asynchronous batch enrichment job on the server.
type Job struct {
	ID        string       `json:"id"`
	Status    batch.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Progress  int          `json:"progress"`
	Total     int          `json:"total"`
	RequestID string       `json:"-"`
}

// JobResults is the output payload of a succeeded job, in submission order.
type JobResults struct {
	ID        string                `json:"id"`
	Status    batch.Status          `json:"status"`
	Total     int                   `json:"total"`
	Results   []EnrichedTransaction `json:"results"`
	RequestID string                `json:"-"`
}

// BatchesResource submits and tracks batch enrichment jobs.
type BatchesResource struct {
	c httpDoer
}

type batchCreatePayload struct {
	Transactions any `json:"transactions"`
}

// Create submits a chunk of records as one job. records must marshal to
// the transaction input schema.
func (r *BatchesResource) Create(ctx context.Context, records any) (*Job, error) {
	var job Job
	requestID, err := r.c.Post(ctx, "/v3/batches", batchCreatePayload{Transactions: records}, &job)
	if err != nil {
		return nil, err
	}
	job.RequestID = requestID
	return &job, nil
}

// Get retrieves the current status of a job.
func (r *BatchesResource) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	requestID, err := r.c.Get(ctx, "/v3/batches/"+id, nil, &job)
	if err != nil {
		return nil, err
	}
	job.RequestID = requestID
	return &job, nil
}

// Results retrieves the output payload of a succeeded job.
func (r *BatchesResource) Results(ctx context.Context, id string) (*JobResults, error) {
	var results JobResults
	requestID, err := r.c.Get(ctx, "/v3/batches/"+id+"/results", nil, &results)
	if err != nil {
		return nil, err
	}
	results.RequestID = requestID
	return &results, nil
}

// List returns a pager over all jobs matching opts.
func (r *BatchesResource) List(opts ListOptions) *paging.Pager[Job] {
	return paging.New(func(ctx context.Context, cursor string) (paging.Page[Job], error) {
		var page paging.Page[Job]
		requestID, err := r.c.Get(ctx, "/v3/batches", opts.query(cursor), &page)
		if err != nil {
			return paging.Page[Job]{}, err
		}
		page.RequestID = requestID
		return page, nil
	})
}

// rawJobResults mirrors JobResults but defers item decoding so the job
// service can hand opaque outputs to the batch manager.
type rawJobResults struct {
	Results []json.RawMessage `json:"results"`
}

// itemErrorEnvelope extracts only the per-item error field.
type itemErrorEnvelope struct {
	Error *ItemError `json:"error"`
}

// jobService adapts this resource to the batch manager's collaborator
// interface.
type jobService struct {
	r *BatchesResource
}

// JobService returns a batch.JobService backed by this resource.
func (r *BatchesResource) JobService() batch.JobService {
	return jobService{r: r}
}

func (s jobService) Submit(ctx context.Context, records []batch.Record) (string, error) {
	job, err := s.r.Create(ctx, records)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (s jobService) Status(ctx context.Context, jobID string) (batch.Status, error) {
	job, err := s.r.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (s jobService) Results(ctx context.Context, jobID string) ([]batch.Item, error) {
	var raw rawJobResults
	if _, err := s.r.c.Get(ctx, "/v3/batches/"+jobID+"/results", nil, &raw); err != nil {
		return nil, err
	}
	return toItems(raw.Results), nil
}

// EnrichSync implements batch.SyncSubmitter via the synchronous
// enrichment endpoint, used for inputs small enough to skip the job
// machinery.
func (s jobService) EnrichSync(ctx context.Context, records []batch.Record) ([]batch.Item, error) {
	var raw rawJobResults
	payload := batchCreatePayload{Transactions: records}
	if _, err := s.r.c.Post(ctx, "/v3/transactions/sync", payload, &raw); err != nil {
		return nil, err
	}
	return toItems(raw.Results), nil
}

// toItems wraps opaque outputs as batch items, checking each for a
// per-item error field.
func toItems(outputs []json.RawMessage) []batch.Item {
	items := make([]batch.Item, len(outputs))
	for i, output := range outputs {
		items[i] = batch.Item{Output: output}
		var envelope itemErrorEnvelope
		if err := json.Unmarshal(output, &envelope); err == nil && envelope.Error != nil {
			items[i].Err = &batch.ItemError{Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
	}
	return items
}
