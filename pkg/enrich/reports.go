package enrich

import (
	"context"
	"time"

	"github.com/ledgerline/enrich-client/pkg/paging"
)

// ReportStatus tracks the review state of an enrichment quality report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportResolved ReportStatus = "resolved"
	ReportRejected ReportStatus = "rejected"
)

// Report flags an incorrectly enriched transaction for review by the
// service.
type Report struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transaction_id"`
	Description   string       `json:"description"`
	Fields        []string     `json:"fields,omitempty"`
	Status        ReportStatus `json:"status,omitempty"`
	CreatedAt     time.Time    `json:"created_at,omitempty"`
	RequestID     string       `json:"-"`
}

// ReportsResource manages enrichment quality reports.
type ReportsResource struct {
	c httpDoer
}

// Create files a report against an enriched transaction.
func (r *ReportsResource) Create(ctx context.Context, report Report) (*Report, error) {
	if report.TransactionID == "" {
		return nil, &FieldError{Field: "transaction_id", Reason: "must not be empty"}
	}
	if report.Description == "" {
		return nil, &FieldError{Field: "description", Reason: "must not be empty"}
	}
	var created Report
	requestID, err := r.c.Post(ctx, "/v3/reports", report, &created)
	if err != nil {
		return nil, err
	}
	created.RequestID = requestID
	return &created, nil
}

// Get retrieves a report by id.
func (r *ReportsResource) Get(ctx context.Context, id string) (*Report, error) {
	var report Report
	requestID, err := r.c.Get(ctx, "/v3/reports/"+id, nil, &report)
	if err != nil {
		return nil, err
	}
	report.RequestID = requestID
	return &report, nil
}

// List returns a pager over all reports matching opts.
func (r *ReportsResource) List(opts ListOptions) *paging.Pager[Report] {
	return paging.New(func(ctx context.Context, cursor string) (paging.Page[Report], error) {
		var page paging.Page[Report]
		requestID, err := r.c.Get(ctx, "/v3/reports", opts.query(cursor), &page)
		if err != nil {
			return paging.Page[Report]{}, err
		}
		page.RequestID = requestID
		return page, nil
	})
}
