package enrich

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/ledgerline/enrich-client/pkg/paging"
)

// EntryType marks the direction of a transaction from the account
// holder's perspective.
type EntryType string

const (
	EntryIncoming EntryType = "incoming"
	EntryOutgoing EntryType = "outgoing"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// FieldError is a typed validation failure naming the offending field.
type FieldError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid transaction field %q: %s", e.Field, e.Reason)
}

// TransactionInput is one financial-transaction record submitted for
// enrichment. The schema is static; Validate checks it once at
// construction time rather than per-request.
type TransactionInput struct {
	ID                string    `json:"transaction_id"`
	Description       string    `json:"description"`
	EntryType         EntryType `json:"entry_type"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"iso_currency_code"`
	Date              string    `json:"date"`
	AccountHolderID   string    `json:"account_holder_id,omitempty"`
	AccountHolderType string    `json:"account_holder_type,omitempty"`
	Country           string    `json:"country,omitempty"`
}

// RecordID returns the stable identity used to correlate output with
// input order.
func (t TransactionInput) RecordID() string {
	return t.ID
}

// Validate checks the record against the static schema. It returns a
// *FieldError naming the first offending field, or nil.
func (t TransactionInput) Validate() error {
	if t.ID == "" {
		return &FieldError{Field: "transaction_id", Reason: "must not be empty"}
	}
	if t.Description == "" {
		return &FieldError{Field: "description", Reason: "must not be empty"}
	}
	if t.EntryType != EntryIncoming && t.EntryType != EntryOutgoing {
		return &FieldError{Field: "entry_type", Reason: `must be "incoming" or "outgoing"`}
	}
	if t.Amount < 0 {
		return &FieldError{Field: "amount", Reason: "must not be negative"}
	}
	if !currencyPattern.MatchString(t.Currency) {
		return &FieldError{Field: "iso_currency_code", Reason: "must be a three-letter ISO 4217 code"}
	}
	if t.Date != "" {
		if !datePattern.MatchString(t.Date) {
			return &FieldError{Field: "date", Reason: "must be formatted YYYY-MM-DD"}
		}
		if _, err := time.Parse("2006-01-02", t.Date); err != nil {
			return &FieldError{Field: "date", Reason: "not a valid calendar date"}
		}
	}
	return nil
}

// ItemError describes a per-item enrichment failure reported inside an
// otherwise succeeded job.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("enrichment failed (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("enrichment failed: %s", e.Message)
}

// Entity is the counterparty resolved for a transaction.
type Entity struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Website string `json:"website,omitempty"`
	Logo    string `json:"logo,omitempty"`
	MCC     []int  `json:"mccs,omitempty"`
}

// Location is the place a transaction occurred, as resolved by the service.
type Location struct {
	RawAddress  string  `json:"raw_address,omitempty"`
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	Country     string  `json:"country,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	GooglePlace string  `json:"google_maps_url,omitempty"`
}

// EnrichedTransaction is the enrichment output for one input record.
// Error is set instead of the enrichment fields when the item failed
// inside a succeeded job.
type EnrichedTransaction struct {
	ID         string     `json:"transaction_id"`
	Merchant   *Entity    `json:"merchant,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Location   *Location  `json:"location,omitempty"`
	Recurrence string     `json:"recurrence,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Error      *ItemError `json:"error,omitempty"`
	RequestID  string     `json:"-"`
}

// ListOptions filters paged listing endpoints.
type ListOptions struct {
	Limit         int
	CreatedBefore time.Time
	CreatedAfter  time.Time
}

func (o ListOptions) query(cursor string) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if !o.CreatedBefore.IsZero() {
		q.Set("created_before", o.CreatedBefore.UTC().Format(time.RFC3339))
	}
	if !o.CreatedAfter.IsZero() {
		q.Set("created_after", o.CreatedAfter.UTC().Format(time.RFC3339))
	}
	return q
}

// TransactionsResource accesses transactions on the server side.
type TransactionsResource struct {
	c httpDoer
}

// Get retrieves a single enriched transaction by id.
func (r *TransactionsResource) Get(ctx context.Context, id string) (*EnrichedTransaction, error) {
	var tx EnrichedTransaction
	requestID, err := r.c.Get(ctx, "/v3/transactions/"+id, nil, &tx)
	if err != nil {
		return nil, err
	}
	tx.RequestID = requestID
	return &tx, nil
}

// List returns a pager over all transactions matching opts.
func (r *TransactionsResource) List(opts ListOptions) *paging.Pager[EnrichedTransaction] {
	return paging.New(func(ctx context.Context, cursor string) (paging.Page[EnrichedTransaction], error) {
		var page paging.Page[EnrichedTransaction]
		requestID, err := r.c.Get(ctx, "/v3/transactions", opts.query(cursor), &page)
		if err != nil {
			return paging.Page[EnrichedTransaction]{}, err
		}
		page.RequestID = requestID
		return page, nil
	})
}
