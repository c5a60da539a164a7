package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/enrich-client/pkg/paging"
)

// AccountHolderType distinguishes consumer and business account holders.
type AccountHolderType string

const (
	AccountHolderConsumer AccountHolderType = "consumer"
	AccountHolderBusiness AccountHolderType = "business"
)

// AccountHolder owns transactions on the server side. Attaching one to a
// submission improves enrichment quality for recurring counterparties.
type AccountHolder struct {
	ID        string            `json:"id"`
	Type      AccountHolderType `json:"type"`
	Name      string            `json:"name,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	RequestID string            `json:"-"`
}

// Validate checks the account holder against the static schema.
func (a AccountHolder) Validate() error {
	if a.ID == "" {
		return &FieldError{Field: "id", Reason: "must not be empty"}
	}
	if a.Type != AccountHolderConsumer && a.Type != AccountHolderBusiness {
		return &FieldError{Field: "type", Reason: fmt.Sprintf("must be %q or %q", AccountHolderConsumer, AccountHolderBusiness)}
	}
	return nil
}

// AccountHoldersResource manages account holders.
type AccountHoldersResource struct {
	c httpDoer
}

// Create registers a new account holder.
func (r *AccountHoldersResource) Create(ctx context.Context, holder AccountHolder) (*AccountHolder, error) {
	if err := holder.Validate(); err != nil {
		return nil, err
	}
	var created AccountHolder
	requestID, err := r.c.Post(ctx, "/v3/account_holders", holder, &created)
	if err != nil {
		return nil, err
	}
	created.RequestID = requestID
	return &created, nil
}

// Get retrieves an account holder by id.
func (r *AccountHoldersResource) Get(ctx context.Context, id string) (*AccountHolder, error) {
	var holder AccountHolder
	requestID, err := r.c.Get(ctx, "/v3/account_holders/"+id, nil, &holder)
	if err != nil {
		return nil, err
	}
	holder.RequestID = requestID
	return &holder, nil
}

// List returns a pager over all account holders matching opts.
func (r *AccountHoldersResource) List(opts ListOptions) *paging.Pager[AccountHolder] {
	return paging.New(func(ctx context.Context, cursor string) (paging.Page[AccountHolder], error) {
		var page paging.Page[AccountHolder]
		requestID, err := r.c.Get(ctx, "/v3/account_holders", opts.query(cursor), &page)
		if err != nil {
			return paging.Page[AccountHolder]{}, err
		}
		page.RequestID = requestID
		return page, nil
	})
}
