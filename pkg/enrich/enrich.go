// Package enrich exposes the typed resources of the transaction
// enrichment API: transactions, batches, account holders, webhooks,
// reports, and custom model references.
package enrich

import (
	"context"
	"net/url"
)

// httpDoer is the slice of the HTTP core the resources need. Satisfied by
// *client.Client.
type httpDoer interface {
	Get(ctx context.Context, path string, query url.Values, out any) (string, error)
	Post(ctx context.Context, path string, payload any, out any) (string, error)
	Delete(ctx context.Context, path string) (string, error)
}

// SDK bundles all resources behind one authenticated client.
type SDK struct {
	Transactions   *TransactionsResource
	Batches        *BatchesResource
	AccountHolders *AccountHoldersResource
	Webhooks       *WebhooksResource
	Reports        *ReportsResource
	Models         *ModelsResource
}

// New creates an SDK over the given HTTP core.
func New(c httpDoer) *SDK {
	return &SDK{
		Transactions:   &TransactionsResource{c: c},
		Batches:        &BatchesResource{c: c},
		AccountHolders: &AccountHoldersResource{c: c},
		Webhooks:       &WebhooksResource{c: c},
		Reports:        &ReportsResource{c: c},
		Models:         &ModelsResource{c: c},
	}
}
