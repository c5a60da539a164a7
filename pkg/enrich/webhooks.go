package enrich

import (
	"context"
	"time"

	"github.com/ledgerline/enrich-client/pkg/paging"
)

// WebhookEvent identifies a server-side event a webhook subscribes to.
type WebhookEvent string

const (
	EventBatchSucceeded WebhookEvent = "batches.succeeded"
	EventBatchFailed    WebhookEvent = "batches.failed"
	EventReportResolved WebhookEvent = "reports.resolved"
	EventReportRejected WebhookEvent = "reports.rejected"
	EventReportPending  WebhookEvent = "reports.pending"
)

// Webhook is a server-side subscription delivering event notifications to
// a caller-owned URL. Token, when set, is echoed back in the
// X-Enrich-Token header of deliveries.
type Webhook struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Events    []WebhookEvent `json:"events"`
	Token     string         `json:"token,omitempty"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	RequestID string         `json:"-"`
}

// WebhooksResource manages webhook subscriptions.
type WebhooksResource struct {
	c httpDoer
}

// Create registers a webhook.
func (r *WebhooksResource) Create(ctx context.Context, webhook Webhook) (*Webhook, error) {
	if webhook.URL == "" {
		return nil, &FieldError{Field: "url", Reason: "must not be empty"}
	}
	if len(webhook.Events) == 0 {
		return nil, &FieldError{Field: "events", Reason: "must subscribe to at least one event"}
	}
	var created Webhook
	requestID, err := r.c.Post(ctx, "/v3/webhooks", webhook, &created)
	if err != nil {
		return nil, err
	}
	created.RequestID = requestID
	return &created, nil
}

// Get retrieves a webhook by id.
func (r *WebhooksResource) Get(ctx context.Context, id string) (*Webhook, error) {
	var webhook Webhook
	requestID, err := r.c.Get(ctx, "/v3/webhooks/"+id, nil, &webhook)
	if err != nil {
		return nil, err
	}
	webhook.RequestID = requestID
	return &webhook, nil
}

// Delete removes a webhook subscription.
func (r *WebhooksResource) Delete(ctx context.Context, id string) error {
	_, err := r.c.Delete(ctx, "/v3/webhooks/"+id)
	return err
}

// List returns a pager over all webhooks.
func (r *WebhooksResource) List(opts ListOptions) *paging.Pager[Webhook] {
	return paging.New(func(ctx context.Context, cursor string) (paging.Page[Webhook], error) {
		var page paging.Page[Webhook]
		requestID, err := r.c.Get(ctx, "/v3/webhooks", opts.query(cursor), &page)
		if err != nil {
			return paging.Page[Webhook]{}, err
		}
		page.RequestID = requestID
		return page, nil
	})
}
