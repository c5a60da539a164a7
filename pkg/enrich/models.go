package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerline/enrich-client/pkg/client"
)

// ModelRef is a reference to a custom labeling model trained on the
// server side. It carries only the remote name; the trained artifact
// never leaves the service.
type ModelRef struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	RequestID string    `json:"-"`
}

// ModelsResource resolves custom model references.
type ModelsResource struct {
	c httpDoer
}

// Get resolves a model reference by name, confirming it exists remotely.
// A missing model surfaces as a validation-kind APIError with status 404.
func (r *ModelsResource) Get(ctx context.Context, name string) (*ModelRef, error) {
	if name == "" {
		return nil, &FieldError{Field: "name", Reason: "must not be empty"}
	}
	var ref ModelRef
	requestID, err := r.c.Get(ctx, "/v3/models/"+name, nil, &ref)
	if err != nil {
		return nil, err
	}
	ref.RequestID = requestID
	return &ref, nil
}

// Exists reports whether the named model is known to the service.
func (r *ModelsResource) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.Get(ctx, name)
	if err == nil {
		return true, nil
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return false, nil
	}
	return false, err
}
