package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Common errors returned by the client.
var (
	// ErrMissingAPIKey is returned when no credential is provided explicitly
	// and the ENRICH_API_KEY environment variable is not set.
	ErrMissingAPIKey = errors.New("api key not provided and ENRICH_API_KEY is not set")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind classifies a failed request for retry decisions and error reporting.
type Kind string

const (
	// KindValidation represents 4xx errors caused by malformed input. Not retryable.
	KindValidation Kind = "validation"

	// KindAuth represents 401/403 credential errors. Not retryable.
	KindAuth Kind = "auth"

	// KindRateLimited represents 429 responses. Retryable, honoring Retry-After.
	KindRateLimited Kind = "rate_limited"

	// KindServer represents 500-511 responses. Retryable only when the caller
	// opted into retrying unhandled server errors; 503 is always retried.
	KindServer Kind = "server"

	// KindConnection represents transport-level failures (reset, refused).
	// Retryable, and triggers session recreation.
	KindConnection Kind = "connection"

	// KindTimeout represents a local deadline exceeded. Retryable within the
	// remaining budget.
	KindTimeout Kind = "timeout"
)

// APIError is the classified outcome of a failed request against the
// enrichment service.
type APIError struct {
	StatusCode int
	Kind       Kind
	Message    string
	RequestID  string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("enrich %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("enrich %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("enrich %s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a request that failed with this error may be
// attempted again. Server errors are gated by the caller's opt-in, except
// 503 which signals transient unavailability and is always retried.
func (e *APIError) Retryable(retryServerErrors bool) bool {
	switch e.Kind {
	case KindRateLimited, KindConnection, KindTimeout:
		return true
	case KindServer:
		return retryServerErrors || e.StatusCode == http.StatusServiceUnavailable
	default:
		return false
	}
}

// apiErrorBody is the error payload shape returned by the service.
type apiErrorBody struct {
	Details string `json:"details"`
	Error   string `json:"error"`
}

// Classify maps a transport outcome to a typed APIError. Exactly one of
// resp and err is expected to be non-nil. Unclassifiable responses degrade
// to KindServer.
func Classify(resp *http.Response, err error) *APIError {
	if err != nil {
		kind := KindConnection
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = KindTimeout
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			kind = KindTimeout
		}
		return &APIError{Kind: kind, Err: err}
	}

	message := resp.Status
	if resp.Body != nil {
		var body apiErrorBody
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); decodeErr == nil {
			if body.Details != "" {
				message = body.Details
			} else if body.Error != "" {
				message = body.Error
			}
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		apiErr.Kind = KindValidation
	default:
		apiErr.Kind = KindServer
	}

	return apiErr
}

// parseRetryAfter extracts a positive Retry-After hint in seconds.
// Returns 0 when the header is absent or unusable.
func parseRetryAfter(headers http.Header) time.Duration {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
