// Package client provides the core HTTP client for the transaction
// enrichment API with authentication, rate limiting, retries, and error
// classification.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for enrichment API operations.
var (
	enrichRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_requests_total",
		Help: "Total enrichment API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	enrichRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_request_duration_seconds",
		Help:    "Enrichment API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	enrichErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_errors_total",
		Help: "Total enrichment API errors by kind",
	}, []string{"kind"})
)

// EnvAPIKey is the environment variable consulted when Config.APIKey is empty.
const EnvAPIKey = "ENRICH_API_KEY"

// DefaultBaseURL is the production endpoint of the enrichment service.
const DefaultBaseURL = "https://api.ledgerline.io"

// Config holds the client configuration.
type Config struct {
	// APIKey authenticates every request. Falls back to ENRICH_API_KEY.
	APIKey string

	// BaseURL of the enrichment service.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// Retry configures the retry/backoff controller.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:            apiKey,
		BaseURL:           DefaultBaseURL,
		UserAgent:         "enrich-client-go/0.1.0",
		Timeout:           10 * time.Minute,
		RequestsPerSecond: 10,
		Retry:             DefaultRetryConfig(),
	}
}

// Client is the resilient request engine shared by all resources. The
// transport session is an explicit resource owned by the client; it is
// safe for concurrent use and is replaced, never mutated, after a
// connection failure.
type Client struct {
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu         sync.Mutex
	httpClient *http.Client
	sessionGen atomic.Int64
}

// New creates a new enrichment API client. A missing credential is a
// configuration error surfaced here, before any network call.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "enrich-client-go/0.1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Retry.BackoffMultiplier <= 1 {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := log.With().Str("component", "enrich-client").Logger()

	return &Client{
		config:     cfg,
		limiter:    limiter,
		logger:     logger,
		httpClient: newSession(cfg.Timeout),
	}, nil
}

// newSession builds a fresh transport session with connection reuse enabled.
func newSession(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// session returns the current transport session.
func (c *Client) session() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

// recreateSession replaces the transport session, but only if it is still
// the one that observed the failure. In-flight requests keep using the old
// session; only subsequent requests pick up the replacement.
func (c *Client) recreateSession(old *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == old {
		old.CloseIdleConnections()
		c.httpClient = newSession(c.config.Timeout)
		c.sessionGen.Add(1)
		c.logger.Warn().
			Int64("generation", c.sessionGen.Load()).
			Msg("Transport session recreated after connection error")
	}
}

// SessionGeneration returns how many times the transport session has been
// recreated. Exposed for tests and diagnostics.
func (c *Client) SessionGeneration() int64 {
	return c.sessionGen.Load()
}

// NewRequestID generates a hex request identifier attached to one logical
// operation.
func NewRequestID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Do performs an authenticated request with rate limiting, retries, and
// error classification. payload is JSON-encoded once and replayed across
// attempts; out, when non-nil, receives the decoded response body. The
// returned request ID correlates all attempts of this operation.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, payload any, out any) (string, error) {
	requestID := NewRequestID()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return requestID, fmt.Errorf("encode request payload: %w", err)
		}
	}

	reqURL := c.config.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	startTime := time.Now()
	defer func() {
		enrichRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", path).
		Str("method", method).
		Str("request_id", requestID).
		Msg("Executing enrichment API request")

	var raw json.RawMessage
	var failedSession *http.Client

	retryErr := retryWithBackoff(ctx, c.config.Retry, c.logger, func() *APIError {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &APIError{Kind: KindTimeout, RequestID: requestID, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			return &APIError{Kind: KindValidation, RequestID: requestID, Err: err}
		}
		req.Header.Set("X-API-Key", c.config.APIKey)
		req.Header.Set("X-Request-ID", requestID)
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		session := c.session()
		resp, reqErr := session.Do(req)
		if reqErr != nil {
			apiErr := Classify(nil, reqErr)
			apiErr.RequestID = requestID
			enrichErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()
			enrichRequestsTotal.WithLabelValues(path, string(apiErr.Kind)).Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", path).Msg("HTTP request failed")

			failedSession = session
			return apiErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			apiErr := Classify(resp, nil)
			if apiErr.RequestID == "" {
				apiErr.RequestID = requestID
			}
			enrichErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()
			enrichRequestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", path).
				Int("status", resp.StatusCode).
				Str("kind", string(apiErr.Kind)).
				Msg("Enrichment API request error")
			return apiErr
		}

		enrichRequestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		raw = nil
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
				return &APIError{Kind: KindServer, RequestID: requestID, Message: "malformed response body", Err: err}
			}
		}
		return nil
	}, func() {
		if failedSession != nil {
			c.recreateSession(failedSession)
			failedSession = nil
		}
	})

	if retryErr != nil {
		return requestID, retryErr
	}

	if out != nil && raw != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return requestID, fmt.Errorf("decode response: %w", err)
		}
	}
	return requestID, nil
}

// Get performs a GET request against an API path.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) (string, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request with a JSON payload.
func (c *Client) Post(ctx context.Context, path string, payload any, out any) (string, error) {
	return c.Do(ctx, http.MethodPost, path, nil, payload, out)
}

// Delete performs a DELETE request against an API path.
func (c *Client) Delete(ctx context.Context, path string) (string, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Close releases idle connections held by the current session.
func (c *Client) Close() error {
	c.session().CloseIdleConnections()
	return nil
}
