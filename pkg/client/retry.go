package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	enrichRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	enrichRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrich_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	enrichRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})

	enrichSessionRecreationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_session_recreations_total",
		Help: "Total number of transport sessions recreated after connection errors",
	})
)

// RetryConfig holds the configuration for the retry/backoff controller.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	// RetryServerErrors enables retrying generic 5xx responses. 503 is
	// retried regardless of this flag.
	RetryServerErrors bool

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential delay growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        10,
		RetryServerErrors: false,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn with bounded retries and exponential backoff.
// Each call is an independent logical operation; attempt counters and delay
// state live only for its duration. Rate-limited responses honor the
// server's Retry-After hint when present. Connection errors invoke
// onConnectionError before the next attempt so the caller can replace the
// broken transport session.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() *APIError, onConnectionError func()) error {
	var lastErr *APIError
	backoff := cfg.InitialBackoff

	maxAttempts := cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		apiErr := fn()
		if apiErr == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = apiErr

		if !apiErr.Retryable(cfg.RetryServerErrors) {
			return apiErr
		}

		// A broken connection cannot be reused; replace the session
		// before the next attempt.
		if apiErr.Kind == KindConnection && onConnectionError != nil {
			onConnectionError()
			enrichSessionRecreationsTotal.Inc()
		}

		if attempt >= maxAttempts {
			break
		}

		enrichRetriesTotal.WithLabelValues(string(apiErr.Kind)).Inc()

		delay := backoff
		if apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}

		// ±20% jitter against thundering herd.
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
		enrichRetryBackoffSeconds.WithLabelValues(string(apiErr.Kind)).Observe(delay.Seconds())

		logger.Debug().
			Str("kind", string(apiErr.Kind)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("kind", string(apiErr.Kind)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	enrichRetryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
	logger.Warn().
		Str("kind", string(lastErr.Kind)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
