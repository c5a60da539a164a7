// Package metrics provides the Prometheus registry reference for the
// enrichment client. All metrics are defined in their respective packages
// (client, batch, cache) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - enrich_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status or error kind
//   - enrich_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - enrich_errors_total{kind} (Counter): Errors by classification
//
// Retry Metrics (pkg/client):
//   - enrich_retries_total{kind} (Counter): Retry attempts by error kind
//   - enrich_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - enrich_retry_exhausted_total{kind} (Counter): Operations that exhausted max retries
//   - enrich_session_recreations_total (Counter): Transport sessions replaced after connection errors
//
// Batch Metrics (pkg/batch):
//   - enrich_jobs_total{status} (Counter): Jobs by terminal status (succeeded, failed, expired)
//   - enrich_chunk_records (Histogram): Records per submitted chunk
//   - enrich_wait_duration_seconds (Histogram): Wall-clock duration of wait operations
//
// Cache Metrics (pkg/cache):
//   - enrich_cache_hits_total (Counter): Result cache hits
//   - enrich_cache_misses_total (Counter): Result cache misses
//   - enrich_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(enrich_cache_hits_total[5m]) /
//   (rate(enrich_cache_hits_total[5m]) + rate(enrich_cache_misses_total[5m]))
//
//   # Retry Exhaustion Rate
//   rate(enrich_retry_exhausted_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(enrich_request_duration_seconds_bucket[5m]))
//
//   # Job Failure Ratio
//   rate(enrich_jobs_total{status="failed"}[15m]) / rate(enrich_jobs_total[15m])
