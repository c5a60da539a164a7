package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ledgerline/enrich-client/pkg/cache"
	"github.com/ledgerline/enrich-client/pkg/client"
)

// Prometheus metrics for batch orchestration.
var (
	enrichJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_jobs_total",
		Help: "Total batch jobs by terminal status",
	}, []string{"status"})

	enrichChunkRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrich_chunk_records",
		Help:    "Number of records per submitted chunk",
		Buckets: []float64{1, 10, 100, 1000, 4000, 10000, 25000},
	})

	enrichWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrich_wait_duration_seconds",
		Help:    "Wall-clock duration of batch wait operations",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400},
	})
)

// SyncSubmitter is an optional JobService upgrade: a synchronous
// enrichment endpoint for inputs small enough to skip the job machinery.
type SyncSubmitter interface {
	EnrichSync(ctx context.Context, records []Record) ([]Item, error)
}

// Config holds the batch manager configuration.
type Config struct {
	// Limits bounds each chunk submission.
	Limits Limits

	// PollInterval is the delay between status polls of one job.
	PollInterval time.Duration

	// Timeout bounds a whole wait operation. Jobs still running when it
	// elapses are marked expired client-side; the server-side job is not
	// cancelled.
	Timeout time.Duration

	// MaxConcurrency caps the number of jobs polled in parallel.
	MaxConcurrency int

	// MaxSyncItems is the largest input enriched through the synchronous
	// endpoint when the service supports it. Zero disables the fast path.
	MaxSyncItems int

	// StrictErrors aborts a wait on the first job-level or item-level
	// failure instead of tagging the affected results.
	StrictErrors bool

	// Progress, when set, receives (completed jobs, total jobs) after
	// each job reaches a terminal state. Invocations are serialized.
	Progress func(completed, total int)

	// Cache, when set, short-circuits records whose enrichment output is
	// already cached and stores fresh successes after a wait.
	Cache *cache.ResultCache
}

// DefaultConfig returns safe defaults matching the service's documented
// limits.
func DefaultConfig() Config {
	return Config{
		Limits:         DefaultLimits(),
		PollInterval:   10 * time.Second,
		Timeout:        4 * time.Hour,
		MaxConcurrency: 4,
		MaxSyncItems:   4000,
	}
}

// Manager orchestrates batch enrichment: chunking, submission, polling,
// and ordered result reassembly.
type Manager struct {
	svc    JobService
	cfg    Config
	logger zerolog.Logger
}

// NewManager creates a batch manager over the given job service.
func NewManager(svc JobService, cfg Config) *Manager {
	if cfg.Limits.MaxItems <= 0 || cfg.Limits.MaxBytes <= 0 {
		cfg.Limits = DefaultLimits()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Hour
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}

	return &Manager{
		svc:    svc,
		cfg:    cfg,
		logger: log.With().Str("component", "batch-manager").Logger(),
	}
}

// Submit partitions records into chunks respecting the configured limits
// and submits each chunk as an independent job. Handles are returned in
// chunk order. A record that alone exceeds the byte limit fails
// validation before any submission is attempted.
func (m *Manager) Submit(ctx context.Context, records []Record) ([]JobHandle, error) {
	annotated, err := annotate(records)
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, annotated)
}

func (m *Manager) submit(ctx context.Context, annotated []posRecord) ([]JobHandle, error) {
	chunks, err := splitChunks(annotated, m.cfg.Limits)
	if err != nil {
		return nil, err
	}

	handles := make([]JobHandle, 0, len(chunks))
	for _, chunk := range chunks {
		recs := make([]Record, len(chunk))
		for i, r := range chunk {
			recs[i] = r.rec
		}

		jobID, err := m.svc.Submit(ctx, recs)
		if err != nil {
			return nil, &JobError{Phase: "submission", Err: err}
		}

		enrichChunkRecords.Observe(float64(len(chunk)))
		m.logger.Info().
			Str("job_id", jobID).
			Int("records", len(chunk)).
			Int("chunk", len(handles)).
			Msg("Chunk submitted")

		handles = append(handles, JobHandle{JobID: jobID, records: chunk})
	}
	return handles, nil
}

// Wait polls every job to a terminal state and reassembles per-item
// results in original record order, regardless of the order in which jobs
// complete. In the default partial-failure mode, item-level errors and
// job failures become error-tagged results; with StrictErrors the first
// such failure aborts the wait.
func (m *Manager) Wait(ctx context.Context, handles []JobHandle) ([]Result, error) {
	total := 0
	for _, h := range handles {
		total += len(h.records)
	}
	results := make([]Result, total)
	if err := m.waitInto(ctx, handles, results); err != nil {
		return nil, err
	}
	return results, nil
}

// waitInto runs the bounded-concurrency polling loop, writing each
// record's result at its original position in results. Workers own
// disjoint position sets, so no locking is needed on the slice itself.
func (m *Manager) waitInto(ctx context.Context, handles []JobHandle, results []Result) error {
	if len(handles) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		enrichWaitDuration.Observe(time.Since(start).Seconds())
	}()

	deadline := time.Now().Add(m.cfg.Timeout)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobQueue := make(chan JobHandle, len(handles))
	for _, h := range handles {
		jobQueue <- h
	}
	close(jobQueue)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed int
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	workers := m.cfg.MaxConcurrency
	if workers > len(handles) {
		workers = len(handles)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range jobQueue {
				select {
				case <-waitCtx.Done():
					return
				default:
				}

				if err := m.pollJob(waitCtx, deadline, h, results); err != nil {
					fail(err)
					return
				}

				mu.Lock()
				completed++
				done, total := completed, len(handles)
				if m.cfg.Progress != nil {
					m.cfg.Progress(done, total)
				}
				mu.Unlock()

				m.logger.Debug().
					Str("job_id", h.JobID).
					Int("completed", done).
					Int("total", total).
					Msg("Job reached terminal state")
			}
		}()
	}
	wg.Wait()

	return firstErr
}

// pollJob polls one job at the configured interval until it reaches a
// terminal state or the deadline elapses. It returns as soon as a
// terminal state is observed and never polls past one. The deadline is
// checked between polls, so expiry granularity is one poll interval.
func (m *Manager) pollJob(ctx context.Context, deadline time.Time, h JobHandle, results []Result) error {
	for {
		if !time.Now().Before(deadline) {
			m.logger.Warn().
				Str("job_id", h.JobID).
				Int("records", len(h.records)).
				Msg("Wait deadline elapsed; marking job expired")
			enrichJobsTotal.WithLabelValues(string(StatusExpired)).Inc()

			expiredErr := &client.APIError{
				Kind:    client.KindTimeout,
				Message: "wait deadline elapsed before the job reached a terminal state",
			}
			for _, r := range h.records {
				results[r.pos] = Result{Position: r.pos, RecordID: r.id, JobID: h.JobID, Err: expiredErr}
			}
			return nil
		}

		status, err := m.svc.Status(ctx, h.JobID)
		if err != nil {
			return &JobError{JobID: h.JobID, Phase: "polling", Err: err}
		}

		switch status {
		case StatusSucceeded:
			return m.collectResults(ctx, h, results)

		case StatusFailed:
			enrichJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
			jobErr := &JobError{JobID: h.JobID, Status: StatusFailed}
			if m.cfg.StrictErrors {
				return jobErr
			}
			for _, r := range h.records {
				results[r.pos] = Result{Position: r.pos, RecordID: r.id, JobID: h.JobID, Err: jobErr}
			}
			return nil

		case StatusCreated, StatusStarted:
			// Not terminal yet; fall through to the sleep below.

		default:
			return &JobError{JobID: h.JobID, Phase: "polling", Err: fmt.Errorf("unknown job status %q", status)}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", client.ErrContextCancelled, ctx.Err())
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// collectResults pulls a succeeded job's outputs and distributes them to
// the records' original positions.
func (m *Manager) collectResults(ctx context.Context, h JobHandle, results []Result) error {
	items, err := m.svc.Results(ctx, h.JobID)
	if err != nil {
		return &JobError{JobID: h.JobID, Phase: "results", Err: err}
	}
	if len(items) != len(h.records) {
		return &JobError{
			JobID: h.JobID,
			Phase: "results",
			Err:   fmt.Errorf("job returned %d results for %d records", len(items), len(h.records)),
		}
	}

	enrichJobsTotal.WithLabelValues(string(StatusSucceeded)).Inc()

	return m.distribute(h.JobID, h.records, items, results)
}

// distribute maps per-item outputs onto original positions, applying the
// partial-failure policy.
func (m *Manager) distribute(jobID string, records []posRecord, items []Item, results []Result) error {
	for i, item := range items {
		r := records[i]
		if item.Err != nil {
			if m.cfg.StrictErrors {
				return &PartialEnrichmentError{JobID: jobID, Position: r.pos, ItemErr: item.Err}
			}
			results[r.pos] = Result{Position: r.pos, RecordID: r.id, JobID: jobID, Err: item.Err}
			continue
		}
		results[r.pos] = Result{Position: r.pos, RecordID: r.id, JobID: jobID, Output: item.Output}
	}
	return nil
}

// SubmitAndWait composes Submit and Wait with the same ordering and
// failure semantics. When a result cache is configured, records whose
// output is already cached are not resubmitted; cached and fresh results
// merge back by original position. Inputs small enough for the
// synchronous endpoint skip the job machinery entirely when the service
// supports it.
func (m *Manager) SubmitAndWait(ctx context.Context, records []Record) ([]Result, error) {
	annotated, err := annotate(records)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(records))
	toSubmit := annotated

	if m.cfg.Cache != nil {
		toSubmit = m.resolveCached(ctx, annotated, results)
	}
	if len(toSubmit) == 0 {
		return results, nil
	}

	if sync, ok := m.svc.(SyncSubmitter); ok && m.cfg.MaxSyncItems > 0 && len(toSubmit) <= m.cfg.MaxSyncItems {
		if err := m.enrichSync(ctx, sync, toSubmit, results); err != nil {
			return nil, err
		}
	} else {
		handles, err := m.submit(ctx, toSubmit)
		if err != nil {
			return nil, err
		}
		if err := m.waitInto(ctx, handles, results); err != nil {
			return nil, err
		}
	}

	if m.cfg.Cache != nil {
		m.storeFresh(ctx, toSubmit, results)
	}
	return results, nil
}

// enrichSync runs the small-input fast path through the synchronous
// endpoint.
func (m *Manager) enrichSync(ctx context.Context, svc SyncSubmitter, annotated []posRecord, results []Result) error {
	recs := make([]Record, len(annotated))
	for i, r := range annotated {
		recs[i] = r.rec
	}

	m.logger.Debug().Int("records", len(recs)).Msg("Using synchronous enrichment fast path")

	items, err := svc.EnrichSync(ctx, recs)
	if err != nil {
		return &JobError{Phase: "submission", Err: err}
	}
	if len(items) != len(annotated) {
		return &JobError{
			Phase: "submission",
			Err:   fmt.Errorf("sync enrichment returned %d results for %d records", len(items), len(annotated)),
		}
	}
	return m.distribute("", annotated, items, results)
}

// resolveCached fills results for cache hits and returns the remaining
// misses. Lookups are keyed by the record's serialized form, not its id,
// so records carrying synthetic position-derived ids never observe
// another input's cached output. Cache failures degrade to treating
// every record as a miss.
func (m *Manager) resolveCached(ctx context.Context, annotated []posRecord, results []Result) []posRecord {
	keys := make([]string, len(annotated))
	for i, r := range annotated {
		keys[i] = r.key
	}

	cached, err := m.cfg.Cache.GetMulti(ctx, keys)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Result cache lookup failed; submitting all records")
		return annotated
	}

	var misses []posRecord
	for _, r := range annotated {
		if output, ok := cached[r.key]; ok {
			results[r.pos] = Result{Position: r.pos, RecordID: r.id, Output: output}
			continue
		}
		misses = append(misses, r)
	}

	if hits := len(annotated) - len(misses); hits > 0 {
		m.logger.Info().
			Int("hits", hits).
			Int("misses", len(misses)).
			Msg("Result cache short-circuited records")
	}
	return misses
}

// storeFresh writes successful fresh results back to the cache.
func (m *Manager) storeFresh(ctx context.Context, submitted []posRecord, results []Result) {
	fresh := make(map[string]json.RawMessage)
	for _, r := range submitted {
		res := results[r.pos]
		if !res.Failed() && res.Output != nil {
			fresh[r.key] = res.Output
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := m.cfg.Cache.SetMulti(ctx, fresh); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to store results in cache")
	}
}
