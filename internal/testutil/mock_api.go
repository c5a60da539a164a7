// Package testutil provides a configurable mock enrichment API server
// for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// ItemFailure injects a per-item error into a job's results.
type ItemFailure struct {
	Code    string
	Message string
}

// plannedFailure makes the next request to a path fail with a status.
type plannedFailure struct {
	statusCode int
	body       string
	headers    map[string]string
}

// listConfig serves a cursor-paged listing endpoint.
type listConfig struct {
	items    []json.RawMessage
	pageSize int
}

// mockJob tracks one submitted batch and its scripted status walk.
type mockJob struct {
	id     string
	txs    []map[string]any
	script []string
	polls  int
}

// MockAPI is a configurable mock enrichment service.
type MockAPI struct {
	server *httptest.Server

	mu           sync.Mutex
	handlers     map[string]http.HandlerFunc
	jobs         map[string]*mockJob
	nextJobID    int
	statusScript []string
	itemFailures map[string]ItemFailure
	failures     map[string][]plannedFailure
	listings     map[string]listConfig

	// Tracking
	RequestCount int
	PollCounts   map[string]int
}

// NewMockAPI creates a mock server. New jobs walk the default status
// script [started, succeeded] unless SetStatusScript overrides it.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:     make(map[string]http.HandlerFunc),
		jobs:         make(map[string]*mockJob),
		statusScript: []string{"started", "succeeded"},
		itemFailures: make(map[string]ItemFailure),
		failures:     make(map[string][]plannedFailure),
		listings:     make(map[string]listConfig),
		PollCounts:   make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))
	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetStatusScript sets the status sequence newly created jobs walk
// through, one entry per poll, clamped at the last entry.
func (m *MockAPI) SetStatusScript(statuses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusScript = statuses
}

// FailItem makes the given transaction id fail inside succeeded jobs.
func (m *MockAPI) FailItem(txID, code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemFailures[txID] = ItemFailure{Code: code, Message: message}
}

// QueueFailure makes the next request to path fail with the given status.
// Queued failures are consumed in order before normal handling resumes.
func (m *MockAPI) QueueFailure(path string, statusCode int, body string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], plannedFailure{statusCode: statusCode, body: body, headers: headers})
}

// SetListing serves items at path as a cursor-paged listing.
func (m *MockAPI) SetListing(path string, pageSize int, items ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[path] = listConfig{items: items, pageSize: pageSize}
}

// JobCount returns the number of jobs created so far.
func (m *MockAPI) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// route dispatches requests to custom handlers, queued failures, and the
// built-in batch/sync/listing endpoints.
func (m *MockAPI) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++

	if handler, ok := m.handlers[r.URL.Path]; ok {
		m.mu.Unlock()
		handler(w, r)
		return
	}

	if queue := m.failures[r.URL.Path]; len(queue) > 0 {
		failure := queue[0]
		m.failures[r.URL.Path] = queue[1:]
		m.mu.Unlock()
		for key, value := range failure.headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failure.statusCode)
		if failure.body != "" {
			fmt.Fprint(w, failure.body)
		}
		return
	}
	m.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v3/batches":
		m.handleCreateJob(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v3/batches/") && strings.HasSuffix(r.URL.Path, "/results"):
		m.handleJobResults(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v3/batches/"):
		m.handleJobStatus(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v3/transactions/sync":
		m.handleSync(w, r)
	default:
		m.mu.Lock()
		listing, ok := m.listings[r.URL.Path]
		m.mu.Unlock()
		if ok && r.Method == http.MethodGet {
			m.handleListing(w, r, listing)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"details": "not found"})
	}
}

type createPayload struct {
	Transactions []map[string]any `json:"transactions"`
}

func (m *MockAPI) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"details": "malformed payload"})
		return
	}

	m.mu.Lock()
	m.nextJobID++
	job := &mockJob{
		id:     fmt.Sprintf("job-%d", m.nextJobID),
		txs:    payload.Transactions,
		script: append([]string(nil), m.statusScript...),
	}
	m.jobs[job.id] = job
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     job.id,
		"status": "created",
		"total":  len(job.txs),
	})
}

func (m *MockAPI) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/v3/batches/")

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"details": "job not found"})
		return
	}
	idx := job.polls
	if idx >= len(job.script) {
		idx = len(job.script) - 1
	}
	job.polls++
	m.PollCounts[jobID]++
	status := job.script[idx]
	total := len(job.txs)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       jobID,
		"status":   status,
		"progress": total,
		"total":    total,
	})
}

func (m *MockAPI) handleJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v3/batches/"), "/results")

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"details": "job not found"})
		return
	}
	results := m.enrichLocked(job.txs)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      jobID,
		"status":  "succeeded",
		"total":   len(results),
		"results": results,
	})
}

func (m *MockAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"details": "malformed payload"})
		return
	}

	m.mu.Lock()
	results := m.enrichLocked(payload.Transactions)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// enrichLocked builds deterministic enrichment outputs for submitted
// transactions, applying injected item failures. Caller holds m.mu.
func (m *MockAPI) enrichLocked(txs []map[string]any) []map[string]any {
	results := make([]map[string]any, len(txs))
	for i, tx := range txs {
		txID, _ := tx["transaction_id"].(string)
		if failure, ok := m.itemFailures[txID]; ok {
			results[i] = map[string]any{
				"transaction_id": txID,
				"error": map[string]string{
					"code":    failure.Code,
					"message": failure.Message,
				},
			}
			continue
		}
		results[i] = map[string]any{
			"transaction_id": txID,
			"merchant": map[string]any{
				"id":   "merchant-" + txID,
				"name": "ACME Corp",
			},
			"categories": []string{"retail"},
			"confidence": 0.97,
		}
	}
	return results
}

func (m *MockAPI) handleListing(w http.ResponseWriter, r *http.Request, listing listConfig) {
	offset := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		parsed, err := strconv.Atoi(strings.TrimPrefix(cursor, "cursor-"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"details": "invalid cursor"})
			return
		}
		offset = parsed
	}

	pageSize := listing.pageSize
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			pageSize = parsed
		}
	}

	end := offset + pageSize
	if end > len(listing.items) {
		end = len(listing.items)
	}

	nextCursor := ""
	if end < len(listing.items) {
		nextCursor = fmt.Sprintf("cursor-%d", end)
	}

	page := map[string]any{
		"data":        listing.items[offset:end],
		"next_cursor": nextCursor,
	}
	if nextCursor == "" {
		page["next_cursor"] = nil
	}
	writeJSON(w, http.StatusOK, page)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
