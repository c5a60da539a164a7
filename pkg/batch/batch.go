// Package batch implements the batch job orchestrator: it chunks record
// collections under service limits, submits each chunk as an asynchronous
// job, polls jobs to a terminal state, and reassembles per-item results in
// input order.
package batch

import (
	"context"
	"encoding/json"
)

// Record is one domain item submitted for enrichment. The orchestrator
// never mutates records; it only reads them and correlates output by
// position. Records with an empty RecordID get a position-derived
// synthetic id.
type Record interface {
	RecordID() string
}

// Status is the lifecycle state of a job. The server owns the
// authoritative state; StatusExpired is client-observed only, entered
// when the wait deadline elapses before the server reports a terminal
// state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusExpired
}

// Item is one per-record output inside a succeeded job: either an opaque
// enrichment payload or an item-level error.
type Item struct {
	Output json.RawMessage
	Err    *ItemError
}

// JobService is the remote collaborator the manager submits to and polls.
// Implementations are expected to run every call through the resilient
// request engine, so errors returned here are already post-retry.
type JobService interface {
	// Submit creates a job over one chunk and returns its opaque id.
	Submit(ctx context.Context, records []Record) (string, error)

	// Status returns the server-side state of a job.
	Status(ctx context.Context, jobID string) (Status, error)

	// Results returns the per-item outputs of a succeeded job, in
	// submission order.
	Results(ctx context.Context, jobID string) ([]Item, error)
}

// Result correlates one output with its input record by position. Err is
// set for item-level enrichment failures, chunk-wide job failures, and
// expired waits; Output is set otherwise.
type Result struct {
	// Position is the record's index in the original input sequence.
	Position int

	// RecordID is the record's stable identity (possibly synthetic).
	RecordID string

	// JobID identifies the job that carried this record. Preserved on
	// expired results so callers can retrieve output later by hand.
	JobID string

	// Output is the opaque enrichment payload.
	Output json.RawMessage

	// Err is the failure that produced this result instead of output.
	Err error
}

// Failed reports whether this result carries an error instead of output.
func (r Result) Failed() bool {
	return r.Err != nil
}

// JobHandle tracks one submitted chunk. Handles are returned in chunk
// order so results can be reassembled positionally.
type JobHandle struct {
	// JobID is the server-assigned job identifier.
	JobID string

	records []posRecord
}

// Size returns the number of records carried by this handle's chunk.
func (h JobHandle) Size() int {
	return len(h.records)
}

// posRecord pins a record to its position in the original input. key is
// the record's serialized form, used as its cache identity; synthetic
// ids are position-derived and must never key shared state.
type posRecord struct {
	pos  int
	id   string
	rec  Record
	size int
	key  string
}
