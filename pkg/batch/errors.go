package batch

import (
	"fmt"
)

// ItemError is a per-item enrichment failure reported inside a succeeded
// job. It is data, not a fatal condition: in the default partial-failure
// mode it is attached to the corresponding Result.
type ItemError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("item enrichment failed (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("item enrichment failed: %s", e.Message)
}

// JobError is a job-level failure: the job reached the failed state, or a
// submission/polling phase failed after retries.
type JobError struct {
	JobID  string
	Phase  string // "submission", "polling", "results"
	Status Status
	Err    error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s failed during %s: %v", e.JobID, e.Phase, e.Err)
	}
	return fmt.Sprintf("job %s reached status %q", e.JobID, e.Status)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *JobError) Unwrap() error {
	return e.Err
}

// PartialEnrichmentError aborts a strict-mode wait on the first item-level
// failure, identifying the failing record's position in the original input.
type PartialEnrichmentError struct {
	JobID    string
	Position int
	ItemErr  *ItemError
}

// Error implements the error interface.
func (e *PartialEnrichmentError) Error() string {
	return fmt.Sprintf("job %s: record at position %d failed enrichment: %v", e.JobID, e.Position, e.ItemErr)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialEnrichmentError) Unwrap() error {
	return e.ItemErr
}
