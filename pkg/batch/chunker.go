package batch

import (
	"encoding/json"
	"fmt"

	"github.com/ledgerline/enrich-client/pkg/client"
)

const (
	// arrayOverhead is the bracket cost of the serialized record array;
	// each record additionally pays one separator byte.
	arrayOverhead = 2

	// envelopeOverhead is reserved for the JSON envelope the submission
	// endpoint wraps around the record array; it counts against the
	// payload limit too.
	envelopeOverhead = 64
)

// Limits bounds a single chunk submission. Both limits are enforced
// simultaneously: a chunk closes when adding the next record would exceed
// either one.
type Limits struct {
	// MaxItems is the service's maximum record count per job.
	MaxItems int

	// MaxBytes is the endpoint's maximum payload size, compared against a
	// greedy estimate of the serialized chunk.
	MaxBytes int
}

// DefaultLimits returns the service-imposed chunk limits.
func DefaultLimits() Limits {
	return Limits{
		MaxItems: 24960,
		MaxBytes: 10 << 20,
	}
}

// annotate builds position-pinned records with serialized size estimates
// and synthetic ids where a record reports none.
func annotate(records []Record) ([]posRecord, error) {
	annotated := make([]posRecord, len(records))
	for i, rec := range records {
		if rec == nil {
			return nil, &client.APIError{
				Kind:    client.KindValidation,
				Message: fmt.Sprintf("record at position %d is nil", i),
			}
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return nil, &client.APIError{
				Kind:    client.KindValidation,
				Message: fmt.Sprintf("record at position %d is not serializable", i),
				Err:     err,
			}
		}
		id := rec.RecordID()
		if id == "" {
			id = fmt.Sprintf("record-%d", i)
		}
		annotated[i] = posRecord{pos: i, id: id, rec: rec, size: len(encoded), key: string(encoded)}
	}
	return annotated, nil
}

// splitChunks assigns records to chunks greedily in input order, closing a
// chunk when the item-count limit or the byte-size estimate would be
// exceeded. Deterministic and O(n); not globally optimal bin-packing. A
// single record alone exceeding the byte limit fails before any
// submission is attempted.
func splitChunks(records []posRecord, limits Limits) ([][]posRecord, error) {
	if limits.MaxItems <= 0 || limits.MaxBytes <= 0 {
		return nil, fmt.Errorf("chunk limits must be positive (items=%d bytes=%d)", limits.MaxItems, limits.MaxBytes)
	}

	for _, r := range records {
		if envelopeOverhead+arrayOverhead+r.size > limits.MaxBytes {
			return nil, &client.APIError{
				Kind: client.KindValidation,
				Message: fmt.Sprintf("record %q at position %d is %d bytes, exceeding the %d byte payload limit on its own",
					r.id, r.pos, r.size, limits.MaxBytes),
			}
		}
	}

	var chunks [][]posRecord
	var current []posRecord
	currentBytes := envelopeOverhead + arrayOverhead

	for _, r := range records {
		recordCost := r.size + 1
		if len(current) > 0 && (len(current) >= limits.MaxItems || currentBytes+recordCost > limits.MaxBytes) {
			chunks = append(chunks, current)
			current = nil
			currentBytes = envelopeOverhead + arrayOverhead
		}
		current = append(current, r)
		currentBytes += recordCost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks, nil
}
