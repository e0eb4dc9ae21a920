package consequence

import (
	"fmt"
	"time"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/variant"
)

// Result represents the outcome of a mapper run.
type Result struct {
	// Records holds one entry per resolved key, in canonical key order.
	Records []Record

	// Unresolved lists keys the annotator answered with the sentinel.
	Unresolved []variant.Key

	// Failed lists batches that exhausted their retries, by index.
	Failed []*errors.BatchError

	Metadata ResultMetadata
}

// ResultMetadata contains metadata about the run.
type ResultMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	BatchSize int
	Workers   int
	Retries   int

	Stats ResultStatistics
}

// ResultStatistics contains counts gathered during the run.
type ResultStatistics struct {
	InputKeys     int
	Variants      int
	Batches       int
	BatchesFailed int
	Attempts      int
	Retries       int
	Annotated     int
	Unresolved    int
	Dropped       int
	TotalTimeMs   int64
}

func newResult(o *options) *Result {
	return &Result{
		Records:    []Record{},
		Unresolved: []variant.Key{},
		Failed:     []*errors.BatchError{},
		Metadata: ResultMetadata{
			StartTime: time.Now(),
			BatchSize: o.batchSize,
			Workers:   o.workers,
			Retries:   o.retries,
		},
	}
}

// IsSuccess returns true if every batch succeeded.
func (r *Result) IsSuccess() bool {
	return len(r.Failed) == 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	s := r.Metadata.Stats
	if !r.IsSuccess() {
		return fmt.Sprintf("Mapping failed: %d of %d batches exhausted retries (%d variants dropped)",
			s.BatchesFailed, s.Batches, s.Dropped)
	}
	return fmt.Sprintf("Mapped %d variants in %d batches: %d annotated, %d unresolved",
		s.Variants, s.Batches, s.Annotated, s.Unresolved)
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize() {
	r.Metadata.EndTime = time.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Sub(r.Metadata.StartTime)
	r.Metadata.Stats.TotalTimeMs = r.Metadata.Duration.Milliseconds()
}
