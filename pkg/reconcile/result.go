package reconcile

import (
	"fmt"
	"time"

	"github.com/agentstation/clinmap/pkg/mapping"
)

// Result represents the outcome of a reconciliation.
type Result struct {
	// Merged is the successor table.
	Merged *mapping.Table

	// Orphans are baseline trait names absent from current evidence, sorted.
	Orphans []string

	// CarriedForward holds the baseline rows of orphaned traits.
	CarriedForward []mapping.Row

	// Retained holds baseline rows kept for traits current evidence still
	// names under a different mapping.
	Retained []mapping.Row

	// MultiMapped lists traits that map to more than one URI in Merged.
	MultiMapped map[string][]string

	// Duplicates lists input rows seen more than once.
	Duplicates []Duplicate

	Metadata ResultMetadata
	Warnings []string
}

// Duplicate is an input row that appeared Count times in Source.
type Duplicate struct {
	Source string
	Row    mapping.Row
	Count  int
}

// String renders the duplicate for logs and error messages.
func (d Duplicate) String() string {
	return fmt.Sprintf("%s: %q -> %s (x%d)", d.Source, d.Row.TraitName, d.Row.URI, d.Count)
}

// ResultMetadata contains metadata about the reconciliation.
type ResultMetadata struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	CarryForward CarryForward
	DryRun       bool
	Stats        ResultStatistics
}

// ResultStatistics contains row counts gathered during reconciliation.
type ResultStatistics struct {
	AutomatedRows  int
	ManualRows     int
	BaselineRows   int
	CurrentRows    int
	OrphanTraits   int
	CarriedForward int
	Retained       int
	MergedRows     int
	MergedTraits   int
	MultiMapped    int
	DuplicateRows  int
	TotalTimeMs    int64
}

func newResult(o *options) *Result {
	return &Result{
		Orphans:        []string{},
		CarriedForward: []mapping.Row{},
		Retained:       []mapping.Row{},
		MultiMapped:    make(map[string][]string),
		Duplicates:     []Duplicate{},
		Warnings:       []string{},
		Metadata: ResultMetadata{
			StartTime:    time.Now(),
			CarryForward: o.carry,
			DryRun:       o.dryRun,
		},
	}
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	s := r.Metadata.Stats
	prefix := "Reconciliation complete"
	if r.Metadata.DryRun {
		prefix = "Dry run complete"
	}
	return fmt.Sprintf("%s: %d rows (%d current, %d carried forward from %d orphaned traits, %d retained)",
		prefix, s.MergedRows, s.CurrentRows, s.CarriedForward, s.OrphanTraits, s.Retained)
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize() {
	r.Metadata.EndTime = time.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Sub(r.Metadata.StartTime)
	r.Metadata.Stats.TotalTimeMs = r.Metadata.Duration.Milliseconds()
}
