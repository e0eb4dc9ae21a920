// Package report renders a machine-readable summary of a pipeline run.
package report

import (
	"io"
	"time"

	"github.com/agentstation/clinmap/pkg/consequence"
	"github.com/agentstation/clinmap/pkg/differ"
	"github.com/agentstation/clinmap/pkg/reconcile"
	"github.com/agentstation/clinmap/pkg/save"
)

// Report summarizes one run.
type Report struct {
	RunID        string              `json:"run_id" yaml:"run_id"`
	Pipeline     string              `json:"pipeline" yaml:"pipeline"`
	Status       string              `json:"status" yaml:"status"`
	StartedAt    time.Time           `json:"started_at" yaml:"started_at"`
	Duration     string              `json:"duration" yaml:"duration"`
	Settings     map[string]any      `json:"settings,omitempty" yaml:"settings,omitempty"`
	Consequences *ConsequenceSummary `json:"consequences,omitempty" yaml:"consequences,omitempty"`
	Reconcile    *ReconcileSummary   `json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Outputs      map[string]string   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Warnings     []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error        string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// ConsequenceSummary is the mapper section of a report.
type ConsequenceSummary struct {
	Stats         consequence.ResultStatistics `json:"stats" yaml:"stats"`
	FailedBatches []FailedBatch                `json:"failed_batches,omitempty" yaml:"failed_batches,omitempty"`
	Unresolved    []string                     `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// FailedBatch describes a batch that exhausted its retries.
type FailedBatch struct {
	Index    int    `json:"index" yaml:"index"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Keys     int    `json:"keys" yaml:"keys"`
	Error    string `json:"error" yaml:"error"`
}

// ReconcileSummary is the reconciler section of a report.
type ReconcileSummary struct {
	CarryForward string                     `json:"carry_forward" yaml:"carry_forward"`
	Stats        reconcile.ResultStatistics `json:"stats" yaml:"stats"`
	Orphans      []string                   `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	MultiMapped  map[string][]string        `json:"multi_mapped,omitempty" yaml:"multi_mapped,omitempty"`
	Duplicates   []string                   `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Changes      *differ.ChangesetSummary   `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// maxListed caps per-key lists so reports stay readable on large runs.
const maxListed = 100

// SummarizeConsequences builds the mapper section from a result.
func SummarizeConsequences(res *consequence.Result) *ConsequenceSummary {
	if res == nil {
		return nil
	}
	s := &ConsequenceSummary{Stats: res.Metadata.Stats}
	for _, f := range res.Failed {
		s.FailedBatches = append(s.FailedBatches, FailedBatch{
			Index:    f.Index,
			Attempts: f.Attempts,
			Keys:     len(f.Keys),
			Error:    errString(f.Err),
		})
	}
	for i, k := range res.Unresolved {
		if i == maxListed {
			break
		}
		s.Unresolved = append(s.Unresolved, k.String())
	}
	return s
}

// SummarizeReconcile builds the reconciler section from a result.
func SummarizeReconcile(res *reconcile.Result) *ReconcileSummary {
	if res == nil {
		return nil
	}
	s := &ReconcileSummary{
		CarryForward: string(res.Metadata.CarryForward),
		Stats:        res.Metadata.Stats,
		MultiMapped:  res.MultiMapped,
	}
	if len(res.Orphans) > maxListed {
		s.Orphans = res.Orphans[:maxListed]
	} else {
		s.Orphans = res.Orphans
	}
	for _, d := range res.Duplicates {
		s.Duplicates = append(s.Duplicates, d.String())
	}
	return s
}

// Encode writes r to w in format.
func Encode(w io.Writer, r *Report, format save.Format) error {
	return save.Encode(w, r, format)
}

// WriteFile atomically writes r to path, as JSON for .json paths and YAML
// otherwise.
func WriteFile(path string, r *Report) error {
	format := save.FormatFromPath(path)
	return save.File(path, func(w io.Writer) error {
		return Encode(w, r, format)
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
