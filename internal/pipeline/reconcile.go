package pipeline

import (
	"context"
	"io"

	"github.com/agentstation/clinmap/pkg/baseline"
	"github.com/agentstation/clinmap/pkg/differ"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/feedback"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/mapping"
	"github.com/agentstation/clinmap/pkg/reconcile"
	"github.com/agentstation/clinmap/pkg/report"
)

// ReconcileConfig configures RunReconcile.
type ReconcileConfig struct {
	// Automated is the automatically derived mapping table.
	Automated string
	// Manual is the curated mapping table. Optional.
	Manual string
	// Baseline is the persisted table: a path, file://, mem:// or s3:// location.
	Baseline string
	// History keeps replaced baselines under this directory or key prefix.
	History string
	// Output receives a copy of the merged table, or "-" for stdout. Optional.
	Output string
	// Feedback receives the curation feedback export. Optional.
	Feedback string

	CarryForward         reconcile.CarryForward
	AllowMissingBaseline bool
	StrictDuplicates     bool
	DryRun               bool
	Tolerant             bool

	FeedbackPropertyType string
	FeedbackAnnotator    string

	S3 baseline.S3Config
}

// Validate checks the settings that no later stage checks.
func (c *ReconcileConfig) Validate() error {
	if c.Automated == "" {
		return errors.NewValidationError("automated", c.Automated, "an automated mapping table is required")
	}
	if c.Baseline == "" {
		return errors.NewValidationError("baseline", c.Baseline, "a baseline location is required")
	}
	if c.CarryForward != "" {
		if _, err := reconcile.ParseCarryForward(string(c.CarryForward)); err != nil {
			return err
		}
	}
	return nil
}

// RunReconcile merges the current evidence with the baseline, writes the
// merged table and feedback export, and then replaces the baseline unless
// DryRun is set. Outputs are written before the baseline so a failed write
// leaves the baseline untouched.
func RunReconcile(ctx context.Context, cfg ReconcileConfig, env *Env) (*reconcile.Result, *report.Report, error) {
	if env == nil {
		env = &Env{}
	}
	ctx, r := env.begin(ctx, NameReconcile)
	result, err := runReconcile(ctx, cfg, env, r)
	status := ledger.StatusSucceeded
	if cfg.DryRun {
		status = ledger.StatusDryRun
	}
	if result != nil {
		r.report.Reconcile = report.SummarizeReconcile(result)
		if r.changes != nil {
			r.report.Reconcile.Changes = &r.changes.Summary
		}
		r.report.Warnings = result.Warnings
		stats := result.Metadata.Stats
		r.ledger.Inputs = stats.AutomatedRows + stats.ManualRows + stats.BaselineRows
		r.ledger.Outputs = stats.MergedRows
		r.ledger.Failures = stats.DuplicateRows
		if env.Metrics != nil {
			env.Metrics.ObserveReconcile(result)
		}
	}
	return result, r.Report(), r.finish(ctx, status, err)
}

func runReconcile(ctx context.Context, cfg ReconcileConfig, env *Env, r *run) (*reconcile.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)

	in, err := loadInputs(logging.WithStage(ctx, "load"), cfg)
	if err != nil {
		return nil, err
	}

	store, err := baseline.Open(ctx, cfg.Baseline, baseline.Options{
		History:  cfg.History,
		Tolerant: cfg.Tolerant,
		S3:       cfg.S3,
	})
	if err != nil {
		return nil, errors.WrapStage("open baseline", cfg.Baseline, err)
	}
	in.Baseline, err = baseline.LoadOrEmpty(logging.WithStage(ctx, "load baseline"), store, cfg.AllowMissingBaseline)
	if err != nil {
		return nil, errors.WrapStage("load baseline", store.Location(), err)
	}

	reconciler, err := reconcile.New(
		reconcile.WithCarryForward(cfg.CarryForward),
		reconcile.WithStrictDuplicates(cfg.StrictDuplicates),
		reconcile.WithDryRun(cfg.DryRun),
	)
	if err != nil {
		return nil, err
	}
	result, err := reconciler.Reconcile(logging.WithStage(ctx, "reconcile"), in)
	if err != nil {
		return result, errors.WrapStage("reconcile", "", err)
	}

	r.changes = differ.New().Tables(mapping.NewTable(in.Baseline...), result.Merged)
	logger.Info().
		Int("rows_added", r.changes.Summary.RowsAdded).
		Int("rows_removed", r.changes.Summary.RowsRemoved).
		Int("traits_added", r.changes.Summary.TraitsAdded).
		Int("traits_remapped", r.changes.Summary.TraitsUpdated).
		Msg("Baseline changes: " + r.changes.String())

	if cfg.Output != "" {
		if err := writeOutput(env, cfg.Output, func(w io.Writer) error {
			return mapping.Write(w, result.Merged)
		}); err != nil {
			return result, errors.WrapStage("write merged table", cfg.Output, err)
		}
		r.output("merged", cfg.Output)
	}

	if cfg.Feedback != "" {
		records := feedback.Build(result.Merged, feedback.Options{
			PropertyType: cfg.FeedbackPropertyType,
			Annotator:    cfg.FeedbackAnnotator,
			Now:          env.now(),
		})
		if err := writeOutput(env, cfg.Feedback, func(w io.Writer) error {
			return feedback.Write(w, records)
		}); err != nil {
			return result, errors.WrapStage("write feedback", cfg.Feedback, err)
		}
		r.output("feedback", cfg.Feedback)
	}

	if cfg.DryRun {
		logger.Info().Str("baseline", store.Location()).Msg("Dry run; baseline left unchanged")
	} else {
		if err := store.Replace(logging.WithStage(ctx, "replace baseline"), result.Merged); err != nil {
			return result, errors.WrapStage("replace baseline", store.Location(), err)
		}
		r.output("baseline", store.Location())
	}

	logger.Info().
		Int("merged_rows", result.Metadata.Stats.MergedRows).
		Int("orphans", result.Metadata.Stats.OrphanTraits).
		Msg(result.Summary())
	return result, nil
}

func loadInputs(ctx context.Context, cfg ReconcileConfig) (reconcile.Inputs, error) {
	var in reconcile.Inputs
	var err error
	in.Automated, err = readRows(ctx, cfg.Automated, "automated", cfg.Tolerant)
	if err != nil {
		return in, errors.WrapStage("load automated mappings", cfg.Automated, err)
	}
	if cfg.Manual != "" {
		in.Manual, err = readRows(ctx, cfg.Manual, "manual", cfg.Tolerant)
		if err != nil {
			return in, errors.WrapStage("load manual mappings", cfg.Manual, err)
		}
	}
	return in, nil
}

func readRows(ctx context.Context, path, name string, tolerant bool) ([]mapping.Row, error) {
	rows, stats, err := mapping.ReadRowsFile(ctx, path, mapping.ReadOptions{Name: name, Tolerant: tolerant})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug().
		Str("table", name).
		Int("rows", stats.Rows).
		Int("skipped", stats.Skipped).
		Msg("Read mapping table")
	return rows, nil
}

// VerifyResult is the outcome of VerifyTable.
type VerifyResult struct {
	Path        string                `json:"path" yaml:"path"`
	Rows        int                   `json:"rows" yaml:"rows"`
	Traits      int                   `json:"traits" yaml:"traits"`
	Duplicates  []reconcile.Duplicate `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	MultiMapped map[string][]string   `json:"multi_mapped,omitempty" yaml:"multi_mapped,omitempty"`
}

// VerifyTable checks a persisted mapping table for duplicate rows and
// reports one-to-many traits. The returned error satisfies
// errors.IsInconsistent when duplicates are present.
func VerifyTable(ctx context.Context, path string, tolerant bool) (*VerifyResult, error) {
	rows, _, err := mapping.ReadRowsFile(ctx, path, mapping.ReadOptions{Name: "verify", MinColumns: 2, Tolerant: tolerant})
	if err != nil {
		return nil, err
	}
	table := mapping.NewTable(rows...)
	res := &VerifyResult{
		Path:        path,
		Rows:        len(rows),
		Traits:      len(table.TraitNames()),
		Duplicates:  reconcile.Groups(rows),
		MultiMapped: reconcile.MultiMapped(table),
	}
	return res, reconcile.Verify("verify", rows)
}

// DiffTables compares two mapping table files.
func DiffTables(ctx context.Context, existingPath, updatedPath string, ignoreLabels bool) (*differ.Changeset, error) {
	existing, _, err := mapping.ReadFile(ctx, existingPath, mapping.ReadOptions{Name: "existing", MinColumns: 2})
	if err != nil {
		return nil, err
	}
	updated, _, err := mapping.ReadFile(ctx, updatedPath, mapping.ReadOptions{Name: "updated", MinColumns: 2})
	if err != nil {
		return nil, err
	}
	return differ.New(differ.WithIgnoreLabels(ignoreLabels)).Tables(existing, updated), nil
}
