// Package reconcile merges newly produced trait mappings with the persisted
// baseline so that no mapping is lost merely because its trait was absent
// from the latest input.
//
// The merge is a set computation over full rows:
//
//	current = automated ∪ manual
//	orphans = traits(baseline) − traits(current)
//	merged  = current ∪ {baseline rows of orphans}
//
// Under the default CarryRows policy, baseline rows of traits that current
// evidence still names are kept as well when current evidence lacks their
// (trait, URI) pair, so a trait can gain a mapping but never silently lose
// one. A row whose pair is still present is superseded by the current row,
// which lets labels change. Traits ending up with several URIs are reported
// for review rather than resolved.
package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// Inputs are the raw rows of the three tables, as read.
type Inputs struct {
	Automated []mapping.Row
	Manual    []mapping.Row
	Baseline  []mapping.Row
}

// traitURI identifies a mapping independent of its label.
type traitURI struct {
	trait, uri string
}

// Reconciler merges inputs into a successor table.
type Reconciler struct {
	options *options
}

// New creates a reconciler.
func New(opts ...Option) (*Reconciler, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Reconciler{options: o}, nil
}

// Reconcile computes the merged table. A ConsistencyError stops the run
// before anything is persisted; the partial result is still returned for
// reporting.
func (r *Reconciler) Reconcile(ctx context.Context, in Inputs) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCanceled, err)
	}
	logger := logging.FromContext(ctx)
	result := newResult(r.options)
	defer result.Finalize()

	stats := &result.Metadata.Stats
	stats.AutomatedRows = len(in.Automated)
	stats.ManualRows = len(in.Manual)
	stats.BaselineRows = len(in.Baseline)

	if err := r.checkInputDuplicates(ctx, result, in); err != nil {
		return result, err
	}

	// merged collects rows before the final dedup so Verify sees every add.
	current := mapping.NewTable()
	merged := make([]mapping.Row, 0, len(in.Automated)+len(in.Manual)+len(in.Baseline))
	for _, rows := range [][]mapping.Row{in.Automated, in.Manual} {
		for _, row := range rows {
			if current.Add(row) {
				merged = append(merged, row)
			}
		}
	}
	stats.CurrentRows = current.Len()

	currentTraits := make(map[string]struct{})
	currentPairs := make(map[traitURI]struct{}, current.Len())
	for _, row := range current.Rows() {
		currentTraits[row.TraitName] = struct{}{}
		currentPairs[traitURI{row.TraitName, row.URI}] = struct{}{}
	}

	baseline := mapping.NewTable(in.Baseline...)
	orphans := make(map[string]struct{})
	for _, name := range baseline.TraitNames() {
		if _, ok := currentTraits[name]; !ok {
			orphans[name] = struct{}{}
			result.Orphans = append(result.Orphans, name)
		}
	}

	for _, row := range baseline.Rows() {
		if _, ok := orphans[row.TraitName]; ok {
			result.CarriedForward = append(result.CarriedForward, row)
			merged = append(merged, row)
			continue
		}
		if _, ok := currentPairs[traitURI{row.TraitName, row.URI}]; r.options.carry == CarryRows && !ok {
			result.Retained = append(result.Retained, row)
			merged = append(merged, row)
		}
	}

	if err := Verify("merge", merged); err != nil {
		logger.Error().Err(err).Msg("Merged table failed consistency check")
		return result, err
	}

	result.Merged = mapping.NewTable(merged...)
	result.MultiMapped = MultiMapped(result.Merged)

	stats.OrphanTraits = len(result.Orphans)
	stats.CarriedForward = len(result.CarriedForward)
	stats.Retained = len(result.Retained)
	stats.MergedRows = result.Merged.Len()
	stats.MergedTraits = len(result.Merged.TraitNames())
	stats.MultiMapped = len(result.MultiMapped)

	if len(result.MultiMapped) > 0 {
		traits := make([]string, 0, len(result.MultiMapped))
		for t := range result.MultiMapped {
			traits = append(traits, t)
		}
		slices.Sort(traits)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d trait(s) map to more than one ontology term and need review", len(traits)))
		logger.Warn().Strs("traits", traits).Msg("Traits mapped to multiple ontology terms")
	}

	logger.Info().
		Int("merged_rows", stats.MergedRows).
		Int("orphan_traits", stats.OrphanTraits).
		Int("carried_forward", stats.CarriedForward).
		Int("retained", stats.Retained).
		Msg("Reconciliation complete")
	return result, nil
}

func (r *Reconciler) checkInputDuplicates(ctx context.Context, result *Result, in Inputs) error {
	logger := logging.FromContext(ctx)
	sources := []struct {
		name string
		rows []mapping.Row
	}{
		{"automated", in.Automated},
		{"manual", in.Manual},
		{"baseline", in.Baseline},
	}
	for _, src := range sources {
		for _, d := range Groups(src.rows) {
			d.Source = src.name
			result.Duplicates = append(result.Duplicates, d)
			result.Metadata.Stats.DuplicateRows += d.Count - 1
		}
	}
	if len(result.Duplicates) == 0 {
		return nil
	}

	desc := make([]string, len(result.Duplicates))
	for i, d := range result.Duplicates {
		desc[i] = d.String()
		logger.Warn().
			Str("source", d.Source).
			Str("trait", d.Row.TraitName).
			Str("uri", d.Row.URI).
			Int("count", d.Count).
			Msg("Duplicate input row collapsed")
	}
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("%d input row(s) repeated; repeats collapsed", len(result.Duplicates)))

	if r.options.strictDuplicates {
		return &errors.ConsistencyError{
			Stage:      "input",
			Message:    "input tables contain repeated rows",
			Duplicates: desc,
		}
	}
	return nil
}
