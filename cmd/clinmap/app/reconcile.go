package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/clinmap/internal/cmd/output"
	"github.com/agentstation/clinmap/internal/pipeline"
	"github.com/agentstation/clinmap/pkg/constants"
)

// NewReconcileCommand creates the reconcile command.
func (a *App) NewReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		GroupID: "core",
		Short:   "Merge current trait mappings with the persisted baseline",
		Long: `Reconcile unions the automated and manual mapping tables into the current
evidence, carries forward baseline mappings the current evidence does not
cover, and replaces the baseline with the merged table.

Carry-forward policies:
  rows     keep every baseline row the current evidence does not hold (default)
  orphans  keep only the rows of traits absent from the current evidence

The baseline may be a local path or an s3://bucket/key location. With
--dry-run every output is written except the baseline.`,
		Example: `  clinmap reconcile --automated automated.tsv --manual manual.tsv \
    --baseline state/mappings.tsv --history state/history \
    --output merged.tsv --feedback feedback.tsv

  clinmap reconcile --automated automated.tsv --baseline s3://evidence/mappings.tsv --dry-run -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.config.Reconcile
			env, err := a.env(cmd.Context(), map[string]any{
				"automated":              cfg.Automated,
				"manual":                 cfg.Manual,
				"baseline":               cfg.Baseline,
				"carry_forward":          string(cfg.CarryForward),
				"allow_missing_baseline": cfg.AllowMissingBaseline,
				"strict_duplicates":      cfg.StrictDuplicates,
				"dry_run":                cfg.DryRun,
			})
			if err != nil {
				return err
			}
			env.Stdout = cmd.OutOrStdout()

			result, rep, runErr := pipeline.RunReconcile(cmd.Context(), cfg, env)
			if cfg.Output != pipeline.Stdio && cfg.Feedback != pipeline.Stdio {
				if err := output.FormatReconcile(cmd.OutOrStdout(), result, rep, a.outputFormat()); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to print summary")
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.String("automated", "", "automatically derived mapping table")
	f.String("manual", "", "curated mapping table")
	f.String("baseline", "", "persisted baseline: a path or s3://bucket/key")
	f.String("history", "", "keep replaced baselines under this directory or key prefix")
	f.String("output", "", `also write the merged table here, or "-" for stdout`)
	f.String("feedback", "", "write the curation feedback export to this path")
	f.String("carry-forward", "rows", "carry-forward policy: rows or orphans")
	f.Bool("allow-missing-baseline", false, "treat a missing baseline as empty (first run)")
	f.Bool("strict-duplicates", false, "fail on rows repeated within an input table")
	f.Bool("dry-run", false, "write outputs but leave the baseline unchanged")
	f.Bool("tolerant", false, "skip malformed rows instead of failing")
	f.String("feedback-property-type", constants.FeedbackPropertyType, "PROPERTY_TYPE column of the feedback export")
	f.String("feedback-annotator", constants.FeedbackAnnotator, "ANNOTATOR column of the feedback export")

	bindFlag(f, "automated", "reconcile.automated")
	bindFlag(f, "manual", "reconcile.manual")
	bindFlag(f, "baseline", "reconcile.baseline")
	bindFlag(f, "history", "reconcile.history")
	bindFlag(f, "output", "reconcile.output")
	bindFlag(f, "feedback", "reconcile.feedback")
	bindFlag(f, "carry-forward", "reconcile.carry_forward")
	bindFlag(f, "allow-missing-baseline", "reconcile.allow_missing_baseline")
	bindFlag(f, "strict-duplicates", "reconcile.strict_duplicates")
	bindFlag(f, "dry-run", "reconcile.dry_run")
	bindFlag(f, "tolerant", "reconcile.tolerant")
	bindFlag(f, "feedback-property-type", "reconcile.feedback_property_type")
	bindFlag(f, "feedback-annotator", "reconcile.feedback_annotator")

	return cmd
}
