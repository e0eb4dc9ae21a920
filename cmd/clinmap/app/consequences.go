package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/clinmap/internal/cmd/output"
	"github.com/agentstation/clinmap/internal/pipeline"
	"github.com/agentstation/clinmap/pkg/constants"
)

// NewConsequencesCommand creates the consequences command.
func (a *App) NewConsequencesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "consequences",
		GroupID: "core",
		Short:   "Annotate variants with their functional consequences",
		Long: `Consequences reads variants, deduplicates them, and annotates them in
parallel batches through an external annotator command or a precomputed
lookup table. Each output line is KEY<TAB>term,term with keys sorted.

If any batch fails after all retries, no table is written. The keys of the
failed batches are written to --failed so they can be re-run.`,
		Example: `  clinmap consequences --input variants.vcf --input-format vcf \
    --annotator ./annotate.sh --output consequences.tsv --failed failed.txt

  clinmap consequences -i keys.txt --lookup precomputed.tsv --output -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.config.Consequences
			env, err := a.env(cmd.Context(), map[string]any{
				"input":         cfg.Input,
				"input_format":  string(cfg.InputFormat),
				"annotator":     cfg.Annotator,
				"lookup":        cfg.Lookup,
				"batch_size":    cfg.BatchSize,
				"workers":       cfg.Workers,
				"retries":       cfg.Retries,
				"batch_timeout": cfg.BatchTimeout.String(),
			})
			if err != nil {
				return err
			}
			env.Stdout = cmd.OutOrStdout()
			env.Stdin = cmd.InOrStdin()

			result, rep, runErr := pipeline.RunConsequences(cmd.Context(), cfg, env)
			if cfg.Output != pipeline.Stdio && cfg.FailedOutput != pipeline.Stdio && cfg.UnresolvedOutput != pipeline.Stdio {
				if err := output.FormatConsequences(cmd.OutOrStdout(), result, rep, a.outputFormat()); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to print summary")
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", `variant input file, or "-" for stdin`)
	f.String("input-format", "key", "input format: key (CHROM:POS:REF:ALT per line) or vcf")
	f.String("output", "", `consequence table path, or "-" for stdout`)
	f.String("failed", "", "write the keys of failed batches to this path")
	f.String("unresolved", "", "write keys the annotator could not resolve to this path")
	f.Bool("tolerant", false, "skip malformed input records instead of failing")
	f.String("annotator", "", "annotator command; reads keys on stdin, writes KEY<TAB>terms on stdout")
	f.StringArray("annotator-arg", nil, "argument passed to the annotator command (repeatable)")
	f.String("lookup", "", "answer from a precomputed KEY<TAB>terms table instead of a command")
	f.Int("batch-size", constants.DefaultBatchSize, "variants per annotator invocation")
	f.Int("workers", constants.DefaultWorkers, "batches annotated concurrently")
	f.Int("retries", constants.DefaultRetries, "retries per batch after the first attempt")
	f.Duration("batch-timeout", constants.DefaultBatchTimeout, "time limit for one annotator invocation")

	bindFlag(f, "input", "consequences.input")
	bindFlag(f, "input-format", "consequences.input_format")
	bindFlag(f, "output", "consequences.output")
	bindFlag(f, "failed", "consequences.failed")
	bindFlag(f, "unresolved", "consequences.unresolved")
	bindFlag(f, "tolerant", "consequences.tolerant")
	bindFlag(f, "annotator", "consequences.annotator")
	bindFlag(f, "annotator-arg", "consequences.annotator_args")
	bindFlag(f, "lookup", "consequences.lookup")
	bindFlag(f, "batch-size", "consequences.batch_size")
	bindFlag(f, "workers", "consequences.workers")
	bindFlag(f, "retries", "consequences.retries")
	bindFlag(f, "batch-timeout", "consequences.batch_timeout")

	return cmd
}
