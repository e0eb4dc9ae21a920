package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/clinmap/internal/cmd/output"
	"github.com/agentstation/clinmap/internal/pipeline"
)

// NewDiffCommand creates the diff command.
func (a *App) NewDiffCommand() *cobra.Command {
	var ignoreLabels bool
	cmd := &cobra.Command{
		Use:     "diff <existing> <updated>",
		GroupID: "management",
		Short:   "Show mapping changes between two tables",
		Long: `Diff compares two mapping tables, typically an archived baseline and the
current one, and lists the rows and traits that were added, removed or
remapped.`,
		Example: `  clinmap diff state/history/mappings.20240301-090500.tsv state/mappings.tsv
  clinmap diff old.tsv new.tsv --ignore-labels -o yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := pipeline.DiffTables(cmd.Context(), args[0], args[1], ignoreLabels)
			if err != nil {
				return err
			}
			return output.FormatChanges(cmd.OutOrStdout(), changes, a.outputFormat())
		},
	}
	cmd.Flags().BoolVar(&ignoreLabels, "ignore-labels", false, "compare by trait and URI only")
	return cmd
}
