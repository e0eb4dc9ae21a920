package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/clinmap/internal/cmd/output"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
)

// NewHistoryCommand creates the history command.
func (a *App) NewHistoryCommand() *cobra.Command {
	var opts ledger.ListOptions
	cmd := &cobra.Command{
		Use:     "history [run-id]",
		GroupID: "management",
		Short:   "List recorded pipeline runs",
		Long: `History lists runs recorded in the ledger, newest first. Pass a run ID
to show a single run. Requires --ledger or the ledger config key.`,
		Example: `  clinmap history --ledger runs.db --pipeline reconcile --limit 5
  clinmap history --ledger runs.db 3b241101-e2bb-4255-8caf-4136c566a962 -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.Ledger(cmd.Context())
			if err != nil {
				return err
			}
			if l == nil {
				return errors.NewConfigError("ledger", "no ledger configured; set --ledger or CLINMAP_LEDGER", nil)
			}

			var runs []ledger.Run
			if len(args) == 1 {
				run, err := l.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				runs = []ledger.Run{run}
			} else {
				runs, err = l.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
			}
			return output.FormatRuns(cmd.OutOrStdout(), runs, a.outputFormat())
		},
	}
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "only runs of this pipeline: consequences or reconcile")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status: succeeded, failed or dry-run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	return cmd
}
