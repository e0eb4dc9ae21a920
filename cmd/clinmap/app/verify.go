package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/clinmap/internal/cmd/output"
	"github.com/agentstation/clinmap/internal/pipeline"
)

// NewVerifyCommand creates the verify command.
func (a *App) NewVerifyCommand() *cobra.Command {
	var tolerant bool
	cmd := &cobra.Command{
		Use:     "verify <table>",
		GroupID: "management",
		Short:   "Check a mapping table for duplicate rows",
		Long: `Verify reads a mapping table such as a persisted baseline and fails when
any (trait, URI, label) row occurs more than once. Traits mapped to more
than one URI are reported but are not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.VerifyTable(cmd.Context(), args[0], tolerant)
			if res != nil {
				if ferr := output.FormatVerify(cmd.OutOrStdout(), res, a.outputFormat()); ferr != nil {
					a.logger.Warn().Err(ferr).Msg("Failed to print summary")
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&tolerant, "tolerant", false, "skip malformed rows instead of failing")
	return cmd
}
