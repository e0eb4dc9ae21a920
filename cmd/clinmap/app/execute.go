package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentstation/clinmap/internal/cmd/output"
)

// configKeyAnnotation marks a flag with the config key it overrides.
const configKeyAnnotation = "clinmap_config_key"

// Execute runs the clinmap CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "clinmap",
		Short:   "Trait mapping reconciliation and variant consequence mapping",
		Version: a.version,
		Long: `clinmap maintains the trait-to-ontology mapping table and the variant
consequence table of a clinical evidence pipeline.

The reconcile command merges freshly derived mappings with curated ones and
carries forward the previous release so no mapping is ever silently lost.
The consequences command annotates variants in parallel batches through an
external annotator and fails closed when any batch cannot be annotated.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Pipeline Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "management", Title: "Management Commands:"})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default is ./.clinmap.yaml or $HOME/.clinmap.yaml)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")
	pf.StringVarP(&a.flags.format, "format", "o", "", "output format: table, json, yaml, wide")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	pf.String("ledger", "", "run ledger DSN: a sqlite path, sqlite://path or postgres://...")
	pf.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	pf.String("report", "", "write a run report to this path (.json or .yaml)")
	bindFlag(pf, "ledger", "ledger")
	bindFlag(pf, "metrics-file", "metrics_file")
	bindFlag(pf, "report", "report")

	if a.out != nil {
		rootCmd.SetOut(a.out)
	}
	rootCmd.SetVersionTemplate("clinmap {{.Version}}\n")

	a.registerCommands(rootCmd)
	return rootCmd
}

// setupCommand is called before any command runs. It binds the flags of
// cmd to their config keys, reloads configuration and rebuilds the logger.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && len(keys) == 1 && bindErr == nil {
			bindErr = a.viper.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	config, err := LoadConfig(a.viper, a.flags.configFile)
	if err != nil {
		return err
	}
	config.UpdateFromFlags(a.flags.verbose, a.flags.quiet, a.flags.noColor, a.flags.format, a.flags.logLevel)
	if _, err := output.ParseFormat(config.Format); err != nil {
		return err
	}
	a.config = config

	logger, err := NewLogger(a.config)
	if err != nil {
		return err
	}
	a.logger = &logger
	a.logger.Debug().Str("config_file", config.ConfigFile).Msg("Configuration loaded")
	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Pipeline commands
	rootCmd.AddCommand(a.NewConsequencesCommand())
	rootCmd.AddCommand(a.NewReconcileCommand())

	// Management commands
	rootCmd.AddCommand(a.NewVerifyCommand())
	rootCmd.AddCommand(a.NewDiffCommand())
	rootCmd.AddCommand(a.NewHistoryCommand())

	// Utility commands
	rootCmd.AddCommand(a.NewVersionCommand())
}

// bindFlag records the config key a flag overrides.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic("programming error: failed to annotate flag " + name + ": " + err.Error())
	}
}

// outputFormat returns the output format, detecting one when unset.
func (a *App) outputFormat() output.Format {
	return output.DetectFormat(a.config.Format)
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // Ignoring write error since we're exiting anyway
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
