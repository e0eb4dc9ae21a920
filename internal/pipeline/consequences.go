package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/agentstation/clinmap/pkg/consequence"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/report"
	"github.com/agentstation/clinmap/pkg/variant"
)

// ConsequencesConfig configures RunConsequences.
type ConsequencesConfig struct {
	// Input is the variant file, or "-" for stdin.
	Input       string
	InputFormat variant.Format
	// Output receives the consequence table, or "-" for stdout.
	Output string
	// FailedOutput receives the keys of failed batches.
	FailedOutput string
	// UnresolvedOutput receives keys the annotator could not resolve.
	UnresolvedOutput string
	Tolerant         bool

	// Annotator is the external annotator command and its arguments.
	Annotator []string
	// AnnotatorEnv is appended to the annotator's environment.
	AnnotatorEnv []string
	// Lookup answers from a precomputed consequence table instead of a command.
	Lookup string

	// Zero BatchSize, Workers and BatchTimeout take the mapper defaults.
	// Retries is used as given.
	BatchSize    int
	Workers      int
	Retries      int
	BatchTimeout time.Duration
}

// Validate checks the settings that no later stage checks.
func (c *ConsequencesConfig) Validate() error {
	if c.Input == "" {
		return errors.NewValidationError("input", c.Input, "a variant input is required")
	}
	if c.Output == "" {
		return errors.NewValidationError("output", c.Output, "an output path is required")
	}
	switch {
	case len(c.Annotator) == 0 && c.Lookup == "":
		return errors.NewValidationError("annotator", nil, "set either an annotator command or a lookup table")
	case len(c.Annotator) > 0 && c.Lookup != "":
		return errors.NewValidationError("annotator", c.Annotator, "annotator command and lookup table are mutually exclusive")
	}
	return nil
}

func (c *ConsequencesConfig) options(env *Env) []consequence.Option {
	var opts []consequence.Option
	if c.BatchSize != 0 {
		opts = append(opts, consequence.WithBatchSize(c.BatchSize))
	}
	if c.Workers != 0 {
		opts = append(opts, consequence.WithWorkers(c.Workers))
	}
	opts = append(opts, consequence.WithRetries(c.Retries))
	if c.BatchTimeout != 0 {
		opts = append(opts, consequence.WithBatchTimeout(c.BatchTimeout))
	}
	if env != nil && env.Metrics != nil {
		opts = append(opts, consequence.WithObserver(env.Metrics))
	}
	return opts
}

// RunConsequences maps every variant in the input to its consequence terms
// and writes the table. When any batch fails the table is not written; the
// failed keys go to FailedOutput instead and the run returns an error
// satisfying errors.IsBatchFailure.
func RunConsequences(ctx context.Context, cfg ConsequencesConfig, env *Env) (*consequence.Result, *report.Report, error) {
	if env == nil {
		env = &Env{}
	}
	ctx, r := env.begin(ctx, NameConsequences)
	result, err := runConsequences(ctx, cfg, env, r)
	if result != nil {
		r.report.Consequences = report.SummarizeConsequences(result)
		r.ledger.Inputs = result.Metadata.Stats.Variants
		r.ledger.Outputs = len(result.Records)
		r.ledger.Failures = len(result.Failed)
		if env.Metrics != nil {
			env.Metrics.ObserveConsequences(result)
		}
	}
	return result, r.Report(), r.finish(ctx, ledger.StatusSucceeded, err)
}

func runConsequences(ctx context.Context, cfg ConsequencesConfig, env *Env, r *run) (*consequence.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys, err := loadKeys(logging.WithStage(ctx, "load variants"), cfg, env)
	if err != nil {
		return nil, errors.WrapStage("load variants", cfg.Input, err)
	}

	annotator, err := buildAnnotator(ctx, cfg)
	if err != nil {
		return nil, errors.WrapStage("load annotator", cfg.Lookup, err)
	}

	mapper, err := consequence.NewMapper(annotator, cfg.options(env)...)
	if err != nil {
		return nil, err
	}

	result, runErr := mapper.Run(logging.WithStage(ctx, "annotate"), keys)
	if runErr != nil {
		if len(result.Failed) > 0 && cfg.FailedOutput != "" {
			err := writeOutput(env, cfg.FailedOutput, func(w io.Writer) error {
				return consequence.WriteFailedBatches(w, result.Failed)
			})
			if err != nil {
				logging.FromContext(ctx).Error().Err(err).Str("path", cfg.FailedOutput).
					Msg("Failed to write failed batches")
			} else {
				r.output("failed", cfg.FailedOutput)
			}
		}
		return result, errors.WrapStage("annotate", "", runErr)
	}

	if err := writeOutput(env, cfg.Output, func(w io.Writer) error {
		return consequence.WriteTable(w, result.Records)
	}); err != nil {
		return result, errors.WrapStage("write consequences", cfg.Output, err)
	}
	r.output("consequences", cfg.Output)

	if cfg.UnresolvedOutput != "" {
		if err := writeOutput(env, cfg.UnresolvedOutput, func(w io.Writer) error {
			return writeKeys(w, result.Unresolved)
		}); err != nil {
			return result, errors.WrapStage("write unresolved", cfg.UnresolvedOutput, err)
		}
		r.output("unresolved", cfg.UnresolvedOutput)
	}

	logging.FromContext(ctx).Info().
		Int("variants", result.Metadata.Stats.Variants).
		Int("annotated", result.Metadata.Stats.Annotated).
		Int("unresolved", result.Metadata.Stats.Unresolved).
		Msg(result.Summary())
	return result, nil
}

func loadKeys(ctx context.Context, cfg ConsequencesConfig, env *Env) ([]variant.Key, error) {
	in, err := openInput(env, cfg.Input)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()

	set, stats, err := variant.ReadKeys(ctx, in, variant.ReadOptions{
		Format:   cfg.InputFormat,
		Tolerant: cfg.Tolerant,
	})
	if err != nil {
		return nil, errors.WithFile(err, cfg.Input)
	}
	logging.FromContext(ctx).Debug().
		Int("lines", stats.Lines).
		Int("records", stats.Records).
		Int("skipped", stats.Skipped).
		Int("distinct", set.Len()).
		Msg("Read variants")
	return set.Sorted(), nil
}

func buildAnnotator(ctx context.Context, cfg ConsequencesConfig) (consequence.Annotator, error) {
	if cfg.Lookup != "" {
		a, err := consequence.LoadLookupFile(ctx, cfg.Lookup)
		if err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Debug().Int("keys", a.Len()).Str("path", cfg.Lookup).Msg("Loaded lookup annotator")
		return a, nil
	}
	a := consequence.NewCommandAnnotator(cfg.Annotator[0], cfg.Annotator[1:]...)
	a.Env = cfg.AnnotatorEnv
	return a, nil
}

func writeKeys(w io.Writer, keys []variant.Key) error {
	for _, k := range keys {
		if _, err := fmt.Fprintln(w, k.String()); err != nil {
			return err
		}
	}
	return nil
}
