// Package pipeline runs the clinmap pipelines end to end: load inputs,
// compute, write outputs atomically, then record the run in the ledger,
// metrics textfile and report.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/differ"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/ledger"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/metrics"
	"github.com/agentstation/clinmap/pkg/report"
	"github.com/agentstation/clinmap/pkg/save"
)

// Pipeline names used in logs, the ledger and metrics.
const (
	NameConsequences = "consequences"
	NameReconcile    = "reconcile"
)

// Stdio is the path that selects stdin or stdout.
const Stdio = "-"

// Env carries the run bookkeeping shared by both pipelines. Every field is
// optional.
type Env struct {
	Ledger      *ledger.Ledger
	Metrics     *metrics.Recorder
	MetricsFile string
	ReportFile  string
	Settings    map[string]any
	Stdin       io.Reader
	Stdout      io.Writer
	Now         func() time.Time
}

func (e *Env) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) stdin() io.Reader {
	if e != nil && e.Stdin != nil {
		return e.Stdin
	}
	return os.Stdin
}

func (e *Env) stdout() io.Writer {
	if e != nil && e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

// run tracks one pipeline execution.
type run struct {
	env     *Env
	report  *report.Report
	ledger  ledger.Run
	changes *differ.Changeset
}

func (e *Env) begin(ctx context.Context, name string) (context.Context, *run) {
	id := uuid.NewString()
	started := e.now()
	ctx = logging.WithRun(ctx, id)
	ctx = logging.WithField(ctx, "pipeline", name)

	r := &run{
		env: e,
		report: &report.Report{
			RunID:     id,
			Pipeline:  name,
			StartedAt: started,
			Outputs:   map[string]string{},
		},
		ledger: ledger.Run{ID: id, Pipeline: name, StartedAt: started},
	}
	if e != nil {
		r.report.Settings = e.Settings
	}
	logging.FromContext(ctx).Info().Msg("Run started")
	return ctx, r
}

func (r *run) output(kind, path string) {
	if path != "" {
		r.report.Outputs[kind] = path
	}
}

// finish records the outcome everywhere it is configured. Bookkeeping
// failures are logged and returned only when the run itself succeeded.
func (r *run) finish(ctx context.Context, status string, runErr error) error {
	logger := logging.FromContext(ctx)
	finished := r.env.now()
	if runErr != nil {
		status = ledger.StatusFailed
		r.report.Error = runErr.Error()
		r.ledger.Error = runErr.Error()
	}
	r.report.Status = status
	r.report.Duration = finished.Sub(r.report.StartedAt).Round(time.Millisecond).String()
	r.ledger.Status = status
	r.ledger.FinishedAt = finished
	r.ledger.Duration = finished.Sub(r.ledger.StartedAt)

	var aux []error
	env := r.env
	if env != nil && env.Ledger != nil {
		// the signal context may already be canceled
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.LedgerTimeout)
		if err := env.Ledger.Record(lctx, r.ledger); err != nil {
			aux = append(aux, errors.WrapStage("record run", "ledger", err))
		}
		cancel()
	}
	if env != nil && env.Metrics != nil {
		env.Metrics.RunFinished(r.ledger.Pipeline, r.ledger.StartedAt, runErr)
		if env.MetricsFile != "" {
			if err := env.Metrics.WriteTextfile(env.MetricsFile); err != nil {
				aux = append(aux, errors.WrapStage("write metrics", env.MetricsFile, err))
			}
		}
	}
	if env != nil && env.ReportFile != "" {
		if err := report.WriteFile(env.ReportFile, r.report); err != nil {
			aux = append(aux, errors.WrapStage("write report", env.ReportFile, err))
		}
	}
	for _, err := range aux {
		logger.Error().Err(err).Msg("Run bookkeeping failed")
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.Str("status", status).Str("duration", r.report.Duration).Msg("Run finished")

	if runErr != nil {
		return runErr
	}
	if len(aux) > 0 {
		return aux[0]
	}
	return nil
}

// Report returns the report assembled for the run.
func (r *run) Report() *report.Report { return r.report }

// writeOutput writes to stdout for "-" and atomically to a file otherwise.
func writeOutput(env *Env, path string, write func(io.Writer) error) error {
	if path == Stdio {
		return write(env.stdout())
	}
	return save.File(path, write)
}

// openInput opens path, or stdin for "-".
func openInput(env *Env, path string) (io.ReadCloser, error) {
	if path == Stdio {
		return io.NopCloser(env.stdin()), nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("input", path)
		}
		return nil, errors.WrapIO("open", path, err)
	}
	return f, nil
}
