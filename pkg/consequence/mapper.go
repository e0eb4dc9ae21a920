package consequence

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/variant"
)

// Mapper dispatches key batches to an Annotator over a bounded pool.
type Mapper struct {
	annotator Annotator
	options   *options
}

// NewMapper creates a mapper for annotator.
func NewMapper(annotator Annotator, opts ...Option) (*Mapper, error) {
	if annotator == nil {
		return nil, errors.NewValidationError("annotator", nil, "cannot be nil")
	}
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Mapper{annotator: annotator, options: o}, nil
}

// batchOutcome is written only by the worker that owns the batch.
type batchOutcome struct {
	lines    []Line
	attempts int
	err      error
}

// Run deduplicates keys, dispatches them in batches and aggregates the
// answers once every batch has finished. When any batch exhausts its
// retries the returned error joins one *errors.BatchError per failed batch;
// the result still reports what succeeded and what failed.
func (m *Mapper) Run(ctx context.Context, keys []variant.Key) (*Result, error) {
	logger := logging.FromContext(ctx)
	result := newResult(m.options)
	defer result.Finalize()

	sorted := variant.NewSet(keys...).Sorted()
	batches := variant.Partition(sorted, m.options.batchSize)
	result.Metadata.Stats.InputKeys = len(keys)
	result.Metadata.Stats.Variants = len(sorted)
	result.Metadata.Stats.Batches = len(batches)

	logger.Info().
		Int("variants", len(sorted)).
		Int("batches", len(batches)).
		Int("batch_size", m.options.batchSize).
		Int("workers", m.options.workers).
		Msg("Dispatching annotator batches")

	outcomes := make([]batchOutcome, len(batches))
	var g errgroup.Group
	g.SetLimit(m.options.workers)
	for i, batch := range batches {
		g.Go(func() error {
			outcomes[i] = m.dispatch(ctx, i, batch)
			return nil
		})
	}
	_ = g.Wait()

	errs := m.aggregate(result, batches, outcomes)
	if len(errs) > 0 {
		logger.Error().
			Int("failed_batches", len(errs)).
			Int("dropped_variants", result.Metadata.Stats.Dropped).
			Msg("Annotator batches exhausted retries")
		return result, stderrors.Join(errs...)
	}

	logger.Info().
		Int("annotated", result.Metadata.Stats.Annotated).
		Int("unresolved", result.Metadata.Stats.Unresolved).
		Msg("Consequence mapping complete")
	return result, nil
}

// aggregate merges successful outcomes in batch order. Batches partition the
// sorted keys, so walking them in order yields records in canonical order.
func (m *Mapper) aggregate(result *Result, batches [][]variant.Key, outcomes []batchOutcome) []error {
	var errs []error
	stats := &result.Metadata.Stats
	for i, o := range outcomes {
		stats.Attempts += o.attempts
		if o.attempts > 1 {
			stats.Retries += o.attempts - 1
		}
		if o.err != nil {
			be := &errors.BatchError{
				Index:    i,
				Attempts: o.attempts,
				Keys:     variant.Strings(batches[i]),
				Err:      o.err,
			}
			result.Failed = append(result.Failed, be)
			errs = append(errs, be)
			stats.BatchesFailed++
			stats.Dropped += len(batches[i])
			m.options.observer.BatchFailed()
			continue
		}

		terms := make(map[variant.Key][]string, len(batches[i]))
		for _, l := range o.lines {
			if !l.Unresolved {
				terms[l.Key] = append(terms[l.Key], l.Terms...)
			}
		}
		for _, k := range batches[i] {
			t := terms[k]
			if len(t) == 0 {
				result.Unresolved = append(result.Unresolved, k)
				continue
			}
			slices.Sort(t)
			result.Records = append(result.Records, Record{Key: k, Terms: slices.Compact(t)})
		}
	}
	stats.Annotated = len(result.Records)
	stats.Unresolved = len(result.Unresolved)
	return errs
}

// dispatch runs one batch until it succeeds or its retries are spent.
func (m *Mapper) dispatch(ctx context.Context, index int, batch []variant.Key) batchOutcome {
	ctx = logging.WithBatch(ctx, index)
	logger := logging.FromContext(ctx)
	delay := m.options.backoff

	var out batchOutcome
	for attempt := 0; attempt <= m.options.retries; attempt++ {
		if attempt > 0 {
			m.options.observer.BatchRetried()
			logger.Warn().
				Err(out.err).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Retrying annotator batch")
			if !sleep(ctx, delay) {
				break
			}
			delay = min(delay*2, m.options.maxBackoff)
		}
		if ctx.Err() != nil {
			break
		}

		out.attempts++
		m.options.observer.BatchDispatched()
		lines, err := m.attempt(ctx, batch)
		if err == nil {
			logger.Debug().Int("keys", len(batch)).Int("attempts", out.attempts).Msg("Batch annotated")
			return batchOutcome{lines: lines, attempts: out.attempts}
		}
		out.err = err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.err = fmt.Errorf("%w: %w", errors.ErrCanceled, ctxErr)
	}
	return out
}

// attempt runs the annotator once under the per-batch timeout and checks
// that the answer covers exactly the batch.
func (m *Mapper) attempt(ctx context.Context, batch []variant.Key) ([]Line, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.options.batchTimeout)
	defer cancel()

	start := time.Now()
	lines, err := m.annotator.Annotate(attemptCtx, batch)
	m.options.observer.AnnotateDuration(time.Since(start))
	if err != nil {
		if ctx.Err() == nil && stderrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTimeoutError("annotate", m.options.batchTimeout.String(), err.Error())
		}
		return nil, err
	}
	if err := checkAnswers(batch, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// checkAnswers rejects output that names a key outside the batch or leaves
// a batch key unanswered.
func checkAnswers(batch []variant.Key, lines []Line) error {
	want := variant.NewSet(batch...)
	seen := variant.NewSet()
	for _, l := range lines {
		if !want.Has(l.Key) {
			return fmt.Errorf("%w: annotator answered key %s which is not in the batch", errors.ErrInvalidInput, l.Key)
		}
		seen.Add(l.Key)
	}
	if seen.Len() != want.Len() {
		for _, k := range batch {
			if !seen.Has(k) {
				return fmt.Errorf("%w: annotator did not answer %d key(s), first %s",
					errors.ErrInvalidInput, want.Len()-seen.Len(), k)
			}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
