package consequence

import (
	"time"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
)

// Observer receives dispatch events. Calls arrive from worker goroutines.
type Observer interface {
	BatchDispatched()
	BatchRetried()
	BatchFailed()
	AnnotateDuration(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) BatchDispatched()               {}
func (nopObserver) BatchRetried()                  {}
func (nopObserver) BatchFailed()                   {}
func (nopObserver) AnnotateDuration(time.Duration) {}

type options struct {
	batchSize    int
	workers      int
	retries      int
	batchTimeout time.Duration
	backoff      time.Duration
	maxBackoff   time.Duration
	observer     Observer
}

func defaultOptions() *options {
	return &options{
		batchSize:    constants.DefaultBatchSize,
		workers:      constants.DefaultWorkers,
		retries:      constants.DefaultRetries,
		batchTimeout: constants.DefaultBatchTimeout,
		backoff:      constants.RetryBackoff,
		maxBackoff:   constants.MaxRetryBackoff,
		observer:     nopObserver{},
	}
}

// Option is a function that configures a Mapper.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithBatchSize sets the number of keys per annotator invocation.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxBatchSize {
			return errors.NewValidationError("batch_size", n, "must be between 1 and 100000")
		}
		o.batchSize = n
		return nil
	}
}

// WithWorkers sets the maximum number of batches in flight.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 || n > constants.MaxWorkers {
			return errors.NewValidationError("workers", n, "must be between 1 and 512")
		}
		o.workers = n
		return nil
	}
}

// WithRetries sets how many times a failed batch is re-dispatched.
// Zero disables retries.
func WithRetries(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.NewValidationError("retries", n, "cannot be negative")
		}
		o.retries = n
		return nil
	}
}

// WithBatchTimeout bounds each annotator attempt.
func WithBatchTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("batch_timeout", d, "must be positive")
		}
		o.batchTimeout = d
		return nil
	}
}

// WithBackoff sets the first retry delay and its cap. The delay doubles
// after every failed attempt.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(o *options) error {
		if initial < 0 || maxDelay < initial {
			return errors.NewValidationError("backoff", initial, "must be non-negative and not exceed the cap")
		}
		o.backoff = initial
		o.maxBackoff = maxDelay
		return nil
	}
}

// WithObserver reports dispatch events to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) error {
		if obs == nil {
			return errors.NewValidationError("observer", nil, "cannot be nil")
		}
		o.observer = obs
		return nil
	}
}
