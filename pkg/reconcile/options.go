package reconcile

import (
	"github.com/agentstation/clinmap/pkg/errors"
)

// CarryForward selects which baseline rows survive a reconciliation.
type CarryForward string

const (
	// CarryRows keeps every baseline row whose (trait, URI) pair current
	// evidence does not hold, so a new mapping for a known trait never
	// displaces the old one while a relabeled mapping replaces its old label.
	CarryRows CarryForward = "rows"
	// CarryOrphans keeps only the baseline rows of traits absent from
	// current evidence.
	CarryOrphans CarryForward = "orphans"
)

// ParseCarryForward validates a policy name; empty selects CarryRows.
func ParseCarryForward(s string) (CarryForward, error) {
	switch CarryForward(s) {
	case "", CarryRows:
		return CarryRows, nil
	case CarryOrphans:
		return CarryOrphans, nil
	default:
		return "", errors.NewValidationError("carry_forward", s, "must be one of: rows, orphans")
	}
}

type options struct {
	carry            CarryForward
	strictDuplicates bool
	dryRun           bool
}

func defaultOptions() *options {
	return &options{carry: CarryRows}
}

// Option is a function that configures a Reconciler.
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

// WithCarryForward sets the carry-forward policy.
func WithCarryForward(policy CarryForward) Option {
	return func(o *options) error {
		p, err := ParseCarryForward(string(policy))
		if err != nil {
			return err
		}
		o.carry = p
		return nil
	}
}

// WithStrictDuplicates turns repeated input rows into a consistency error
// instead of a warning.
func WithStrictDuplicates(strict bool) Option {
	return func(o *options) error {
		o.strictDuplicates = strict
		return nil
	}
}

// WithDryRun marks results as not to be persisted.
func WithDryRun(dryRun bool) Option {
	return func(o *options) error {
		o.dryRun = dryRun
		return nil
	}
}
