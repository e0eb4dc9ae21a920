// Package baseline persists the canonical mapping table between
// reconciliation runs.
//
// A Store loads the previous baseline and replaces it with the successor.
// Replace is all-or-nothing: after a failed Replace the previous baseline
// is still intact and readable.
package baseline

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/agentstation/clinmap/pkg/constants"
	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// Store is a persisted baseline.
type Store interface {
	// Load returns the baseline rows as stored. A missing baseline is
	// reported with an error satisfying errors.IsNotFound.
	Load(ctx context.Context) ([]mapping.Row, error)
	// Replace atomically installs table as the new baseline.
	Replace(ctx context.Context, table *mapping.Table) error
	// Location describes where the baseline lives.
	Location() string
}

// Options configures Open.
type Options struct {
	// History keeps a copy of every replaced baseline: a directory for
	// filesystem stores, a key prefix for S3 stores.
	History string
	// Tolerant skips malformed baseline rows on Load.
	Tolerant bool
	// S3 overrides connection settings for s3:// locations.
	S3 S3Config
}

// Open returns the store for location: s3://bucket/key, mem://name, or a
// filesystem path.
func Open(ctx context.Context, location string, opts Options) (Store, error) {
	switch {
	case location == "":
		return nil, errors.NewValidationError("baseline", location, "location is required")
	case strings.HasPrefix(location, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, errors.NewValidationError("baseline", location, "expected s3://bucket/key")
		}
		cfg := opts.S3
		cfg.Bucket = bucket
		return NewS3Store(ctx, cfg, key, opts)
	case strings.HasPrefix(location, "mem://"):
		return NewMemoryStore(location), nil
	default:
		return NewFSStore(strings.TrimPrefix(location, "file://"), opts), nil
	}
}

// LoadOrEmpty loads the baseline, treating a missing one as empty when
// allowMissing is set.
func LoadOrEmpty(ctx context.Context, s Store, allowMissing bool) ([]mapping.Row, error) {
	rows, err := s.Load(ctx)
	if err != nil && errors.IsNotFound(err) && allowMissing {
		logging.FromContext(ctx).Warn().
			Str("baseline", s.Location()).
			Msg("No baseline found; starting from an empty one")
		return []mapping.Row{}, nil
	}
	return rows, err
}

func encode(table *mapping.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := mapping.Write(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(ctx context.Context, data []byte, location string, tolerant bool) ([]mapping.Row, error) {
	rows, _, err := mapping.ReadRows(ctx, bytes.NewReader(data), mapping.ReadOptions{
		MinColumns: 2,
		Tolerant:   tolerant,
		Name:       location,
	})
	return rows, errors.WithFile(err, location)
}

// historyName names an archived baseline after the run that replaced it.
func historyName(ctx context.Context, base string) string {
	stamp := time.Now().UTC().Format(constants.TimeFormatFilename)
	if id := logging.RunID(ctx); id != "" {
		stamp += "-" + id
	}
	ext := ".tsv"
	if i := strings.LastIndex(base, "."); i > 0 {
		base, ext = base[:i], base[i:]
	}
	return base + "." + stamp + ext
}
