package baseline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/mapping"
	"github.com/agentstation/clinmap/pkg/save"
)

// FSStore keeps the baseline in a local file.
type FSStore struct {
	path       string
	historyDir string
	tolerant   bool
}

// NewFSStore returns a store for the file at path.
func NewFSStore(path string, opts Options) *FSStore {
	return &FSStore{path: path, historyDir: opts.History, tolerant: opts.Tolerant}
}

// Location implements Store.
func (s *FSStore) Location() string { return s.path }

// Load implements Store.
func (s *FSStore) Load(ctx context.Context) ([]mapping.Row, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("baseline", s.path)
		}
		return nil, errors.WrapIO("read", s.path, err)
	}
	return decode(ctx, data, s.path, s.tolerant)
}

// Replace implements Store. The previous file, when history is enabled, is
// copied aside before the rename.
func (s *FSStore) Replace(ctx context.Context, table *mapping.Table) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapPersistence("fs", s.path, err)
	}
	data, err := encode(table)
	if err != nil {
		return errors.WrapPersistence("fs", s.path, err)
	}

	if s.historyDir != "" {
		if err := s.archive(ctx); err != nil {
			return errors.WrapPersistence("fs", s.path, err)
		}
	}
	if err := save.Bytes(s.path, data); err != nil {
		return errors.WrapPersistence("fs", s.path, err)
	}

	logging.FromContext(ctx).Info().
		Str("baseline", s.path).
		Int("rows", table.Len()).
		Msg("Baseline replaced")
	return nil
}

func (s *FSStore) archive(ctx context.Context) error {
	prev, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapIO("read", s.path, err)
	}
	dest := filepath.Join(s.historyDir, historyName(ctx, filepath.Base(s.path)))
	if err := save.Bytes(dest, prev); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug().Str("history", dest).Msg("Archived previous baseline")
	return nil
}
