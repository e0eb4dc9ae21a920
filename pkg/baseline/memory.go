package baseline

import (
	"context"
	"sync"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// MemoryStore keeps the baseline in process. It is used for dry runs and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	location string
	data     []byte
	history  [][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(location string) *MemoryStore {
	return &MemoryStore{location: location}
}

// Location implements Store.
func (s *MemoryStore) Location() string { return s.location }

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) ([]mapping.Row, error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	if data == nil {
		return nil, errors.NewNotFoundError("baseline", s.location)
	}
	return decode(ctx, data, s.location, false)
}

// Replace implements Store.
func (s *MemoryStore) Replace(ctx context.Context, table *mapping.Table) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapPersistence("memory", s.location, err)
	}
	data, err := encode(table)
	if err != nil {
		return errors.WrapPersistence("memory", s.location, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		s.history = append(s.history, s.data)
	}
	s.data = data
	return nil
}

// Versions returns how many baselines were replaced.
func (s *MemoryStore) Versions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
