package store

import (
	"context"
	"fmt"
	"sync"

	apperrors "backtest_engine/pkg/errors"
)

// MemoryStore implements ResultStore in memory. Used by tests and by CLI
// runs that do not configure a database path.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*RunRecord
	order []string
}

var _ ResultStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*RunRecord)}
}

func (s *MemoryStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("run record needs an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.runs[rec.ID] = rec
	return nil
}

func (s *MemoryStore) LoadRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, apperrors.ErrRunNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, strategy string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*RunRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.runs[s.order[i]]
		if strategy != "" && rec.Strategy != strategy {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
