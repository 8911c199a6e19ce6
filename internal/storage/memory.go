package storage

import (
	"context"
	"sync"

	"github.com/yarikoptic/hnn/pkg/models"
)

// MemoryStore keeps trial records in memory, newest first on read.
type MemoryStore struct {
	mu     sync.RWMutex
	trials []models.TrialRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) SaveTrial(ctx context.Context, rec models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Params = rec.Params.Clone()
	s.trials = append(s.trials, rec)
	return nil
}

func (s *MemoryStore) ListTrials(ctx context.Context, runID string, step, limit int) ([]models.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TrialRecord
	for i := len(s.trials) - 1; i >= 0; i-- {
		rec := s.trials[i]
		if rec.RunID != runID {
			continue
		}
		if step >= 0 && rec.Step != step {
			continue
		}
		rec.Params = rec.Params.Clone()
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
