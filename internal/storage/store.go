// Package storage persists the per-evaluation trial history of an
// optimization run.
package storage

import (
	"context"
	"fmt"

	"github.com/yarikoptic/hnn/pkg/models"
)

// Store is the trial history backend.
type Store interface {
	Init(ctx context.Context) error
	SaveTrial(ctx context.Context, rec models.TrialRecord) error
	// ListTrials returns trials for a run, newest first. step < 0 means
	// all steps; limit <= 0 means no limit.
	ListTrials(ctx context.Context, runID string, step, limit int) ([]models.TrialRecord, error)
}

// NewStore selects a backend. An empty path selects the in-memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes backends that hold resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
