package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yarikoptic/hnn/pkg/models"
)

// SQLiteStore persists trial records to a sqlite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveTrial(ctx context.Context, rec models.TrialRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO trials (run_id, step, iteration, params, werr, best, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Step, rec.Iteration, payload, rec.WErr, boolToInt(rec.Best), rec.At.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ListTrials(ctx context.Context, runID string, step, limit int) ([]models.TrialRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT run_id, step, iteration, params, werr, best, at FROM trials WHERE run_id = ?`
	args := []any{runID}
	if step >= 0 {
		query += ` AND step = ?`
		args = append(args, step)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrialRecord
	for rows.Next() {
		var (
			rec     models.TrialRecord
			payload []byte
			best    int
			at      string
		)
		if err := rows.Scan(&rec.RunID, &rec.Step, &rec.Iteration, &payload, &rec.WErr, &best, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &rec.Params); err != nil {
			return nil, fmt.Errorf("decode trial params: %w", err)
		}
		rec.Best = best != 0
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			rec.At = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			iteration INTEGER NOT NULL,
			params BLOB NOT NULL,
			werr REAL NOT NULL,
			best INTEGER NOT NULL,
			at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trials_run_step ON trials (run_id, step);
	`)
	return err
}
