// Package results caches simulation outputs per parameter configuration
// and answers error queries against the reference waveform. It mirrors the
// split between "live" data (latest simulation) and "opt" data (best seen
// so far in the current step), so observers track the best result rather
// than the most recent one.
package results

import (
	"fmt"
	"sync"

	"github.com/yarikoptic/hnn/internal/scoring"
	"github.com/yarikoptic/hnn/pkg/models"
)

// Record holds the cached signals for one parameter configuration.
type Record struct {
	// Sim is the latest simulation output.
	Sim *models.SimulationResult
	// Opt is the best-so-far output promoted during optimization.
	Opt *models.SimulationResult
	// Initial is the pre-optimization output kept for the final
	// comparison display.
	Initial *models.SimulationResult
}

// Store is the process-wide result cache. Mutated only by the driver;
// reads by the HTTP surface tolerate eventually-consistent values.
type Store struct {
	mu        sync.RWMutex
	reference *models.Dipole
	records   map[string]*Record
}

// NewStore creates a store scoring against the given reference waveform.
func NewStore(reference *models.Dipole) *Store {
	return &Store{
		reference: reference,
		records:   make(map[string]*Record),
	}
}

// Reference returns the reference waveform.
func (s *Store) Reference() *models.Dipole {
	return s.reference
}

// HasSim reports whether a simulation result exists for the configuration.
func (s *Store) HasSim(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return ok && rec.Sim != nil
}

// UpdateSim stores the latest simulation output for the configuration.
func (s *Store) UpdateSim(key string, res *models.SimulationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{}
		s.records[key] = rec
	}
	rec.Sim = res
}

// PromoteBest copies the latest simulation output into the best-so-far
// slot.
func (s *Store) PromoteBest(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Sim == nil {
		return fmt.Errorf("no simulation data for %s", key)
	}
	rec.Opt = rec.Sim
	return nil
}

// MarkInitial records the current simulation output as the
// pre-optimization baseline.
func (s *Store) MarkInitial(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Sim == nil {
		return fmt.Errorf("no simulation data for %s", key)
	}
	rec.Initial = rec.Sim
	return nil
}

// AdoptBest replaces the live simulation output with the best-so-far data,
// used after the last step so the final evaluation reflects the best
// result without a new simulation.
func (s *Store) AdoptBest(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Opt == nil {
		return fmt.Errorf("no optimization data for %s", key)
	}
	rec.Sim = rec.Opt
	return nil
}

// Best returns the best-so-far result for the configuration, if any.
func (s *Store) Best(key string) (*models.SimulationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok || rec.Opt == nil {
		return nil, false
	}
	return rec.Opt, true
}

// WErr scores the live simulation output for the configuration with the
// given weights over [tstart, tstop].
func (s *Store) WErr(key string, w scoring.Weights, tstart, tstop float64) (float64, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok || rec.Sim == nil {
		return 0, fmt.Errorf("no simulation data for %s", key)
	}
	return scoring.Score(rec.Sim.Dipole, s.reference, w, tstart, tstop)
}

// RequestErr computes the plain RMSE of the live output over [0, tstop]
// and hands it off through a single-slot channel with read-once semantics.
func (s *Store) RequestErr(key string, tstop float64) (<-chan float64, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok || rec.Sim == nil {
		return nil, fmt.Errorf("no simulation data for %s", key)
	}
	err, scoreErr := scoring.RMSE(rec.Sim.Dipole, s.reference, 0, tstop)
	if scoreErr != nil {
		return nil, scoreErr
	}
	ch := make(chan float64, 1)
	ch <- err
	close(ch)
	return ch, nil
}
