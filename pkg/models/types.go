package models

import (
	"time"
)

// ParameterSet maps parameter names to values. A set is snapshotted
// (cloned) before being handed to a simulation so that concurrent reads by
// observers never see an in-flight mutation.
type ParameterSet map[string]float64

// Clone returns an independent copy of the set.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal reports whether two sets hold exactly the same names and values.
// Comparison is bitwise on the float64 values, no tolerance.
func (p ParameterSet) Equal(other ParameterSet) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// ParameterRange describes one searchable parameter within an optimization
// step. Final is populated only after the step completes.
type ParameterRange struct {
	Name    string
	Initial float64
	Min     float64
	Max     float64
	Final   *float64
}

// Degenerate reports whether the range spans a single point. Degenerate
// ranges are excluded from the search dimensions.
func (r ParameterRange) Degenerate() bool {
	return r.Min == r.Max
}

// SetFinal records the post-step value for the parameter.
func (r *ParameterRange) SetFinal(v float64) {
	r.Final = &v
}

// SpikeData holds the spike raster of one simulation.
type SpikeData struct {
	Times []float64 `json:"times"`
	GIDs  []int     `json:"gids"`
}

// SimulationResult is the raw output of one simulation invocation together
// with the exact parameter set that produced it.
type SimulationResult struct {
	Params ParameterSet
	Dipole *Dipole   // trial-averaged dipole
	Trials []*Dipole // per-trial dipoles, same time base
	Spikes SpikeData
}

// TrialRecord is one objective evaluation during an optimization step,
// persisted to the trial history store.
type TrialRecord struct {
	RunID     string
	Step      int
	Iteration int
	Params    ParameterSet
	WErr      float64
	Best      bool
	At        time.Time
}
