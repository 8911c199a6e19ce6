// Package scoring computes the weighted root-mean-square error between a
// candidate dipole and the reference waveform over one or more weighted
// time sub-windows.
package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/yarikoptic/hnn/pkg/models"
)

// Penalty is the sentinel error value returned for candidate points
// outside their declared bounds. It repels the search away from the
// invalid region without aborting it.
const Penalty = 1e9

// Window is one weighted scoring sub-window.
type Window struct {
	Start  float64
	End    float64
	Weight float64
}

// Weights is the per-step weighting scheme. Weights need not sum to 1;
// normalization policy belongs to the caller.
type Weights []Window

// Score combines per-sub-window RMSEs between candidate and reference into
// a weighted sum. Sub-windows are clipped to [tstart, tstop]; the
// candidate is resampled onto the reference time base.
func Score(candidate, reference *models.Dipole, w Weights, tstart, tstop float64) (float64, error) {
	if len(w) == 0 {
		return 0, fmt.Errorf("no scoring windows")
	}
	pred, err := fitCandidate(candidate)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for i, win := range w {
		lo := math.Max(win.Start, tstart)
		hi := math.Min(win.End, tstop)
		if hi <= lo {
			continue
		}
		rmse, err := windowRMSE(pred, candidate, reference, lo, hi)
		if err != nil {
			return 0, fmt.Errorf("window %d [%g, %g]: %w", i, lo, hi, err)
		}
		total += win.Weight * rmse
	}
	return total, nil
}

// RMSE is the unweighted error over [tstart, tstop], used for the
// initial/final whole-run comparison.
func RMSE(candidate, reference *models.Dipole, tstart, tstop float64) (float64, error) {
	pred, err := fitCandidate(candidate)
	if err != nil {
		return 0, err
	}
	return windowRMSE(pred, candidate, reference, tstart, tstop)
}

// OutOfBounds reports whether any coordinate lies strictly outside its
// [lo, hi] interval.
func OutOfBounds(x, lo, hi []float64) bool {
	for i := range x {
		if x[i] < lo[i] || x[i] > hi[i] {
			return true
		}
	}
	return false
}

func fitCandidate(candidate *models.Dipole) (*interp.PiecewiseLinear, error) {
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(candidate.Times, candidate.Data); err != nil {
		return nil, fmt.Errorf("failed to fit candidate: %w", err)
	}
	return &pl, nil
}

// windowRMSE computes the RMSE over reference samples inside [lo, hi] that
// also lie within the candidate's sampled range (no extrapolation).
func windowRMSE(pred *interp.PiecewiseLinear, candidate, reference *models.Dipole, lo, hi float64) (float64, error) {
	cmin := candidate.Times[0]
	cmax := candidate.Times[len(candidate.Times)-1]

	var sq []float64
	for i, t := range reference.Times {
		if t < lo || t > hi || t < cmin || t > cmax {
			continue
		}
		diff := pred.Predict(t) - reference.Data[i]
		sq = append(sq, diff*diff)
	}
	if len(sq) == 0 {
		return 0, fmt.Errorf("no overlapping samples")
	}
	return math.Sqrt(floats.Sum(sq) / float64(len(sq))), nil
}
