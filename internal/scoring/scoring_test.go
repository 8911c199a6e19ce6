package scoring

import (
	"math"
	"testing"

	"github.com/yarikoptic/hnn/pkg/models"
)

func rampDipole(n int, offset float64) *models.Dipole {
	times := make([]float64, n)
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = float64(i)
		data[i] = float64(i) + offset
	}
	return &models.Dipole{Times: times, Data: data}
}

func TestScoreConstantOffset(t *testing.T) {
	reference := rampDipole(11, 0)
	candidate := rampDipole(11, 2)

	w := Weights{{Start: 0, End: 10, Weight: 1}}
	got, err := Score(candidate, reference, w, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-2) > 1e-12 {
		t.Fatalf("expected RMSE 2, got %g", got)
	}
}

func TestScoreIsLinearInWeights(t *testing.T) {
	reference := rampDipole(21, 0)
	candidate := rampDipole(21, 1)

	base, err := Score(candidate, reference, Weights{{Start: 0, End: 20, Weight: 1}}, 0, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scaled, err := Score(candidate, reference, Weights{{Start: 0, End: 20, Weight: 3}}, 0, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(scaled-3*base) > 1e-12 {
		t.Fatalf("scaling the weight by 3 should scale the score by 3: base=%g scaled=%g", base, scaled)
	}
}

func TestScoreSumsSubWindows(t *testing.T) {
	reference := rampDipole(21, 0)
	candidate := rampDipole(21, 1)

	whole, err := Score(candidate, reference, Weights{{Start: 0, End: 20, Weight: 1}}, 0, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// With a constant offset each sub-window has the same RMSE, so two
	// unit-weight halves sum to twice the whole-window score.
	split := Weights{
		{Start: 0, End: 10, Weight: 1},
		{Start: 10, End: 20, Weight: 1},
	}
	got, err := Score(candidate, reference, split, 0, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-2*whole) > 1e-9 {
		t.Fatalf("expected %g, got %g", 2*whole, got)
	}
}

func TestScoreClipsWindowsToInterval(t *testing.T) {
	reference := rampDipole(21, 0)
	candidate := rampDipole(21, 1)

	// The window extends past tstop; samples beyond it must not count.
	clipped, err := Score(candidate, reference, Weights{{Start: 0, End: 100, Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, err := Score(candidate, reference, Weights{{Start: 0, End: 10, Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clipped != direct {
		t.Fatalf("clipped window scored %g, direct window %g", clipped, direct)
	}
}

func TestScoreZeroWidthWindowIgnored(t *testing.T) {
	reference := rampDipole(11, 0)
	candidate := rampDipole(11, 1)

	w := Weights{
		{Start: 0, End: 10, Weight: 1},
		{Start: 10, End: 10, Weight: 100},
	}
	got, err := Score(candidate, reference, w, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1) > 1e-12 {
		t.Fatalf("zero-width window should contribute nothing, got %g", got)
	}
}

func TestScoreNoOverlap(t *testing.T) {
	reference := rampDipole(11, 0)
	candidate := &models.Dipole{Times: []float64{100, 101, 102}, Data: []float64{0, 0, 0}}

	_, err := Score(candidate, reference, Weights{{Start: 0, End: 10, Weight: 1}}, 0, 10)
	if err == nil {
		t.Fatalf("expected an error for disjoint time ranges")
	}
}

func TestRMSEMatchesSingleUnitWindow(t *testing.T) {
	reference := rampDipole(11, 0)
	candidate := rampDipole(11, 2)

	plain, err := RMSE(candidate, reference, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	weighted, err := Score(candidate, reference, Weights{{Start: 0, End: 10, Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain != weighted {
		t.Fatalf("RMSE %g != unit-weight Score %g", plain, weighted)
	}
}

func TestOutOfBounds(t *testing.T) {
	lo := []float64{0, -1}
	hi := []float64{1, 1}

	cases := []struct {
		name string
		x    []float64
		want bool
	}{
		{"inside", []float64{0.5, 0}, false},
		{"on lower bound", []float64{0, -1}, false},
		{"on upper bound", []float64{1, 1}, false},
		{"below", []float64{-0.001, 0}, true},
		{"above", []float64{0.5, 1.001}, true},
	}
	for _, tc := range cases {
		if got := OutOfBounds(tc.x, lo, hi); got != tc.want {
			t.Fatalf("%s: OutOfBounds(%v) = %v, want %v", tc.name, tc.x, got, tc.want)
		}
	}
}
