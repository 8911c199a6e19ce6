package results

import (
	"math"
	"testing"

	"github.com/yarikoptic/hnn/internal/scoring"
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

func resultWithOffset(offset float64) *models.SimulationResult {
	return &models.SimulationResult{Dipole: rampDipole(11, offset)}
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(rampDipole(11, 0))

	if s.HasSim("run") {
		t.Fatalf("empty store should have no data")
	}
	if err := s.PromoteBest("run"); err == nil {
		t.Fatalf("promote without data should fail")
	}

	s.UpdateSim("run", resultWithOffset(2))
	if !s.HasSim("run") {
		t.Fatalf("expected data after UpdateSim")
	}
	if err := s.PromoteBest("run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.MarkInitial("run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	best, ok := s.Best("run")
	if !ok || best == nil {
		t.Fatalf("expected best data after promote")
	}
}

func TestAdoptBestRestoresPromotedData(t *testing.T) {
	s := NewStore(rampDipole(11, 0))

	s.UpdateSim("run", resultWithOffset(1))
	if err := s.PromoteBest("run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A worse simulation overwrites the live slot but not the best slot.
	s.UpdateSim("run", resultWithOffset(5))
	werr, err := s.WErr("run", scoring.Weights{{Start: 0, End: 10, Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(werr-5) > 1e-12 {
		t.Fatalf("live slot should score the latest data, got %g", werr)
	}

	if err := s.AdoptBest("run"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	werr, err = s.WErr("run", scoring.Weights{{Start: 0, End: 10, Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(werr-1) > 1e-12 {
		t.Fatalf("after AdoptBest the live slot should score the promoted data, got %g", werr)
	}
}

func TestRequestErrReadOnce(t *testing.T) {
	s := NewStore(rampDipole(11, 0))
	s.UpdateSim("run", resultWithOffset(2))

	ch, err := s.RequestErr("run", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := <-ch
	if !ok {
		t.Fatalf("expected one value on the channel")
	}
	if math.Abs(got-2) > 1e-12 {
		t.Fatalf("expected RMSE 2, got %g", got)
	}

	// The channel is spent after one read.
	if _, ok := <-ch; ok {
		t.Fatalf("expected the channel to be closed after the first read")
	}
}

func TestRequestErrWithoutData(t *testing.T) {
	s := NewStore(rampDipole(11, 0))
	if _, err := s.RequestErr("missing", 10); err == nil {
		t.Fatalf("expected an error for a configuration with no data")
	}
}
