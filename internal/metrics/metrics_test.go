package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yarikoptic/hnn/internal/sim"
	"github.com/yarikoptic/hnn/pkg/models"
)

type stubSimulator struct {
	err error
}

func (s *stubSimulator) Simulate(ctx context.Context, params models.ParameterSet, spec sim.Spec) (*models.SimulationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SimulationResult{Params: params.Clone()}, nil
}

func TestInstrumentSimulatorCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok := collector.InstrumentSimulator(&stubSimulator{})
	if _, err := ok.Simulate(context.Background(), models.ParameterSet{}, sim.Spec{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ok.Simulate(context.Background(), models.ParameterSet{}, sim.Spec{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := collector.InstrumentSimulator(&stubSimulator{err: errors.New("boom")})
	if _, err := failing.Simulate(context.Background(), models.ParameterSet{}, sim.Spec{}); err == nil {
		t.Fatalf("expected the wrapped error to pass through")
	}

	if got := testutil.ToFloat64(collector.Simulations.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok simulations, got %v", got)
	}
	if got := testutil.ToFloat64(collector.Simulations.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed simulation, got %v", got)
	}
}

func TestCollectorHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	collector.OnRetry()
	collector.OnRetry()
	if got := testutil.ToFloat64(collector.Retries); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}

	collector.StepStarted(1)
	if got := testutil.ToFloat64(collector.CurrentStep); got != 2 {
		t.Fatalf("expected one-based step 2, got %v", got)
	}

	collector.BestUpdated(1, 0.125, nil)
	if got := testutil.ToFloat64(collector.BestStepErr); got != 0.125 {
		t.Fatalf("expected best error 0.125, got %v", got)
	}
}

func TestNewCollectorIsIdempotentPerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("re-registration should reuse existing collectors: %v", err)
	}
}
