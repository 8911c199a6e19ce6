// Package metrics exposes Prometheus metrics for the optimization daemon:
// simulation counts and latency, retry counts, and search progress gauges.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yarikoptic/hnn/internal/sim"
	"github.com/yarikoptic/hnn/pkg/models"
)

// Collector bundles the daemon's Prometheus metrics and provides hooks to
// wire them into the runner and the optimization driver.
type Collector struct {
	gatherer prometheus.Gatherer

	Simulations  *prometheus.CounterVec
	SimDurations prometheus.Histogram
	Retries      prometheus.Counter

	CurrentStep prometheus.Gauge
	BestStepErr prometheus.Gauge
}

// NewCollector registers the daemon metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	simulations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hnn_simulations_total",
		Help: "Total number of simulation invocations, labeled by outcome.",
	}, []string{"outcome"})
	simulations, err := registerCounterVec(reg, simulations, "hnn_simulations_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hnn_simulation_duration_seconds",
		Help:    "Wall-clock duration of simulation invocations in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}), "hnn_simulation_duration_seconds")
	if err != nil {
		return nil, err
	}

	retries, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hnn_simulation_retries_total",
		Help: "Total number of worker-count reductions after startup failures.",
	}), "hnn_simulation_retries_total")
	if err != nil {
		return nil, err
	}

	currentStep, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hnn_optimization_current_step",
		Help: "One-based index of the optimization step currently running.",
	}), "hnn_optimization_current_step")
	if err != nil {
		return nil, err
	}
	bestErr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hnn_optimization_best_step_werr",
		Help: "Best weighted RMSE observed in the current optimization step.",
	}), "hnn_optimization_best_step_werr")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		Simulations:  simulations,
		SimDurations: durations,
		Retries:      retries,
		CurrentStep:  currentStep,
		BestStepErr:  bestErr,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// OnRetry is the runner's worker-reduction hook.
func (c *Collector) OnRetry() {
	if c == nil || c.Retries == nil {
		return
	}
	c.Retries.Inc()
}

// BestUpdated records a per-step best improvement. Satisfies the driver's
// best observer.
func (c *Collector) BestUpdated(step int, werr float64, result *models.SimulationResult) {
	if c == nil || c.BestStepErr == nil {
		return
	}
	c.BestStepErr.Set(werr)
}

// StepStarted records entry into a step. Satisfies the driver's step
// observer.
func (c *Collector) StepStarted(step int) {
	if c == nil || c.CurrentStep == nil {
		return
	}
	c.CurrentStep.Set(float64(step + 1))
}

// StepFinished satisfies the driver's step observer.
func (c *Collector) StepFinished(step int, finals models.ParameterSet) {}

// InstrumentSimulator wraps a simulator so every invocation is counted and
// timed.
func (c *Collector) InstrumentSimulator(inner sim.Simulator) sim.Simulator {
	if c == nil {
		return inner
	}
	return &instrumentedSimulator{inner: inner, collector: c}
}

type instrumentedSimulator struct {
	inner     sim.Simulator
	collector *Collector
}

func (s *instrumentedSimulator) Simulate(ctx context.Context, params models.ParameterSet, spec sim.Spec) (*models.SimulationResult, error) {
	start := time.Now()
	result, err := s.inner.Simulate(ctx, params, spec)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	if s.collector.Simulations != nil {
		s.collector.Simulations.WithLabelValues(outcome).Inc()
	}
	if s.collector.SimDurations != nil {
		s.collector.SimDurations.Observe(time.Since(start).Seconds())
	}
	return result, err
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
