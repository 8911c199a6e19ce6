// Package sim defines the simulation collaborator: an opaque function
// mapping a parameter set to simulated signals. The orchestration core
// treats one invocation as atomic; internal fan-out across workers is the
// simulator's own business.
package sim

import (
	"context"
	"fmt"

	"github.com/yarikoptic/hnn/pkg/models"
)

// Spec carries the per-invocation settings.
type Spec struct {
	// Trials is the number of trials to run and average.
	Trials int
	// Workers is the requested degree of internal parallelism.
	Workers int
	// TStop is the full simulation duration in ms.
	TStop float64
	// TruncateAt cuts the simulation short at the given time; zero means
	// run to TStop.
	TruncateAt float64
	// Seed seeds the simulator's random streams.
	Seed int64
}

// Duration returns the effective simulated duration.
func (s Spec) Duration() float64 {
	if s.TruncateAt > 0 && s.TruncateAt < s.TStop {
		return s.TruncateAt
	}
	return s.TStop
}

// Simulator runs one simulation with the given parameter set.
//
// A failure to start the requested worker fan-out is reported as a
// *WorkerStartError, which the runner treats as recoverable by reducing
// parallelism. Any other error is terminal for the invocation.
type Simulator interface {
	Simulate(ctx context.Context, params models.ParameterSet, spec Spec) (*models.SimulationResult, error)
}

// WorkerStartError reports that the simulator could not start with the
// requested number of workers. It is recoverable by retrying with fewer.
type WorkerStartError struct {
	Workers int
	Cause   error
}

func (e *WorkerStartError) Error() string {
	return fmt.Sprintf("failed to start simulation with %d workers: %v", e.Workers, e.Cause)
}

func (e *WorkerStartError) Unwrap() error {
	return e.Cause
}
