// Package runner wraps a single simulation invocation with the
// degraded-parallelism retry policy: a worker-count-related startup
// failure halves the requested worker count (rounding up) and tries
// again, down to a single worker.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/yarikoptic/hnn/internal/sim"
	"github.com/yarikoptic/hnn/pkg/logger"
	"github.com/yarikoptic/hnn/pkg/models"
	"github.com/yarikoptic/hnn/pkg/utils"
)

// ErrCancelled reports a cooperative stop observed mid-retry or mid-step.
// It is terminal for the run but is not an error to report as a bug.
var ErrCancelled = errors.New("optimization terminated")

// NoWorkersAvailableError reports a requested worker count of zero at
// entry. Fatal to the simulation attempt.
type NoWorkersAvailableError struct{}

func (e *NoWorkersAvailableError) Error() string {
	return "no workers available for simulation"
}

// SimulationFailureError reports that the simulation could not start even
// at minimum parallelism. The underlying cause text is preserved.
type SimulationFailureError struct {
	Cause error
}

func (e *SimulationFailureError) Error() string {
	return fmt.Sprintf("simulation failed to start: %v", e.Cause)
}

func (e *SimulationFailureError) Unwrap() error {
	return e.Cause
}

// ProgressSink accepts operator-facing status text. Ordering is preserved;
// no acknowledgment is expected.
type ProgressSink interface {
	Message(text string)
}

// Cleaner terminates stale worker processes. Satisfied by
// *supervisor.Supervisor.
type Cleaner interface {
	TerminateStale(ctx context.Context) ([]int32, error)
}

// Runner owns process-lifecycle authority for simulations: it launches
// them through the simulator and cleans up after terminal failures.
type Runner struct {
	sim      sim.Simulator
	cleaner  Cleaner
	progress ProgressSink

	// Cancelled reports the shared stop flag; checked before each retry.
	Cancelled func() bool
	// OnRetry is called once per worker-count reduction; may be nil.
	OnRetry func()
}

// New constructs a Runner. progress and cleaner must be non-nil.
func New(simulator sim.Simulator, cleaner Cleaner, progress ProgressSink) *Runner {
	return &Runner{
		sim:      simulator,
		cleaner:  cleaner,
		progress: progress,
		Cancelled: func() bool {
			return false
		},
	}
}

// Run executes one simulation with up to workers parallel workers,
// retrying with progressively fewer on startup failure. The parameter set
// is snapshotted before launch.
func (r *Runner) Run(ctx context.Context, params models.ParameterSet, spec sim.Spec) (*models.SimulationResult, error) {
	if spec.Workers == 0 {
		return nil, &NoWorkersAvailableError{}
	}

	snapshot := params.Clone()
	workers := spec.Workers
	for {
		attempt := spec
		attempt.Workers = workers

		result, err := r.sim.Simulate(ctx, snapshot, attempt)
		if err == nil {
			return result, nil
		}

		// A context stop observed mid-simulation is cooperative
		// cancellation, not a simulation fault.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCancelled
		}

		var startErr *sim.WorkerStartError
		if !errors.As(err, &startErr) {
			return nil, err
		}

		if workers == 1 {
			// Can't reduce workers any more.
			logger.Error("simulation failed at minimum parallelism", "error", startErr)
			r.progress.Message(startErr.Error())
			r.cleanupStale(ctx)
			return nil, &SimulationFailureError{Cause: startErr.Cause}
		}

		// Check if the run was stopped before retrying with fewer workers.
		if r.Cancelled() {
			return nil, ErrCancelled
		}

		workers = utils.CeilDiv(workers, 2)
		text := fmt.Sprintf("INFO: Failed starting simulation, retrying with %d workers", workers)
		logger.Info("retrying simulation with fewer workers", "workers", workers)
		r.progress.Message(text)
		if r.OnRetry != nil {
			r.OnRetry()
		}
	}
}

// cleanupStale kills lingering worker processes after a terminal failure.
// Survivors are an environment error the operator has to see.
func (r *Runner) cleanupStale(ctx context.Context) {
	if pids, err := r.cleaner.TerminateStale(ctx); err != nil {
		logger.Error("worker cleanup incomplete", "pids", pids, "error", err)
		r.progress.Message(fmt.Sprintf("ERROR: %v", err))
	}
}
