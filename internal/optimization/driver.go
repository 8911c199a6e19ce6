// Package optimization runs the staged parameter search: an initial
// baseline simulation, a sequence of derivative-free search steps over
// progressively later fitting windows, and a final accept-or-revert
// decision against the baseline error.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/yarikoptic/hnn/internal/results"
	"github.com/yarikoptic/hnn/internal/runner"
	"github.com/yarikoptic/hnn/internal/scoring"
	"github.com/yarikoptic/hnn/internal/sim"
	"github.com/yarikoptic/hnn/pkg/logger"
	"github.com/yarikoptic/hnn/pkg/models"
)

// finalsTol is the absolute tolerance under which a step's final value is
// considered unchanged from its starting point and the starting point is
// reported instead.
const finalsTol = 1e-9

// convergeRelTol is the relative objective-improvement tolerance that ends
// a step's search before its simulation budget is spent.
const convergeRelTol = 1e-4

// TrialRecorder persists per-evaluation trial records. Satisfied by
// storage.Store. A nil recorder is allowed; recording failures are logged
// and never abort the run.
type TrialRecorder interface {
	SaveTrial(ctx context.Context, rec models.TrialRecord) error
}

// Options are the whole-run simulation settings.
type Options struct {
	Workers int
	Trials  int
	TStop   float64
	Seed    int64
}

// Driver executes the optimization schedule. A Driver runs once; Run and
// Cancel may be called from different goroutines.
type Driver struct {
	runner  *runner.Runner
	store   *results.Store
	cleaner runner.Cleaner
	state   *RunState
	emit    *Emitter
	steps   []*Step
	opts    Options
	trials  TrialRecorder

	// cfgName keys the result cache for this run's configuration.
	cfgName string

	// params is the working parameter set. Writes happen on the run
	// goroutine; paramsMu guards them against Params snapshots taken by
	// the HTTP surface.
	paramsMu sync.RWMutex
	params   models.ParameterSet

	cleanupOnce sync.Once
}

// NewDriver wires a driver over its collaborators. The emitter is shared
// with the runner's progress sink by the caller; steps come from
// StepsFromConfig. The initial parameter set is snapshotted.
func NewDriver(r *runner.Runner, store *results.Store, cleaner runner.Cleaner, steps []*Step, initial models.ParameterSet, opts Options, emit *Emitter, trials TrialRecorder, runID string) *Driver {
	state := NewRunState(runID, len(steps))
	d := &Driver{
		runner:  r,
		store:   store,
		cleaner: cleaner,
		state:   state,
		emit:    emit,
		steps:   steps,
		opts:    opts,
		trials:  trials,
		cfgName: runID,
		params:  initial.Clone(),
	}
	r.Cancelled = state.Cancelled
	return d
}

// State exposes the run state for the HTTP surface.
func (d *Driver) State() *RunState {
	return d.state
}

// Steps exposes the step schedule, with per-range finals populated as
// steps complete.
func (d *Driver) Steps() []*Step {
	return d.steps
}

// Params returns a snapshot of the current working parameter set.
func (d *Driver) Params() models.ParameterSet {
	d.paramsMu.RLock()
	defer d.paramsMu.RUnlock()
	return d.params.Clone()
}

// Cancel raises the stop flag and terminates stale worker processes.
// Safe to call more than once; the process sweep runs exactly once.
func (d *Driver) Cancel(ctx context.Context) {
	d.state.Cancel()
	d.cleanupOnce.Do(func() {
		logger.Info("cancellation requested, sweeping worker processes")
		if pids, err := d.cleaner.TerminateStale(ctx); err != nil {
			logger.Error("worker cleanup incomplete", "pids", pids, "error", err)
			d.emit.Message(fmt.Sprintf("ERROR: %v", err))
		}
		d.emit.Message("Optimization terminated")
	})
}

// Run executes the whole schedule. It returns runner.ErrCancelled if the
// run was stopped, or the first fatal error otherwise.
func (d *Driver) Run(ctx context.Context) error {
	err := d.run(ctx)
	switch {
	case err == nil:
		d.state.SetState(StateDone)
		d.emit.Message("Optimization complete.")
	case errors.Is(err, runner.ErrCancelled), errors.Is(err, context.Canceled):
		// A stop delivered through the context is the same cooperative
		// cancellation as the flag. Operator messaging is handled by
		// Cancel.
		d.state.Cancel()
		err = runner.ErrCancelled
	default:
		logger.Error("optimization run failed", "error", err)
		d.state.Fail(err.Error())
		d.emit.Message("ERROR: " + err.Error())
	}
	return err
}

func (d *Driver) run(ctx context.Context) error {
	initialSnapshot := d.params.Clone()

	d.state.SetState(StateInitialRun)
	initialErr, err := d.initialData(ctx)
	if err != nil {
		return err
	}
	d.state.SetInitialErr(initialErr)
	logger.Info("baseline established", "rmse", initialErr)

	for i, step := range d.steps {
		if d.state.Cancelled() {
			return runner.ErrCancelled
		}
		if step.NumSims == 0 {
			d.emit.Message(fmt.Sprintf("Skipping optimization step %d (0 simulations)", i+1))
			continue
		}
		names, x0, lo, hi := step.FreeDims()
		if len(names) == 0 {
			d.emit.Message(fmt.Sprintf("Skipping optimization step %d (0 parameters)", i+1))
			continue
		}

		d.state.BeginStep(i)
		d.emit.StepStarted(i)
		d.emit.Message(fmt.Sprintf("Starting optimization step %d/%d", i+1, len(d.steps)))

		finals, err := d.runStep(ctx, i, step, names, x0, lo, hi)
		if err != nil {
			return err
		}
		d.applyFinals(step, names, x0, finals)
		d.emit.PushParams(d.params)
		d.emit.StepFinished(i, d.params)
	}

	if d.state.Cancelled() {
		return runner.ErrCancelled
	}
	return d.finalize(ctx, initialErr, initialSnapshot)
}

// initialData makes sure a baseline simulation exists, marks it as both
// the best-so-far and the pre-optimization reference point, and returns
// its whole-run RMSE.
func (d *Driver) initialData(ctx context.Context) (float64, error) {
	if !d.store.HasSim(d.cfgName) {
		d.emit.Message("Running a simulation with initial parameter set before beginning optimization.")
		res, err := d.runner.Run(ctx, d.params, d.fullSpec())
		if err != nil {
			return 0, err
		}
		d.store.UpdateSim(d.cfgName, res)
	}
	if err := d.store.PromoteBest(d.cfgName); err != nil {
		return 0, err
	}
	if err := d.store.MarkInitial(d.cfgName); err != nil {
		return 0, err
	}
	ch, err := d.store.RequestErr(d.cfgName, d.opts.TStop)
	if err != nil {
		return 0, err
	}
	return <-ch, nil
}

// runStep searches the step's free dimensions with a bounded
// derivative-free method, returning the best point found.
func (d *Driver) runStep(ctx context.Context, stepIdx int, step *Step, names []string, x0, lo, hi []float64) ([]float64, error) {
	d.emit.Message(fmt.Sprintf("Optimizing from [%3.3f-%3.3f] ms", step.Start, step.End))

	var evalErr error
	iter := 0

	objective := func(x []float64) float64 {
		if evalErr != nil || d.state.Cancelled() {
			return scoring.Penalty
		}
		if scoring.OutOfBounds(x, lo, hi) {
			d.reportOutOfBounds(x, lo, hi, names)
			return scoring.Penalty
		}

		d.state.SetIteration(iter)
		d.emit.Message(fmt.Sprintf("Optimization step %d, simulation %d", stepIdx+1, iter+1))

		trial := d.params.Clone()
		for i, name := range names {
			trial[name] = x[i]
		}
		d.emit.PushParams(trial)

		spec := d.fullSpec()
		spec.TruncateAt = step.End
		res, err := d.runner.Run(ctx, trial, spec)
		if err != nil {
			evalErr = err
			return scoring.Penalty
		}
		d.store.UpdateSim(d.cfgName, res)

		werr, err := d.store.WErr(d.cfgName, step.Weights, step.Start, step.End)
		if err != nil {
			evalErr = err
			return scoring.Penalty
		}
		d.emit.Message(fmt.Sprintf("Simulation finished: Weighted RMSE = %f", werr))

		best := werr < d.state.BestStepErr()
		if best {
			logger.Info("new best for step", "step", stepIdx+1, "werr", werr)
			d.emit.Message(fmt.Sprintf("new best with RMSE %f", werr))
			if err := d.store.PromoteBest(d.cfgName); err != nil {
				evalErr = err
				return scoring.Penalty
			}
			d.state.SetBestStepErr(werr)
			if bestRes, ok := d.store.Best(d.cfgName); ok {
				d.emit.BestUpdated(stepIdx, werr, bestRes)
			}
		}
		d.recordTrial(ctx, stepIdx, iter, trial, werr, best)

		iter++
		return werr
	}

	problem := optimize.Problem{
		Func: objective,
		Status: func() (optimize.Status, error) {
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			if d.state.Cancelled() {
				return optimize.Failure, runner.ErrCancelled
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: step.NumSims,
		Converger: &optimize.FunctionConverge{
			Relative:   convergeRelTol,
			Iterations: 10,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if evalErr != nil {
		return nil, evalErr
	}
	if err != nil {
		return nil, fmt.Errorf("optimization step %d: %w", stepIdx+1, err)
	}

	logger.Info("optimization step finished",
		"step", stepIdx+1,
		"evaluations", result.Stats.FuncEvaluations,
		"status", result.Status.String(),
		"werr", result.F)
	return result.X, nil
}

// applyFinals folds the step's search result back into the working
// parameter set and records per-range finals. Values within finalsTol of
// their starting point are reported as unchanged; degenerate ranges keep
// their pinned value.
func (d *Driver) applyFinals(step *Step, names []string, x0, finals []float64) {
	d.paramsMu.Lock()
	defer d.paramsMu.Unlock()
	for i, name := range names {
		v := finals[i]
		if math.Abs(v-x0[i]) <= finalsTol {
			v = x0[i]
		}
		d.params[name] = v
		if r := step.rangeByName(name); r != nil {
			r.SetFinal(v)
		}
	}
	for _, r := range step.Ranges {
		if r.Degenerate() {
			d.params[r.Name] = r.Initial
			r.SetFinal(r.Initial)
		}
	}
}

// finalize adopts the best-so-far data, compares the whole-run error to
// the baseline, and reverts to the starting parameters if optimization
// made things worse. A revert is confirmed with a full-length simulation.
func (d *Driver) finalize(ctx context.Context, initialErr float64, initialSnapshot models.ParameterSet) error {
	d.state.SetState(StateFinalizing)

	if err := d.store.AdoptBest(d.cfgName); err != nil {
		return err
	}
	ch, err := d.store.RequestErr(d.cfgName, d.opts.TStop)
	if err != nil {
		return err
	}
	finalErr := <-ch
	d.state.SetFinalErr(finalErr)
	logger.Info("final evaluation", "initial_rmse", initialErr, "final_rmse", finalErr)

	if finalErr > initialErr {
		d.emit.Message(fmt.Sprintf("Warning: optimization failed to improve RMSE below %.2f. Reverting to old parameters.", initialErr))
		d.paramsMu.Lock()
		d.params = initialSnapshot.Clone()
		d.paramsMu.Unlock()
		d.emit.PushParams(d.params)
		d.state.SetOutcome(OutcomeReverted)

		res, err := d.runner.Run(ctx, d.params, d.fullSpec())
		if err != nil {
			return err
		}
		d.store.UpdateSim(d.cfgName, res)
		return nil
	}

	d.state.SetOutcome(OutcomeAccepted)
	d.emit.Message(fmt.Sprintf("Optimization improved RMSE from %.2f to %.2f", initialErr, finalErr))
	return nil
}

// reportOutOfBounds names each coordinate the search placed outside its
// interval. The evaluation itself is skipped.
func (d *Driver) reportOutOfBounds(x, lo, hi []float64, names []string) {
	for i := range x {
		if x[i] < lo[i] || x[i] > hi[i] {
			d.emit.Message(fmt.Sprintf("INFO: optimization chose %.3f for %s outside of [%.3f-%.3f]", x[i], names[i], lo[i], hi[i]))
		}
	}
}

// fullSpec is the whole-run simulation spec with no truncation.
func (d *Driver) fullSpec() sim.Spec {
	return sim.Spec{
		Trials:  d.opts.Trials,
		Workers: d.opts.Workers,
		TStop:   d.opts.TStop,
		Seed:    d.opts.Seed,
	}
}

func (d *Driver) recordTrial(ctx context.Context, stepIdx, iter int, params models.ParameterSet, werr float64, best bool) {
	if d.trials == nil {
		return
	}
	rec := models.TrialRecord{
		RunID:     d.state.RunID(),
		Step:      stepIdx,
		Iteration: iter,
		Params:    params.Clone(),
		WErr:      werr,
		Best:      best,
		At:        time.Now().UTC(),
	}
	if err := d.trials.SaveTrial(ctx, rec); err != nil {
		logger.Warn("failed to persist trial record", "error", err)
	}
}
