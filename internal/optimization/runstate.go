package optimization

import (
	"math"
	"sync"
	"sync/atomic"
)

// State is the driver's lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateInitialRun  State = "initial_run"
	StateStepRunning State = "step_running"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Outcome records how the run ended relative to the starting parameters.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeAccepted Outcome = "accepted"
	OutcomeReverted Outcome = "reverted"
)

// RunState is the single mutable state of an optimization run: current
// step and iteration, best error seen in the current step, and the shared
// cancellation flag. It is mutated only by the driver; observers read
// eventually-consistent snapshots.
type RunState struct {
	mu sync.RWMutex

	runID       string
	state       State
	outcome     Outcome
	step        int
	totalSteps  int
	iteration   int
	bestStepErr float64
	initialErr  float64
	hasInitial  bool
	finalErr    float64
	hasFinal    bool
	errMsg      string

	cancelled atomic.Bool
}

// Snapshot is a read-only copy of the run state for observers and the
// HTTP surface.
type Snapshot struct {
	RunID        string  `json:"run_id"`
	State        State   `json:"state"`
	Outcome      Outcome `json:"outcome,omitempty"`
	Step         int     `json:"step"`
	TotalSteps   int     `json:"total_steps"`
	Iteration    int     `json:"iteration"`
	BestStepErr  float64 `json:"best_step_werr"`
	InitialErr   float64 `json:"initial_err,omitempty"`
	HasInitial   bool    `json:"has_initial_err"`
	FinalErr     float64 `json:"final_err,omitempty"`
	HasFinalErr  bool    `json:"has_final_err"`
	ErrorMessage string  `json:"error,omitempty"`
	Cancelled    bool    `json:"cancelled"`
}

// NewRunState initializes state for a run over the given number of steps.
func NewRunState(runID string, totalSteps int) *RunState {
	return &RunState{
		runID:       runID,
		state:       StateIdle,
		totalSteps:  totalSteps,
		bestStepErr: math.Inf(1),
	}
}

// RunID returns the run identifier.
func (s *RunState) RunID() string {
	return s.runID
}

// SetState records a lifecycle transition.
func (s *RunState) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// SetOutcome records whether the optimized parameters were kept.
func (s *RunState) SetOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
}

// BeginStep enters a step: resets the iteration counter and the per-step
// best error.
func (s *RunState) BeginStep(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateStepRunning
	s.step = step
	s.iteration = 0
	s.bestStepErr = math.Inf(1)
}

// SetIteration records the current objective-evaluation index.
func (s *RunState) SetIteration(iter int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration = iter
}

// BestStepErr returns the best weighted error seen in the current step.
func (s *RunState) BestStepErr() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestStepErr
}

// SetBestStepErr records a new per-step best.
func (s *RunState) SetBestStepErr(werr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bestStepErr = werr
}

// SetInitialErr records the pre-optimization whole-run error.
func (s *RunState) SetInitialErr(err float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialErr = err
	s.hasInitial = true
}

// SetFinalErr records the post-optimization whole-run error.
func (s *RunState) SetFinalErr(err float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalErr = err
	s.hasFinal = true
}

// Fail marks the run failed with a terminal message.
func (s *RunState) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.errMsg = msg
}

// Cancel raises the shared stop flag. Idempotent.
func (s *RunState) Cancel() {
	s.cancelled.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCancelled
}

// Cancelled reports the shared stop flag.
func (s *RunState) Cancelled() bool {
	return s.cancelled.Load()
}

// Snapshot returns a copy of the current state.
func (s *RunState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		RunID:        s.runID,
		State:        s.state,
		Outcome:      s.outcome,
		Step:         s.step,
		TotalSteps:   s.totalSteps,
		Iteration:    s.iteration,
		BestStepErr:  s.bestStepErr,
		InitialErr:   s.initialErr,
		HasInitial:   s.hasInitial,
		FinalErr:     s.finalErr,
		HasFinalErr:  s.hasFinal,
		ErrorMessage: s.errMsg,
		Cancelled:    s.cancelled.Load(),
	}
	if math.IsInf(snap.BestStepErr, 1) {
		snap.BestStepErr = 0
	}
	return snap
}
