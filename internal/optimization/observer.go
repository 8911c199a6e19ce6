package optimization

import (
	"github.com/yarikoptic/hnn/pkg/models"
)

// ParameterSink receives the current working parameter set whenever the
// driver changes it: per-trial candidates, per-step finals, and the
// restored set after a revert.
type ParameterSink interface {
	PushParams(params models.ParameterSet)
}

// BestObserver is notified when a trial beats the best error of the
// current step.
type BestObserver interface {
	BestUpdated(step int, werr float64, result *models.SimulationResult)
}

// StepObserver is notified at step boundaries.
type StepObserver interface {
	StepStarted(step int)
	StepFinished(step int, finals models.ParameterSet)
}

// ProgressSink accepts operator-facing status text.
type ProgressSink interface {
	Message(text string)
}

// Emitter fans driver events out to registered observers. All emits happen
// on the driver goroutine, so each observer sees events in the order they
// occurred. Registration happens before the run starts and is not
// synchronized against emits.
type Emitter struct {
	progress []ProgressSink
	params   []ParameterSink
	best     []BestObserver
	step     []StepObserver
}

func (e *Emitter) AddProgress(s ProgressSink) {
	e.progress = append(e.progress, s)
}

func (e *Emitter) AddParams(s ParameterSink) {
	e.params = append(e.params, s)
}

func (e *Emitter) AddBest(o BestObserver) {
	e.best = append(e.best, o)
}

func (e *Emitter) AddStep(o StepObserver) {
	e.step = append(e.step, o)
}

// Message forwards status text to all progress sinks. Emitter itself
// satisfies ProgressSink so it can be handed to the runner.
func (e *Emitter) Message(text string) {
	for _, s := range e.progress {
		s.Message(text)
	}
}

// PushParams forwards a parameter snapshot to all parameter sinks. Each
// sink gets its own copy.
func (e *Emitter) PushParams(params models.ParameterSet) {
	for _, s := range e.params {
		s.PushParams(params.Clone())
	}
}

// BestUpdated forwards a new per-step best.
func (e *Emitter) BestUpdated(step int, werr float64, result *models.SimulationResult) {
	for _, o := range e.best {
		o.BestUpdated(step, werr, result)
	}
}

// StepStarted forwards a step entry event.
func (e *Emitter) StepStarted(step int) {
	for _, o := range e.step {
		o.StepStarted(step)
	}
}

// StepFinished forwards a step exit event with the step's final values.
func (e *Emitter) StepFinished(step int, finals models.ParameterSet) {
	for _, o := range e.step {
		o.StepFinished(step, finals.Clone())
	}
}
