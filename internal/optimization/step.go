package optimization

import (
	"github.com/yarikoptic/hnn/internal/scoring"
	"github.com/yarikoptic/hnn/pkg/config"
	"github.com/yarikoptic/hnn/pkg/models"
)

// Step is one stage of the optimization schedule: a fitting interval, a
// simulation budget, the parameter ranges searched in this stage and the
// scoring weights applied to it.
type Step struct {
	Start   float64
	End     float64
	NumSims int
	Ranges  []*models.ParameterRange
	Weights scoring.Weights
}

// StepsFromConfig builds the step schedule from validated configuration.
// Range order is preserved so search dimensions are deterministic.
func StepsFromConfig(cfg *config.Config) []*Step {
	steps := make([]*Step, 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		step := &Step{
			Start:   sc.Start,
			End:     sc.End,
			NumSims: sc.NumSims,
		}
		for _, rc := range sc.Ranges {
			r := &models.ParameterRange{
				Name: rc.Name,
				Min:  rc.Min,
				Max:  rc.Max,
			}
			if rc.Initial != nil {
				r.Initial = *rc.Initial
			}
			step.Ranges = append(step.Ranges, r)
		}
		for _, wc := range sc.Weights {
			step.Weights = append(step.Weights, scoring.Window{
				Start:  wc.Start,
				End:    wc.End,
				Weight: wc.Weight,
			})
		}
		steps = append(steps, step)
	}
	return steps
}

// FreeDims returns the searchable dimensions of the step: ranges whose
// bounds are not degenerate, in declaration order, with their starting
// points and bounds.
func (s *Step) FreeDims() (names []string, x0, lo, hi []float64) {
	for _, r := range s.Ranges {
		if r.Degenerate() {
			continue
		}
		names = append(names, r.Name)
		x0 = append(x0, r.Initial)
		lo = append(lo, r.Min)
		hi = append(hi, r.Max)
	}
	return names, x0, lo, hi
}

// rangeByName returns the step's range for a parameter, if declared.
func (s *Step) rangeByName(name string) *models.ParameterRange {
	for _, r := range s.Ranges {
		if r.Name == name {
			return r
		}
	}
	return nil
}
