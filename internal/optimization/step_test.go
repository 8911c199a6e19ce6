package optimization

import (
	"testing"

	"github.com/yarikoptic/hnn/pkg/config"
	"github.com/yarikoptic/hnn/pkg/models"
)

func TestFreeDimsExcludesDegenerateRanges(t *testing.T) {
	step := &Step{
		Ranges: []*models.ParameterRange{
			{Name: "a", Initial: 0.5, Min: 0, Max: 1},
			{Name: "b", Initial: 5, Min: 5, Max: 5},
			{Name: "c", Initial: -1, Min: -2, Max: 0},
		},
	}

	names, x0, lo, hi := step.FreeDims()
	if len(names) != 2 {
		t.Fatalf("expected 2 free dimensions, got %v", names)
	}
	if names[0] != "a" || names[1] != "c" {
		t.Fatalf("expected declaration order [a c], got %v", names)
	}
	if x0[0] != 0.5 || x0[1] != -1 {
		t.Fatalf("unexpected starting points %v", x0)
	}
	if lo[0] != 0 || hi[0] != 1 || lo[1] != -2 || hi[1] != 0 {
		t.Fatalf("unexpected bounds lo=%v hi=%v", lo, hi)
	}
}

func TestFreeDimsAllPinned(t *testing.T) {
	step := &Step{
		Ranges: []*models.ParameterRange{
			{Name: "a", Initial: 1, Min: 1, Max: 1},
		},
	}
	names, _, _, _ := step.FreeDims()
	if len(names) != 0 {
		t.Fatalf("expected no free dimensions, got %v", names)
	}
}

func TestStepsFromConfigPreservesOrder(t *testing.T) {
	yamlText := `
simulation:
  command: nrniv
  workers: 2
  tstop: 250
reference:
  path: /dev/null
parameters:
  t_evprox_1: 26.61
  gbar_evprox_1_L2Pyr_ampa: 0.01
steps:
  - start: 0
    end: 80
    num_sims: 30
    ranges:
      - name: t_evprox_1
        minval: 18.0
        maxval: 35.0
      - name: gbar_evprox_1_L2Pyr_ampa
        minval: 0.0
        maxval: 1.0
    weights:
      - start: 0
        end: 80
        weight: 1
`
	cfg, err := config.ParseConfigYAMLString(yamlText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	steps := StepsFromConfig(cfg)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}

	step := steps[0]
	if step.Start != 0 || step.End != 80 || step.NumSims != 30 {
		t.Fatalf("unexpected step shape: %+v", step)
	}
	if len(step.Ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(step.Ranges))
	}
	if step.Ranges[0].Name != "t_evprox_1" || step.Ranges[1].Name != "gbar_evprox_1_L2Pyr_ampa" {
		t.Fatalf("range order not preserved: %v, %v", step.Ranges[0].Name, step.Ranges[1].Name)
	}
	// Initial values default from the top-level parameter map.
	if step.Ranges[0].Initial != 26.61 {
		t.Fatalf("expected initial from parameters map, got %g", step.Ranges[0].Initial)
	}
	if len(step.Weights) != 1 || step.Weights[0].Weight != 1 {
		t.Fatalf("unexpected weights %v", step.Weights)
	}
}
