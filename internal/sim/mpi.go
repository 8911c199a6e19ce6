package sim

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yarikoptic/hnn/pkg/logger"
	"github.com/yarikoptic/hnn/pkg/models"
)

// LineSink receives simulator status output line by line. The runner
// forwards these to the operator-facing progress stream.
type LineSink interface {
	Line(text string)
}

// MPISimulator invokes the worker executable under an MPI launcher and
// reads the resulting signals back from a JSON results file. One call maps
// to one `mpi_cmd -np <workers> <command> <args>` process tree.
type MPISimulator struct {
	MPICmd  string
	Command string
	Args    []string
	WorkDir string

	// Output receives the worker's stdout lines; may be nil.
	Output LineSink
}

// invocation input written for the worker, and the result shape it writes
// back. The worker contract: read --params <file>, write --results <file>.
type invocationInput struct {
	Params     models.ParameterSet `json:"params"`
	Trials     int                 `json:"trials"`
	TStop      float64             `json:"tstop"`
	TruncateAt float64             `json:"truncate_at,omitempty"`
	Seed       int64               `json:"seed"`
}

type invocationResult struct {
	Trials []*models.Dipole `json:"trials"`
	Spikes models.SpikeData `json:"spikes"`
}

// Simulate runs one simulation invocation to completion.
func (s *MPISimulator) Simulate(ctx context.Context, params models.ParameterSet, spec Spec) (*models.SimulationResult, error) {
	dir, err := os.MkdirTemp("", "hnn-sim-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paramsPath := filepath.Join(dir, "params.json")
	resultsPath := filepath.Join(dir, "results.json")

	input := invocationInput{
		Params:     params,
		Trials:     spec.Trials,
		TStop:      spec.TStop,
		TruncateAt: spec.TruncateAt,
		Seed:       spec.Seed,
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal simulation input: %w", err)
	}
	if err := os.WriteFile(paramsPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write simulation input: %w", err)
	}

	mpiCmd := s.MPICmd
	if mpiCmd == "" {
		mpiCmd = "mpiexec"
	}
	args := []string{"-np", strconv.Itoa(spec.Workers), s.Command}
	args = append(args, s.Args...)
	args = append(args, "--params", paramsPath, "--results", resultsPath)

	cmd := exec.CommandContext(ctx, mpiCmd, args...)
	cmd.Dir = s.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open simulator stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &WorkerStartError{Workers: spec.Workers, Cause: err}
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if s.Output != nil {
			s.Output.Line(line)
		}
		logger.Debug("simulator output", "line", line)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cause := fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
		if isWorkerStartFailure(stderr.String()) {
			return nil, &WorkerStartError{Workers: spec.Workers, Cause: cause}
		}
		return nil, cause
	}

	return readResults(resultsPath, params)
}

// isWorkerStartFailure classifies launcher stderr that indicates the MPI
// fan-out itself could not come up, as opposed to a simulation error.
func isWorkerStartFailure(stderr string) bool {
	text := strings.ToLower(stderr)
	for _, marker := range []string{
		"not enough slots",
		"there are not enough resources",
		"unable to allocate",
		"could not find enough",
		"mpi_init",
	} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func readResults(path string, params models.ParameterSet) (*models.SimulationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulation produced no results file: %w", err)
	}
	var out invocationResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse simulation results: %w", err)
	}
	if len(out.Trials) == 0 {
		return nil, fmt.Errorf("simulation results contain no trials")
	}
	for i, tr := range out.Trials {
		if err := tr.Validate(); err != nil {
			return nil, fmt.Errorf("trial %d invalid: %w", i, err)
		}
	}
	avg, err := models.AverageDipoles(out.Trials)
	if err != nil {
		return nil, fmt.Errorf("failed to average trials: %w", err)
	}
	return &models.SimulationResult{
		Params: params.Clone(),
		Dipole: avg,
		Trials: out.Trials,
		Spikes: out.Spikes,
	}, nil
}
