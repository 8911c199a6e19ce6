package sim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/yarikoptic/hnn/pkg/models"
)

func TestIsWorkerStartFailure(t *testing.T) {
	cases := []struct {
		name   string
		stderr string
		want   bool
	}{
		{"open mpi slots", "There are not enough slots available in the system", true},
		{"resources", "there are not enough resources on the node", true},
		{"allocation", "ORTE was unable to allocate the requested processes", true},
		{"hosts", "could not find enough hosts", true},
		{"mpi init", "MPI_INIT failed on rank 3", true},
		{"simulation crash", "NEURON: segmentation violation", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		if got := isWorkerStartFailure(tc.stderr); got != tc.want {
			t.Fatalf("%s: isWorkerStartFailure(%q) = %v, want %v", tc.name, tc.stderr, got, tc.want)
		}
	}
}

func TestReadResultsAveragesTrials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	out := invocationResult{
		Trials: []*models.Dipole{
			{Times: []float64{0, 1, 2}, Data: []float64{0, 2, 4}},
			{Times: []float64{0, 1, 2}, Data: []float64{2, 4, 6}},
		},
		Spikes: models.SpikeData{Times: []float64{0.5}, GIDs: []int{7}},
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := readResults(path, models.ParameterSet{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trials) != 2 {
		t.Fatalf("expected per-trial data to be retained, got %d", len(result.Trials))
	}
	wantAvg := []float64{1, 3, 5}
	for i, v := range wantAvg {
		if result.Dipole.Data[i] != v {
			t.Fatalf("average sample %d = %g, want %g", i, result.Dipole.Data[i], v)
		}
	}
	if len(result.Spikes.Times) != 1 || result.Spikes.GIDs[0] != 7 {
		t.Fatalf("spike data not carried through: %+v", result.Spikes)
	}
}

func TestReadResultsRejectsEmptyAndInvalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"trials":[]}`), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := readResults(empty, models.ParameterSet{}); err == nil {
		t.Fatalf("expected an error for zero trials")
	}

	invalid := filepath.Join(dir, "invalid.json")
	payload := `{"trials":[{"times":[2,1],"data":[0,0]}]}`
	if err := os.WriteFile(invalid, []byte(payload), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := readResults(invalid, models.ParameterSet{}); err == nil {
		t.Fatalf("expected an error for a non-increasing time base")
	}

	if _, err := readResults(filepath.Join(dir, "missing.json"), models.ParameterSet{}); err == nil {
		t.Fatalf("expected an error for a missing results file")
	}
}

func TestSpecDuration(t *testing.T) {
	if got := (Spec{TStop: 250}).Duration(); got != 250 {
		t.Fatalf("expected full duration, got %g", got)
	}
	if got := (Spec{TStop: 250, TruncateAt: 80}).Duration(); got != 80 {
		t.Fatalf("expected truncated duration, got %g", got)
	}
	if got := (Spec{TStop: 250, TruncateAt: 300}).Duration(); got != 250 {
		t.Fatalf("truncation beyond tstop must not extend the run, got %g", got)
	}
}
