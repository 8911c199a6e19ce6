// Package supervisor finds and forcibly terminates stale simulation worker
// processes left behind by a failed or cancelled invocation.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/yarikoptic/hnn/pkg/logger"
)

// defaultGrace is how long a worker gets to exit after each signal before
// escalation.
const defaultGrace = 3 * time.Second

// CleanupIncompleteError reports worker processes that survived both the
// terminate and kill passes. Callers must surface this to the operator; it
// is an environment error, not something to retry.
type CleanupIncompleteError struct {
	PIDs []int32
}

func (e *CleanupIncompleteError) Error() string {
	pids := make([]string, len(e.PIDs))
	for i, pid := range e.PIDs {
		pids[i] = fmt.Sprintf("%d", pid)
	}
	return "failed to kill worker process(es) " + strings.Join(pids, ",")
}

// Supervisor terminates stale worker processes matched by executable name.
type Supervisor struct {
	// WorkerName is the executable/command-line signature to match,
	// e.g. "nrniv".
	WorkerName string
	// Grace bounds each wait between signal and escalation. Zero means
	// the default 3s.
	Grace time.Duration
}

// New returns a supervisor for the given worker executable name.
func New(workerName string) *Supervisor {
	return &Supervisor{WorkerName: workerName, Grace: defaultGrace}
}

// TerminateStale enumerates matching worker processes, terminates them,
// escalates to kill for any that survive the grace period, and returns the
// PIDs still alive afterwards. A non-empty return comes wrapped in a
// *CleanupIncompleteError.
func (s *Supervisor) TerminateStale(ctx context.Context) ([]int32, error) {
	procs, err := s.findWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}
	if len(procs) == 0 {
		return nil, nil
	}

	logger.Info("terminating stale worker processes", "worker", s.WorkerName, "count", len(procs))

	for _, p := range procs {
		// The process may exit between enumeration and signal.
		if err := p.TerminateWithContext(ctx); err != nil {
			logger.Debug("terminate failed", "pid", p.Pid, "error", err)
		}
	}
	alive := s.waitGone(ctx, procs)

	for _, p := range alive {
		if err := p.KillWithContext(ctx); err != nil {
			logger.Debug("kill failed", "pid", p.Pid, "error", err)
		}
	}
	alive = s.waitGone(ctx, alive)

	if len(alive) == 0 {
		return nil, nil
	}
	pids := make([]int32, len(alive))
	for i, p := range alive {
		pids[i] = p.Pid
	}
	return pids, &CleanupIncompleteError{PIDs: pids}
}

// findWorkers returns the running processes matching the worker signature.
func (s *Supervisor) findWorkers(ctx context.Context) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*process.Process
	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		if MatchesWorker(s.WorkerName, name, exe, cmdline) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// MatchesWorker reports whether a process identified by name, executable
// path and command line is a simulation worker.
func MatchesWorker(worker, name, exe string, cmdline []string) bool {
	if worker == "" {
		return false
	}
	if name == worker {
		return true
	}
	if exe != "" && filepath.Base(exe) == worker {
		return true
	}
	if len(cmdline) > 0 && filepath.Base(cmdline[0]) == worker {
		return true
	}
	return false
}

// waitGone polls the given processes until they are gone or the grace
// period elapses, returning the survivors.
func (s *Supervisor) waitGone(ctx context.Context, procs []*process.Process) []*process.Process {
	grace := s.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	deadline := time.Now().Add(grace)

	remaining := procs
	for len(remaining) > 0 && time.Now().Before(deadline) {
		var alive []*process.Process
		for _, p := range remaining {
			running, err := p.IsRunningWithContext(ctx)
			if err == nil && running {
				alive = append(alive, p)
			}
		}
		remaining = alive
		if len(remaining) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return remaining
		case <-time.After(100 * time.Millisecond):
		}
	}
	return remaining
}
