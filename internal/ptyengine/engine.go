// Package ptyengine implements the Worker Lifecycle Engine: it spawns an
// interactive CLI coding agent against a crew's worktree, either behind a
// real pseudo-terminal (the default, grounded on github.com/creack/pty) or,
// on the one documented platform exception, as a direct non-interactive
// subprocess, and supervises it through to completion.
package ptyengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/git"
	"github.com/tdat-dev/corengine/internal/model"
)

var errNoWritableStdin = errors.New("ptyengine: worker has no writable stdin")

// Engine is the process-wide Worker Lifecycle Engine. One Engine is created
// per running core process; it owns the registry of live process handles
// that the Persistent Store cannot represent on disk.
type Engine struct {
	state  *corestate.State
	reg    *registry
	Events *Broadcaster
}

// New wires an Engine to state. state must already be open.
func New(state *corestate.State) *Engine {
	return &Engine{state: state, reg: newRegistry(), Events: newBroadcaster()}
}

// SpawnWorker validates crewID and agentType, resolves the agent's CLI
// path, builds its command line, and starts it — behind a PTY by default,
// or as a direct subprocess for the one documented exception
// (shouldUseNonPTYSpawn). On success it persists a Worker row, emits
// WorkerSpawned, and starts the background goroutine that captures output
// through to finalization.
func (e *Engine) SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt string, workerType model.WorkerType, actorID, customPath string) (*model.Worker, error) {
	crew, ok := e.state.FindCrew(crewID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "crew %s not found", crewID)
	}
	if crew.Status != model.CrewActive {
		return nil, corerr.Wrap(corerr.PreconditionFailed, "crew %s is not active", crewID)
	}
	if strings.TrimSpace(agentType) == "" {
		return nil, corerr.Wrap(corerr.ValidationFailed, "agent_type is required")
	}

	cliPath, err := resolveAgentPath(agentType, customPath)
	if err != nil {
		return nil, fmt.Errorf("resolving cli for %s: %w", agentType, &corerr.AgentNotFound{AgentType: agentType})
	}

	now := corestate.Now()
	worker := model.Worker{
		ID:        uuid.NewString(),
		RigID:     crew.RigID,
		CrewID:    crew.ID,
		AgentType: agentType,
		ActorID:   actorID,
		Type:      workerType,
		Status:    model.WorkerRunning,
		StartedAt: model.RFC3339(now),
	}

	var (
		cmd  *exec.Cmd
		ptmx *os.File
	)

	if shouldUseNonPTYSpawn(agentType, initialPrompt) {
		cmd = exec.CommandContext(ctx, cliPath, nonPTYArgs(initialPrompt)...)
		cmd.Dir = crew.Path
		cmd.Env = os.Environ()
		stdout, perr := cmd.StdoutPipe()
		if perr != nil {
			return nil, corerr.Wrap(corerr.SpawnFailed, "stdout pipe: %v", perr)
		}
		cmd.Stderr = cmd.Stdout
		if perr := cmd.Start(); perr != nil {
			return nil, corerr.Wrap(corerr.SpawnFailed, "start %s: %v", agentType, perr)
		}
		handle := newLiveHandle(worker.ID, cmd, nil)
		e.reg.put(handle)
		go e.captureAndFinalize(handle, &worker, stdout)
	} else {
		promptFile, werr := writePromptFile(worker.ID, initialPrompt)
		if werr != nil {
			return nil, corerr.Wrap(corerr.SpawnFailed, "writing prompt file: %v", werr)
		}
		shellCmd := buildAgentCommand(cliPath, agentType, initialPrompt, promptFile)
		cmd = exec.CommandContext(ctx, interactiveShell())
		cmd.Dir = crew.Path
		cmd.Env = os.Environ()
		setProcessGroup(cmd)

		f, perr := pty.StartWithSize(cmd, defaultWinsize())
		if perr != nil {
			return nil, corerr.Wrap(corerr.SpawnFailed, "pty start %s: %v", agentType, perr)
		}
		ptmx = f
		if _, werr := ptmx.Write([]byte(shellCmd + "\n")); werr != nil {
			e.state.Log.Printf("[ptyengine] writing command for worker %s: %v", worker.ID, werr)
		}
		handle := newLiveHandle(worker.ID, cmd, ptmx)
		e.reg.put(handle)
		go e.captureAndFinalize(handle, &worker, ptmx)
	}

	worker.PID = cmd.Process.Pid
	e.state.Workers.With(func(items []model.Worker) []model.Worker {
		return append(items, worker)
	})
	if err := e.state.Workers.Save(); err != nil {
		e.state.Log.Printf("[ptyengine] persisting worker %s: %v", worker.ID, err)
	}
	e.state.Audit.Emit(worker.RigID, worker.ActorID, "", audit.WorkerSpawned, map[string]string{
		"worker_id":  worker.ID,
		"agent_type": agentType,
	})

	return &worker, nil
}

// defaultWinsize resolves a sane PTY window size from the controlling
// terminal's own dimensions, falling back to a fixed size when stdout isn't
// a terminal (e.g. under a supervisor with no attached console).
func defaultWinsize() *pty.Winsize {
	cols, rows := 120, 40
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}
	return &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}
}

// writePromptFile writes prompt verbatim (unsanitized — the reading CLI is
// expected to handle arbitrary text) to a per-worker temp file and returns
// its path.
func writePromptFile(workerID, prompt string) (string, error) {
	path := fmt.Sprintf("%s%ccorengine-prompt-%s.txt", os.TempDir(), os.PathSeparator, workerID)
	return path, os.WriteFile(path, []byte(prompt), 0o600)
}

// captureAndFinalize reads reader line by line, stripping ANSI escapes,
// persisting each line to the worker's on-disk log and in-memory ring, and
// runs the finalization sequence once the process exits. Lines are appended
// to disk as they arrive rather than buffered for a single flush at exit;
// this costs one small write per line but means a crash mid-run loses
// nothing, and it gives finalize's synthetic failure entry somewhere to go.
func (e *Engine) captureAndFinalize(h *liveHandle, worker *model.Worker, reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		clean := stripANSI(scanner.Text())
		h.ring.Append(clean)
		entry := model.LogEntry{
			Timestamp: model.RFC3339(corestate.Now()),
			Stream:    "stdout",
			Line:      clean,
		}
		if err := e.state.Store.AppendWorkerLogLine(h.workerID, entry); err != nil {
			e.state.Log.Printf("[ptyengine] logging worker %s: %v", h.workerID, err)
		}
		e.Events.publish(Event{Kind: EventWorkerPTYData, WorkerID: h.workerID, Data: clean})
		e.Events.publish(Event{Kind: EventWorkerLog, WorkerID: h.workerID, LogEntry: entry})
	}

	waitErr := h.cmd.Wait()
	h.markStopped()
	e.finalize(h, worker, waitErr)
	e.reg.remove(h.workerID)
}

// finalize runs the Worker Lifecycle Engine's completion sequence:
//  1. determine the terminal WorkerStatus from the process's exit state
//  2. on Failed, append a synthetic stderr LogEntry describing why
//  3. stamp StoppedAt and persist the Worker row
//  4. locate the most recent Run recorded against this worker, if any
//  5. compute the worktree diff stat for that run's crew, best-effort
//  6. stamp the Run's exit code, finish time and diff stat
//  7. mark the Run Completed, Failed, or Cancelled (for a Stopped worker)
//     to match the worker's outcome
//  8. persist the Run
//  9. emit the matching WorkerCompleted/WorkerFailed/WorkerStopped audit
//     event, then publish worker-status and data-changed events
//  10. if this was a Polecat, garbage-collect its auto-created crew
func (e *Engine) finalize(h *liveHandle, worker *model.Worker, waitErr error) {
	status := model.WorkerCompleted
	exitCode := 0
	hadExitCode := true
	if waitErr != nil {
		status = model.WorkerFailed
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			hadExitCode = false
		}
	}

	current, ok := e.state.FindWorker(worker.ID)
	if ok && current.Status == model.WorkerStopped {
		status = model.WorkerStopped
	}

	if status == model.WorkerFailed {
		msg := fmt.Sprintf("Process exited with non-zero code: %d", exitCode)
		if !hadExitCode {
			msg = "Process terminated unexpectedly (no exit code)"
		}
		h.ring.Append(msg)
		entry := model.LogEntry{
			Timestamp: model.RFC3339(corestate.Now()),
			Stream:    "stderr",
			Line:      msg,
		}
		if err := e.state.Store.AppendWorkerLogLine(worker.ID, entry); err != nil {
			e.state.Log.Printf("[ptyengine] logging failure entry for worker %s: %v", worker.ID, err)
		}
	}

	now := corestate.Now()
	e.state.Workers.With(func(items []model.Worker) []model.Worker {
		for i := range items {
			if items[i].ID == worker.ID {
				items[i].Status = status
				items[i].StoppedAt = model.RFC3339(now)
			}
		}
		return items
	})
	if err := e.state.Workers.Save(); err != nil {
		e.state.Log.Printf("[ptyengine] persisting worker %s finalization: %v", worker.ID, err)
	}

	run, hasRun := e.state.FindRunByWorker(worker.ID)
	if hasRun && run.Status == model.RunRunning {
		diffStat := ""
		if crew, ok := e.state.FindCrew(worker.CrewID); ok {
			if d, derr := git.NewGit(crew.Path).DiffStat(); derr == nil {
				diffStat = d
			}
		}
		runStatus := model.RunCompleted
		if status == model.WorkerFailed {
			runStatus = model.RunFailed
		} else if status == model.WorkerStopped {
			runStatus = model.RunCancelled
		}
		ec := exitCode
		e.state.Runs.With(func(items []model.Run) []model.Run {
			for i := range items {
				if items[i].ID == run.ID {
					items[i].Status = runStatus
					items[i].FinishedAt = model.RFC3339(now)
					items[i].ExitCode = &ec
					items[i].DiffStats = diffStat
				}
			}
			return items
		})
		if err := e.state.Runs.Save(); err != nil {
			e.state.Log.Printf("[ptyengine] persisting run %s finalization: %v", run.ID, err)
		}
	}

	eventType := audit.WorkerCompleted
	if status == model.WorkerFailed {
		eventType = audit.WorkerFailed
	} else if status == model.WorkerStopped {
		eventType = audit.WorkerStopped
	}
	e.state.Audit.Emit(worker.RigID, worker.ActorID, "", eventType, map[string]interface{}{
		"worker_id": worker.ID,
		"exit_code": exitCode,
	})

	e.Events.publish(Event{Kind: EventWorkerStatus, WorkerID: worker.ID, Status: string(status)})
	e.Events.publish(Event{Kind: EventDataChanged})

	if worker.Type == model.WorkerPolecat {
		e.gcPolecatCrew(worker.CrewID)
	}
}

// gcPolecatCrew tears down a Polecat's auto-created crew on worker exit:
// unlink the worktree, delete its branch, then soft-delete the crew row.
// Every step is best-effort — a failure here never fails finalize.
func (e *Engine) gcPolecatCrew(crewID string) {
	crew, ok := e.state.FindCrew(crewID)
	if !ok {
		return
	}
	rig, ok := e.state.FindRig(crew.RigID)
	if !ok {
		return
	}
	repo := git.NewGit(rig.Path)
	if err := repo.RemoveWorktree(crew.Path); err != nil {
		e.state.Log.Printf("[ptyengine] removing polecat worktree for crew %s: %v", crewID, err)
	}
	if err := repo.DeleteBranch(crew.Branch); err != nil {
		e.state.Log.Printf("[ptyengine] deleting polecat branch for crew %s: %v", crewID, err)
	}
	e.state.Crews.With(func(items []model.Crew) []model.Crew {
		for i := range items {
			if items[i].ID == crewID {
				items[i].Status = model.CrewRemoved
			}
		}
		return items
	})
	if err := e.state.Crews.Save(); err != nil {
		e.state.Log.Printf("[ptyengine] persisting polecat crew removal %s: %v", crewID, err)
	}
}

// StopWorker marks workerID Stopped and kills its process tree. The
// captureAndFinalize goroutine observes the exit and completes finalize;
// StopWorker only needs to record the intent before the kill so finalize
// reports Stopped rather than Failed.
func (e *Engine) StopWorker(workerID string) error {
	h, ok := e.reg.get(workerID)
	if !ok {
		return corerr.Wrap(corerr.ResourceNotFound, "worker %s has no live handle", workerID)
	}

	e.state.Workers.With(func(items []model.Worker) []model.Worker {
		for i := range items {
			if items[i].ID == workerID {
				items[i].Status = model.WorkerStopped
			}
		}
		return items
	})
	if err := e.state.Workers.Save(); err != nil {
		e.state.Log.Printf("[ptyengine] persisting stop for worker %s: %v", workerID, err)
	}

	if h.cmd.Process == nil {
		return nil
	}
	return killProcessTree(h.cmd.Process.Pid)
}

// DeleteWorker stops the worker if still live and removes its row from the
// store.
func (e *Engine) DeleteWorker(workerID string) error {
	if _, ok := e.reg.get(workerID); ok {
		if err := e.StopWorker(workerID); err != nil {
			e.state.Log.Printf("[ptyengine] stopping worker %s before delete: %v", workerID, err)
		}
	}
	e.state.Workers.With(func(items []model.Worker) []model.Worker {
		out := items[:0]
		for _, w := range items {
			if w.ID != workerID {
				out = append(out, w)
			}
		}
		return out
	})
	return e.state.Workers.Save()
}

// ResizeWorkerPTY propagates a terminal resize to the worker's PTY, if any.
func (e *Engine) ResizeWorkerPTY(workerID string, cols, rows uint16) error {
	h, ok := e.reg.get(workerID)
	if !ok {
		return corerr.Wrap(corerr.ResourceNotFound, "worker %s has no live handle", workerID)
	}
	return h.Resize(cols, rows)
}

// WriteToWorker forwards data to the worker's stdin/PTY.
func (e *Engine) WriteToWorker(workerID string, data []byte) error {
	h, ok := e.reg.get(workerID)
	if !ok {
		return corerr.Wrap(corerr.ResourceNotFound, "worker %s has no live handle", workerID)
	}
	return h.Write(data)
}

// GetWorkerLogs returns the in-memory ring of captured lines for workerID,
// or an error if no live handle exists (a completed worker's full history
// lives on disk under the Persistent Store's log directory instead).
func (e *Engine) GetWorkerLogs(workerID string) ([]string, error) {
	h, ok := e.reg.get(workerID)
	if !ok {
		return nil, corerr.Wrap(corerr.ResourceNotFound, "worker %s has no live handle", workerID)
	}
	return h.Snapshot(), nil
}
