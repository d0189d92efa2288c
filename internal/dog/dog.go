// Package dog implements the janitorial tasks: short-lived in-process
// diagnostic/repair runs, not child processes. Dogs are not Workers, but
// share the audit channel under a dog id.
package dog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

// logRotationSize is the .jsonl size threshold that triggers rotation.
const logRotationSize = 5 * 1024 * 1024

// Kennel runs short-lived janitorial tasks against shared state.
type Kennel struct {
	state *corestate.State
}

// New wires a Kennel to state.
func New(state *corestate.State) *Kennel {
	return &Kennel{state: state}
}

func (k *Kennel) emit(rigID, dogID, summary string) {
	k.state.Audit.Emit(rigID, "", dogID, audit.WorkerCompleted, map[string]string{"dog": dogID, "summary": summary})
}

func newDogID() string { return "dog-" + uuid.NewString() }

// Boot summarizes fleet counts: rigs, crews, tasks by status, running
// workers.
func (k *Kennel) Boot() string {
	dogID := newDogID()
	rigs := k.state.Rigs.Snapshot()
	crews := k.state.Crews.Snapshot()
	tasks := k.state.Tasks.Snapshot()
	workers := k.state.Workers.Snapshot()

	byStatus := map[model.TaskStatus]int{}
	for _, t := range tasks {
		byStatus[t.Status]++
	}
	running := 0
	for _, w := range workers {
		if w.Status == model.WorkerRunning {
			running++
		}
	}

	summary := fmt.Sprintf("%d rigs, %d crews, %d tasks (todo=%d in_progress=%d), %d workers running",
		len(rigs), len(crews), len(tasks), byStatus[model.TaskTodo], byStatus[model.TaskInProgress], running)
	k.emit("", dogID, summary)
	return summary
}

// HealthCheck marks Running workers whose PID no longer exists as Failed.
func (k *Kennel) HealthCheck() string {
	dogID := newDogID()
	marked := 0

	k.state.Workers.With(func(items []model.Worker) []model.Worker {
		for i := range items {
			if items[i].Status != model.WorkerRunning || items[i].PID == 0 {
				continue
			}
			if !pidAlive(items[i].PID) {
				items[i].Status = model.WorkerFailed
				items[i].StoppedAt = model.RFC3339(time.Now())
				marked++
			}
		}
		return items
	})

	summary := fmt.Sprintf("%d worker(s) marked Failed after a dead-PID check", marked)
	k.emit("", dogID, summary)
	return summary
}

// LogRotation renames any .jsonl log exceeding logRotationSize to
// .jsonl.gz_bak. This is a naive rename, not real compression.
func (k *Kennel) LogRotation() string {
	dogID := newDogID()
	dir := k.state.Store.Path("logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		summary := fmt.Sprintf("log rotation skipped: %v", err)
		k.emit("", dogID, summary)
		return summary
	}

	rotated := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil || info.Size() <= logRotationSize {
			continue
		}
		src := filepath.Join(dir, e.Name())
		dst := src + ".gz_bak"
		if err := os.Rename(src, dst); err == nil {
			rotated++
		}
	}

	summary := fmt.Sprintf("%d log file(s) rotated", rotated)
	k.emit("", dogID, summary)
	return summary
}

// OrphanCleanup resets InProgress tasks whose assigned worker is not Running
// back to Todo.
func (k *Kennel) OrphanCleanup() string {
	dogID := newDogID()
	running := map[string]bool{}
	for _, w := range k.state.Workers.Snapshot() {
		if w.Status == model.WorkerRunning {
			running[w.ID] = true
		}
	}

	reset := 0
	k.state.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			if items[i].Status != model.TaskInProgress {
				continue
			}
			if items[i].AssignedWorkerID != "" && running[items[i].AssignedWorkerID] {
				continue
			}
			items[i].Status = model.TaskTodo
			items[i].AssignedWorkerID = ""
			items[i].UpdatedAt = model.RFC3339(time.Now())
			reset++
		}
		return items
	})

	summary := fmt.Sprintf("%d orphaned InProgress task(s) reset to Todo", reset)
	k.emit("", dogID, summary)
	return summary
}

// HookRepair clears hooks pointing at nonexistent tasks.
func (k *Kennel) HookRepair() string {
	dogID := newDogID()
	tasks := map[string]bool{}
	for _, t := range k.state.Tasks.Snapshot() {
		tasks[t.ID] = true
	}

	repaired := 0
	k.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].CurrentWorkID == "" || tasks[items[i].CurrentWorkID] {
				continue
			}
			items[i].CurrentWorkID = ""
			items[i].Status = model.HookIdle
			items[i].WorkerID = ""
			items[i].LeaseToken = ""
			items[i].LeaseExpiresAt = ""
			repaired++
		}
		return items
	})

	summary := fmt.Sprintf("%d dangling hook(s) repaired", repaired)
	k.emit("", dogID, summary)
	return summary
}
