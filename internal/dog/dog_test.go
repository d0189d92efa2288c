package dog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

func newFixture(t *testing.T) *corestate.State {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	return state
}

func TestBootSummarizesCounts(t *testing.T) {
	state := newFixture(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, model.Rig{ID: "r1"}) })
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", Status: model.TaskTodo})
	})

	summary := New(state).Boot()
	if !strings.Contains(summary, "1 rigs") {
		t.Fatalf("expected summary to mention 1 rig, got %q", summary)
	}
}

func TestHealthCheckMarksDeadPIDFailed(t *testing.T) {
	state := newFixture(t)
	state.Workers.With(func(items []model.Worker) []model.Worker {
		return append(items, model.Worker{ID: "w1", Status: model.WorkerRunning, PID: 999999})
	})

	New(state).HealthCheck()

	worker, _ := state.FindWorker("w1")
	if worker.Status != model.WorkerFailed {
		t.Fatalf("expected worker marked Failed, got %+v", worker)
	}
}

func TestLogRotationRenamesOversizedLogs(t *testing.T) {
	state := newFixture(t)
	logPath := filepath.Join(state.Store.Path("logs"), "worker-1.jsonl")
	big := make([]byte, logRotationSize+1)
	if err := os.WriteFile(logPath, big, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	New(state).LogRotation()

	if _, err := os.Stat(logPath + ".gz_bak"); err != nil {
		t.Fatalf("expected rotated file to exist: %v", err)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatalf("expected original log to be gone, err=%v", err)
	}
}

func TestOrphanCleanupResetsTasksWithDeadWorkers(t *testing.T) {
	state := newFixture(t)
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", Status: model.TaskInProgress, AssignedWorkerID: "ghost"})
	})

	New(state).OrphanCleanup()

	task, _ := state.FindTask("t1")
	if task.Status != model.TaskTodo || task.AssignedWorkerID != "" {
		t.Fatalf("expected task reset to Todo, got %+v", task)
	}
}

func TestHookRepairClearsDanglingHooks(t *testing.T) {
	state := newFixture(t)
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", Status: model.HookRunning, CurrentWorkID: "missing", LastHeartbeat: model.RFC3339(time.Now())})
	})

	New(state).HookRepair()

	hook, _ := state.FindHook("h1")
	if hook.Status != model.HookIdle || hook.CurrentWorkID != "" {
		t.Fatalf("expected hook repaired to Idle, got %+v", hook)
	}
}
