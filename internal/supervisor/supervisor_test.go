package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

type fakeSpawner struct {
	spawned []string
	written []string
}

func (f *fakeSpawner) SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt string, workerType model.WorkerType, actorID, customPath string) (*model.Worker, error) {
	f.spawned = append(f.spawned, crewID)
	return &model.Worker{ID: "worker-new", CrewID: crewID, Status: model.WorkerRunning, Type: workerType, StartedAt: model.RFC3339(time.Now())}, nil
}

func (f *fakeSpawner) WriteToWorker(workerID string, data []byte) error {
	f.written = append(f.written, workerID)
	return nil
}

func newFixture(t *testing.T) (*corestate.State, *Supervisor) {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	sup := New(state, &fakeSpawner{}, nil)
	return state, sup
}

func TestReconcileQueueClearsMissingTaskHook(t *testing.T) {
	state, sup := newFixture(t)
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", RigID: "r1", Status: model.HookAssigned, CurrentWorkID: "missing-task"})
	})

	decisions := sup.ReconcileQueue("")
	if len(decisions) != 1 || decisions[0].Kind != "cleared" || decisions[0].Reason != "missing_task" {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}

	hook, _ := state.FindHook("h1")
	if hook.Status != model.HookIdle || hook.CurrentWorkID != "" {
		t.Fatalf("expected hook reset to Idle, got %+v", hook)
	}
}

func TestReconcileQueueRequeuesWhenWorkerNotRunning(t *testing.T) {
	state, sup := newFixture(t)
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", RigID: "r1", Status: model.TaskInProgress, AssignedWorkerID: "ghost-worker"})
	})
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", RigID: "r1", Status: model.HookRunning, CurrentWorkID: "t1"})
	})

	decisions := sup.ReconcileQueue("")
	if len(decisions) != 1 || decisions[0].Kind != "requeued" || decisions[0].Reason != "worker_not_running" {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}

	hook, _ := state.FindHook("h1")
	if hook.Status != model.HookAssigned || hook.WorkerID != "" {
		t.Fatalf("expected hook requeued to Assigned, got %+v", hook)
	}
	task, _ := state.FindTask("t1")
	if task.Status != model.TaskEscalated || !strings.Contains(task.BlockedReason, "worker_not_running") {
		t.Fatalf("expected task Escalated with a blocked reason naming the cause, got %+v", task)
	}
}

func TestReconcileQueueNoOpWhenHealthy(t *testing.T) {
	state, sup := newFixture(t)
	state.Workers.With(func(items []model.Worker) []model.Worker {
		return append(items, model.Worker{ID: "w1", RigID: "r1", Status: model.WorkerRunning})
	})
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", RigID: "r1", Status: model.TaskInProgress, AssignedWorkerID: "w1"})
	})
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", RigID: "r1", Status: model.HookRunning, CurrentWorkID: "t1"})
	})

	if decisions := sup.ReconcileQueue(""); len(decisions) != 0 {
		t.Fatalf("expected no decisions, got %+v", decisions)
	}
}

func TestCompactStateRemovesOldStoppedWorkers(t *testing.T) {
	state, sup := newFixture(t)
	old := model.RFC3339(time.Now().AddDate(0, 0, -10))
	recent := model.RFC3339(time.Now())
	state.Workers.With(func(items []model.Worker) []model.Worker {
		return append(items,
			model.Worker{ID: "old", Status: model.WorkerCompleted, StoppedAt: old},
			model.Worker{ID: "recent", Status: model.WorkerCompleted, StoppedAt: recent},
		)
	})
	state.Runs.With(func(items []model.Run) []model.Run {
		return append(items, model.Run{ID: "run-old", WorkerID: "old"}, model.Run{ID: "run-recent", WorkerID: "recent"})
	})

	sup.CompactState("", 7)

	workers := state.Workers.Snapshot()
	if len(workers) != 1 || workers[0].ID != "recent" {
		t.Fatalf("expected only the recent worker to survive, got %+v", workers)
	}
	runs := state.Runs.Snapshot()
	if len(runs) != 1 || runs[0].WorkerID != "recent" {
		t.Fatalf("expected only the recent run to survive, got %+v", runs)
	}
}

func TestPropelSpawnsForIdleRigWithTodoWork(t *testing.T) {
	state, sup := newFixture(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, model.Rig{ID: "r1"}) })
	state.Crews.With(func(items []model.Crew) []model.Crew {
		return append(items, model.Crew{ID: "c1", RigID: "r1", Status: model.CrewActive})
	})
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", RigID: "r1", Status: model.TaskTodo, CreatedAt: model.RFC3339(time.Now())})
	})

	spawner := &fakeSpawner{}
	sup.spawner = spawner
	sup.propel()

	if len(spawner.spawned) != 1 || spawner.spawned[0] != "c1" {
		t.Fatalf("expected one propulsion spawn against crew c1, got %+v", spawner.spawned)
	}
}
