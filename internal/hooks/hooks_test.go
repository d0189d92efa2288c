package hooks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

// fakeSpawner stands in for the Worker Lifecycle Engine in dispatcher
// tests, recording the last prompt it was asked to run.
type fakeSpawner struct {
	lastPrompt string
	fail       error
}

func (f *fakeSpawner) SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt string, workerType model.WorkerType, actorID, customPath string) (*model.Worker, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.lastPrompt = initialPrompt
	return &model.Worker{ID: uuid.NewString(), CrewID: crewID, AgentType: agentType, Status: model.WorkerRunning}, nil
}

func newTestFixture(t *testing.T) (*corestate.State, *fakeSpawner, *Dispatcher) {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}

	rig := model.Rig{ID: "rig-1", Name: "demo", Path: "/tmp/demo"}
	crew := model.Crew{ID: "crew-1", RigID: rig.ID, Branch: "work", Path: "/tmp/demo-wt", Status: model.CrewActive}
	actor := model.Actor{ActorID: "actor-1", RigID: rig.ID, AgentType: "claude"}
	hook := model.Hook{HookID: "hook-1", RigID: rig.ID, AttachedActorID: actor.ActorID, Status: model.HookIdle}
	task := model.Task{ID: "task-1", RigID: rig.ID, Title: "Fix thing", Description: "Do the fixing", Status: model.TaskTodo}

	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, rig) })
	state.Crews.With(func(items []model.Crew) []model.Crew { return append(items, crew) })
	state.Actors.With(func(items []model.Actor) []model.Actor { return append(items, actor) })
	state.Hooks.With(func(items []model.Hook) []model.Hook { return append(items, hook) })
	state.Tasks.With(func(items []model.Task) []model.Task { return append(items, task) })

	spawner := &fakeSpawner{}
	return state, spawner, New(state, spawner)
}

func TestDispatchBindsHookAndAdvancesTask(t *testing.T) {
	state, spawner, d := newTestFixture(t)

	hook, err := d.Dispatch(context.Background(), "hook-1", "task-1", nil, "HookAssigned")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if hook.Status != model.HookRunning {
		t.Fatalf("expected hook Running, got %s", hook.Status)
	}
	if spawner.lastPrompt == "" {
		t.Fatalf("expected a prompt to have been built")
	}

	task, ok := state.FindTask("task-1")
	if !ok || task.Status != model.TaskInProgress {
		t.Fatalf("expected task InProgress, got %+v", task)
	}
}

func TestDispatchRejectsActiveLease(t *testing.T) {
	state, _, d := newTestFixture(t)
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			items[i].Status = model.HookRunning
			items[i].LeaseExpiresAt = model.RFC3339(time.Now().Add(time.Hour))
		}
		return items
	})

	_, err := d.Dispatch(context.Background(), "hook-1", "task-1", nil, "HookAssigned")
	if err == nil {
		t.Fatalf("expected HookLeased error")
	}
}

func TestDispatchMinimalReplyTaskPrompt(t *testing.T) {
	state, spawner, d := newTestFixture(t)
	state.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			items[i].Description = ""
			items[i].AcceptanceCriteria = "Fix thing"
		}
		return items
	})

	_, err := d.Dispatch(context.Background(), "hook-1", "task-1", nil, "HookAssigned")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if want := "Reply with exactly this text and nothing else:\nFix thing"; !strings.Contains(spawner.lastPrompt, want) {
		t.Fatalf("expected reply-only prompt, got %q", spawner.lastPrompt)
	}
}

func TestDoneTransitionsTaskAndResetsHook(t *testing.T) {
	state, spawner, d := newTestFixture(t)
	_, _ = spawner, d
	if _, err := d.Dispatch(context.Background(), "hook-1", "task-1", nil, "HookAssigned"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	outcome := "merged"
	hook, err := d.Done("hook-1", &outcome)
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if hook.Status != model.HookIdle || hook.CurrentWorkID != "" {
		t.Fatalf("expected hook reset to Idle, got %+v", hook)
	}

	task, _ := state.FindTask("task-1")
	if task.Status != model.TaskDone || task.Outcome != outcome {
		t.Fatalf("expected task Done with outcome, got %+v", task)
	}
}

func TestGetRigQueueCounts(t *testing.T) {
	_, _, d := newTestFixture(t)
	queue := d.GetRigQueue("rig-1")
	if queue.CountsByStatus[model.HookIdle] != 1 {
		t.Fatalf("expected one idle hook, got %+v", queue.CountsByStatus)
	}
	if len(queue.Hooks) != 1 || queue.Hooks[0].HookID != "hook-1" {
		t.Fatalf("unexpected hook snapshot: %+v", queue.Hooks)
	}
}
