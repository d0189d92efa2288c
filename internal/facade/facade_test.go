package facade

import (
	"testing"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

func newFixture(t *testing.T) (*corestate.State, *Facade) {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	return state, New(state)
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	state, f := newFixture(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, model.Rig{ID: "r1"}) })

	if _, err := f.CreateTask("r1", "", "desc", model.PriorityLow); err == nil {
		t.Fatalf("expected an error for empty title")
	}
}

func TestCreateTaskAppendsTodoRow(t *testing.T) {
	state, f := newFixture(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, model.Rig{ID: "r1"}) })

	task, err := f.CreateTask("r1", "Fix the thing", "details", model.PriorityHigh)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != model.TaskTodo {
		t.Fatalf("expected Todo status, got %+v", task)
	}
	if len(state.Tasks.Snapshot()) != 1 {
		t.Fatalf("expected one task persisted")
	}
}

func TestUpdateTaskStatusSetsAndClearsCompletedAt(t *testing.T) {
	state, f := newFixture(t)
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", Status: model.TaskTodo})
	})

	if err := f.UpdateTaskStatus("t1", model.TaskDone); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	task, _ := state.FindTask("t1")
	if task.CompletedAt == "" {
		t.Fatalf("expected completed_at to be set on Done")
	}

	if err := f.UpdateTaskStatus("t1", model.TaskTodo); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	task, _ = state.FindTask("t1")
	if task.CompletedAt != "" {
		t.Fatalf("expected completed_at cleared on leaving Done")
	}
}
