package facade

import (
	"testing"

	"github.com/tdat-dev/corengine/internal/model"
)

func hasIssue(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestDoctorFlagsNoRigsAndNoActors(t *testing.T) {
	_, f := newFixture(t)

	issues := f.Doctor()
	if !hasIssue(issues, IssueNoRigs) {
		t.Fatalf("expected NO_RIGS, got %+v", issues)
	}
	if !hasIssue(issues, IssueNoActors) {
		t.Fatalf("expected NO_ACTORS, got %+v", issues)
	}
}

func TestDoctorFlagsOrphanInProgressAndDanglingHook(t *testing.T) {
	state, f := newFixture(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig { return append(items, model.Rig{ID: "r1"}) })
	state.Actors.With(func(items []model.Actor) []model.Actor {
		return append(items, model.Actor{ActorID: "a1", RigID: "r1"})
	})
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", RigID: "r1", Status: model.TaskInProgress, AssignedWorkerID: "ghost"})
	})
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", RigID: "r1", CurrentWorkID: "missing-task"})
	})

	issues := f.Doctor()
	if !hasIssue(issues, IssueOrphanInProgress) {
		t.Fatalf("expected ORPHAN_IN_PROGRESS, got %+v", issues)
	}
	if !hasIssue(issues, IssueHookDanglingWork) {
		t.Fatalf("expected HOOK_DANGLING_WORK, got %+v", issues)
	}
}

func TestFixAppliesOrphanCleanupAndHookRepair(t *testing.T) {
	state, f := newFixture(t)
	state.Tasks.With(func(items []model.Task) []model.Task {
		return append(items, model.Task{ID: "t1", Status: model.TaskInProgress, AssignedWorkerID: "ghost"})
	})
	state.Hooks.With(func(items []model.Hook) []model.Hook {
		return append(items, model.Hook{HookID: "h1", CurrentWorkID: "missing-task"})
	})

	summaries := f.Fix()
	if len(summaries) != 2 {
		t.Fatalf("expected two fix summaries, got %+v", summaries)
	}

	task, _ := state.FindTask("t1")
	if task.Status != model.TaskTodo {
		t.Fatalf("expected task reset to Todo by Fix, got %+v", task)
	}
	hook, _ := state.FindHook("h1")
	if hook.CurrentWorkID != "" {
		t.Fatalf("expected hook repaired by Fix, got %+v", hook)
	}
}
