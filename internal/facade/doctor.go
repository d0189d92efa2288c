package facade

import (
	"strconv"

	"github.com/tdat-dev/corengine/internal/model"
)

// Issue is one Doctor finding: a closed issue code paired with a
// human-readable detail.
type Issue struct {
	Code   string
	Detail string
}

// Doctor issue codes. HOOK_DANGLING_WORK covers the same condition
// internal/dog.HookRepair fixes.
const (
	IssueNoRigs           = "NO_RIGS"
	IssueDefaultCLIEmpty  = "DEFAULT_CLI_EMPTY"
	IssueFailedWorkers    = "FAILED_WORKERS"
	IssueOrphanInProgress = "ORPHAN_IN_PROGRESS"
	IssueHookNoTask       = "HOOK_NO_TASK"
	IssueNoActors         = "NO_ACTORS"
	IssueHookDanglingWork = "HOOK_DANGLING_WORK"
)

// Doctor is a read-only analyzer: it never mutates state, only reports.
func (f *Facade) Doctor() []Issue {
	var issues []Issue

	rigs := f.State.Rigs.Snapshot()
	if len(rigs) == 0 {
		issues = append(issues, Issue{Code: IssueNoRigs, Detail: "no rigs registered"})
	}

	settings := f.State.Settings.Get()
	if settings.DefaultCLI == "" {
		issues = append(issues, Issue{Code: IssueDefaultCLIEmpty, Detail: "settings.default_cli is empty"})
	}

	failed := 0
	for _, w := range f.State.Workers.Snapshot() {
		if w.Status == model.WorkerFailed {
			failed++
		}
	}
	if failed > 0 {
		issues = append(issues, Issue{Code: IssueFailedWorkers, Detail: pluralCount(failed, "worker") + " in Failed status"})
	}

	running := map[string]bool{}
	for _, w := range f.State.Workers.Snapshot() {
		if w.Status == model.WorkerRunning {
			running[w.ID] = true
		}
	}
	orphans := 0
	for _, t := range f.State.Tasks.Snapshot() {
		if t.Status == model.TaskInProgress && (t.AssignedWorkerID == "" || !running[t.AssignedWorkerID]) {
			orphans++
		}
	}
	if orphans > 0 {
		issues = append(issues, Issue{Code: IssueOrphanInProgress, Detail: pluralCount(orphans, "task") + " InProgress with no running worker"})
	}

	tasks := map[string]bool{}
	for _, t := range f.State.Tasks.Snapshot() {
		tasks[t.ID] = true
	}
	danglingHooks, noTaskHooks := 0, 0
	for _, h := range f.State.Hooks.Snapshot() {
		if h.CurrentWorkID == "" {
			continue
		}
		if !tasks[h.CurrentWorkID] {
			danglingHooks++
		} else if h.Status == model.HookIdle {
			noTaskHooks++
		}
	}
	if danglingHooks > 0 {
		issues = append(issues, Issue{Code: IssueHookDanglingWork, Detail: pluralCount(danglingHooks, "hook") + " point at a nonexistent task"})
	}
	if noTaskHooks > 0 {
		issues = append(issues, Issue{Code: IssueHookNoTask, Detail: pluralCount(noTaskHooks, "hook") + " Idle but still carry a work item"})
	}

	if len(f.State.Actors.Snapshot()) == 0 {
		issues = append(issues, Issue{Code: IssueNoActors, Detail: "no actors registered"})
	}

	return issues
}

// Fix applies the subset of Doctor's findings that have a safe automatic
// repair: orphaned InProgress tasks and dangling hooks, via internal/dog.
func (f *Facade) Fix() []string {
	return []string{
		f.Dogs.OrphanCleanup(),
		f.Dogs.HookRepair(),
	}
}

func pluralCount(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
