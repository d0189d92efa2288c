// Package facade implements the Command Facade: the single surface the
// outer shell calls, composing every other internal package behind a small
// set of operations — rig/crew/task CRUD, worker and hook dispatch, and
// supervisor/refinery control — for a CLI or plugin host to call.
package facade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/crew"
	"github.com/tdat-dev/corengine/internal/dog"
	"github.com/tdat-dev/corengine/internal/hooks"
	"github.com/tdat-dev/corengine/internal/model"
	"github.com/tdat-dev/corengine/internal/ptyengine"
	"github.com/tdat-dev/corengine/internal/refinery"
	"github.com/tdat-dev/corengine/internal/rig"
	"github.com/tdat-dev/corengine/internal/supervisor"
	"github.com/tdat-dev/corengine/internal/templates"
)

// Facade is the one handle the outer shell holds.
type Facade struct {
	State      *corestate.State
	Rigs       *rig.Registrar
	Crews      *crew.Orchestrator
	Workers    *ptyengine.Engine
	Hooks      *hooks.Dispatcher
	Supervisor *supervisor.Supervisor
	Refinery   *refinery.Engineer
	Dogs       *dog.Kennel
}

// New wires every component against a single shared State.
func New(state *corestate.State) *Facade {
	engine := ptyengine.New(state)
	return &Facade{
		State:      state,
		Rigs:       rig.New(state),
		Crews:      crew.New(state),
		Workers:    engine,
		Hooks:      hooks.New(state, engine),
		Supervisor: supervisor.New(state, engine, refinery.New(state)),
		Refinery:   refinery.New(state),
		Dogs:       dog.New(state),
	}
}

// --- Rig / Crew CRUD ---------------------------------------------------------

// ListRigs returns every registered rig.
func (f *Facade) ListRigs() []model.Rig { return f.State.Rigs.Snapshot() }

// GetRig returns the rig with id, or false.
func (f *Facade) GetRig(rigID string) (model.Rig, bool) { return f.State.FindRig(rigID) }

// CreateCrew creates a new worktree-backed crew for rigID.
func (f *Facade) CreateCrew(rigID, name, branch, baseBranch string) (*model.Crew, error) {
	return f.Crews.Create(rigID, name, branch, baseBranch)
}

// ListCrews returns every crew, optionally filtered by rig.
func (f *Facade) ListCrews(rigID string) []model.Crew {
	all := f.State.Crews.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Crew
	for _, c := range all {
		if c.RigID == rigID {
			out = append(out, c)
		}
	}
	return out
}

// RemoveCrew soft-deletes a crew and unlinks its worktree.
func (f *Facade) RemoveCrew(crewID string) error { return f.Crews.Remove(crewID) }

// --- Task CRUD -------------------------------------------------------------

// CreateTask appends a new Todo task.
func (f *Facade) CreateTask(rigID, title, description string, priority model.TaskPriority) (*model.Task, error) {
	if title == "" {
		return nil, corerr.Wrap(corerr.ValidationFailed, "task title must be non-empty")
	}
	if _, ok := f.State.FindRig(rigID); !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	now := model.RFC3339(corestate.Now())
	row := model.Task{
		ID:          uuid.NewString(),
		RigID:       rigID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      model.TaskTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.State.Tasks.With(func(items []model.Task) []model.Task { return append(items, row) })
	if err := f.State.Tasks.Save(); err != nil {
		f.State.Log.Printf("[facade] persisting task %s: %v", row.ID, err)
	}
	return &row, nil
}

// UpdateTaskStatus transitions a task's status, setting completed_at on
// entry to Done and clearing it on exit.
func (f *Facade) UpdateTaskStatus(taskID string, status model.TaskStatus) error {
	found := false
	f.State.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			if items[i].ID != taskID {
				continue
			}
			found = true
			items[i].Status = status
			items[i].UpdatedAt = model.RFC3339(corestate.Now())
			if status == model.TaskDone {
				items[i].CompletedAt = model.RFC3339(corestate.Now())
			} else {
				items[i].CompletedAt = ""
			}
		}
		return items
	})
	if !found {
		return corerr.Wrap(corerr.NotFound, "task %s not found", taskID)
	}
	return nil
}

// DeleteTask removes a task row outright.
func (f *Facade) DeleteTask(taskID string) error {
	found := false
	f.State.Tasks.With(func(items []model.Task) []model.Task {
		out := items[:0]
		for _, t := range items {
			if t.ID == taskID {
				found = true
				continue
			}
			out = append(out, t)
		}
		return out
	})
	if !found {
		return corerr.Wrap(corerr.NotFound, "task %s not found", taskID)
	}
	return nil
}

// ListTasks returns every task for a rig, or all tasks if rigID is empty.
func (f *Facade) ListTasks(rigID string) []model.Task {
	all := f.State.Tasks.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Task
	for _, t := range all {
		if t.RigID == rigID {
			out = append(out, t)
		}
	}
	return out
}

// --- Actor CRUD --------------------------------------------------------------

// CreateActor appends a new actor row.
func (f *Facade) CreateActor(rigID, name, role, agentType string) (*model.Actor, error) {
	if _, ok := f.State.FindRig(rigID); !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	row := model.Actor{
		ActorID:   uuid.NewString(),
		Name:      name,
		Role:      role,
		AgentType: agentType,
		RigID:     rigID,
		CreatedAt: model.RFC3339(corestate.Now()),
	}
	f.State.Actors.With(func(items []model.Actor) []model.Actor { return append(items, row) })
	return &row, nil
}

// ListActors returns every actor for a rig, or all actors if rigID is empty.
func (f *Facade) ListActors(rigID string) []model.Actor {
	all := f.State.Actors.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Actor
	for _, a := range all {
		if a.RigID == rigID {
			out = append(out, a)
		}
	}
	return out
}

// --- Hook CRUD ---------------------------------------------------------------

// CreateHook attaches a new Idle hook to an actor inside a rig.
func (f *Facade) CreateHook(rigID, actorID string) (*model.Hook, error) {
	if _, ok := f.State.FindRig(rigID); !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	if _, ok := f.State.FindActor(actorID); !ok {
		return nil, corerr.Wrap(corerr.NotFound, "actor %s not found", actorID)
	}
	row := model.Hook{
		HookID:          uuid.NewString(),
		RigID:           rigID,
		AttachedActorID: actorID,
		Status:          model.HookIdle,
		LastHeartbeat:   model.RFC3339(corestate.Now()),
		CreatedAt:       model.RFC3339(corestate.Now()),
	}
	f.State.Hooks.With(func(items []model.Hook) []model.Hook { return append(items, row) })
	f.State.Audit.Emit(rigID, actorID, "", audit.HookCreated, map[string]string{"hook_id": row.HookID})
	return &row, nil
}

// ListHooks returns every hook for a rig, or all hooks if rigID is empty.
func (f *Facade) ListHooks(rigID string) []model.Hook {
	all := f.State.Hooks.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Hook
	for _, h := range all {
		if h.RigID == rigID {
			out = append(out, h)
		}
	}
	return out
}

// --- Handoff / Convoy CRUD ---------------------------------------------------

// CreateHandoff records a lightweight transfer between actors.
func (f *Facade) CreateHandoff(rigID, fromActor, toActor, note string) (*model.Handoff, error) {
	row := model.Handoff{
		ID:        uuid.NewString(),
		RigID:     rigID,
		FromActor: fromActor,
		ToActor:   toActor,
		Note:      note,
		CreatedAt: model.RFC3339(corestate.Now()),
	}
	f.State.Handoffs.With(func(items []model.Handoff) []model.Handoff { return append(items, row) })
	return &row, nil
}

// CreateConvoy records a lightweight grouping of related tasks.
func (f *Facade) CreateConvoy(rigID, name string) (*model.Convoy, error) {
	row := model.Convoy{ID: uuid.NewString(), RigID: rigID, Name: name, CreatedAt: model.RFC3339(corestate.Now())}
	f.State.Convoys.With(func(items []model.Convoy) []model.Convoy { return append(items, row) })
	return &row, nil
}

// ListHandoffs returns every handoff for a rig, or all handoffs if rigID is empty.
func (f *Facade) ListHandoffs(rigID string) []model.Handoff {
	all := f.State.Handoffs.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Handoff
	for _, h := range all {
		if h.RigID == rigID {
			out = append(out, h)
		}
	}
	return out
}

// ListConvoys returns every convoy for a rig, or all convoys if rigID is empty.
func (f *Facade) ListConvoys(rigID string) []model.Convoy {
	all := f.State.Convoys.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Convoy
	for _, c := range all {
		if c.RigID == rigID {
			out = append(out, c)
		}
	}
	return out
}

// --- Worker operations -------------------------------------------------------

// SpawnWorker starts a Crew-type worker against the crew named by crewID.
func (f *Facade) SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt, actorID, customPath string) (*model.Worker, error) {
	return f.Workers.SpawnWorker(ctx, crewID, agentType, initialPrompt, model.WorkerCrew, actorID, customPath)
}

// SpawnPolecat starts an ephemeral Polecat worker with an auto-created crew
// based on the rig's current branch.
func (f *Facade) SpawnPolecat(ctx context.Context, rigID, agentType, initialPrompt string) (*model.Worker, error) {
	c, err := f.Crews.Create(rigID, "polecat-"+uuid.NewString()[:8], "", "")
	if err != nil {
		return nil, fmt.Errorf("creating polecat crew: %w", err)
	}
	return f.Workers.SpawnWorker(ctx, c.ID, agentType, initialPrompt, model.WorkerPolecat, "", "")
}

// StopWorker stops workerID unconditionally (synchronous, process-tree kill).
func (f *Facade) StopWorker(workerID string) error { return f.Workers.StopWorker(workerID) }

// DeleteWorker removes workerID's row after ensuring it's stopped.
func (f *Facade) DeleteWorker(workerID string) error { return f.Workers.DeleteWorker(workerID) }

// ListWorkers returns every worker row, optionally filtered by rig.
func (f *Facade) ListWorkers(rigID string) []model.Worker {
	all := f.State.Workers.Snapshot()
	if rigID == "" {
		return all
	}
	var out []model.Worker
	for _, w := range all {
		if w.RigID == rigID {
			out = append(out, w)
		}
	}
	return out
}

// GetWorkerStatus returns the worker row for workerID.
func (f *Facade) GetWorkerStatus(workerID string) (model.Worker, bool) {
	return f.State.FindWorker(workerID)
}

// GetWorkerLogs returns workerID's buffered log lines, falling back to the
// on-disk log when the worker has already finalized and no live handle
// remains to hold an in-memory ring.
func (f *Facade) GetWorkerLogs(workerID string) ([]string, error) {
	lines, err := f.Workers.GetWorkerLogs(workerID)
	if err == nil {
		return lines, nil
	}
	return f.State.Store.ReadWorkerLogLines(workerID)
}

// WriteToWorker forwards data to workerID's stdin/PTY.
func (f *Facade) WriteToWorker(workerID string, data []byte) error {
	return f.Workers.WriteToWorker(workerID, data)
}

// SubscribeEvents returns a channel carrying every worker-pty-data,
// worker-log, worker-status and data-changed event published from this
// point on, plus an unsubscribe func to release it. This is the outer
// shell's entry point onto the event surface named in the External
// Interfaces section; it does nothing but expose the engine's broadcaster.
func (f *Facade) SubscribeEvents() (<-chan ptyengine.Event, func()) {
	return f.Workers.Events.Subscribe()
}

// ResizeWorkerPTY resizes workerID's PTY.
func (f *Facade) ResizeWorkerPTY(workerID string, cols, rows uint16) error {
	return f.Workers.ResizeWorkerPTY(workerID, cols, rows)
}

// --- Hook dispatch operations -------------------------------------------------

// AssignToHook binds a work item to a hook without yet spawning a worker.
func (f *Facade) AssignToHook(hookID, workItemID string) error {
	found := false
	f.State.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				found = true
				items[i].CurrentWorkID = workItemID
				items[i].Status = model.HookAssigned
			}
		}
		return items
	})
	if !found {
		return corerr.Wrap(corerr.NotFound, "hook %s not found", hookID)
	}
	return nil
}

// Sling dispatches a work item onto a hook, spawning its worker. This is the
// facade's name for hooks.Dispatcher.Dispatch.
func (f *Facade) Sling(ctx context.Context, hookID, workItemID string, stateBlob *string) (*model.Hook, error) {
	return f.Hooks.Dispatch(ctx, hookID, workItemID, stateBlob, audit.HookSlung)
}

// Done marks a hook's current dispatch complete.
func (f *Facade) Done(hookID string, outcome *string) (*model.Hook, error) {
	return f.Hooks.Done(hookID, outcome)
}

// ResumeHook respawns a worker from a hook's saved resumption context.
func (f *Facade) ResumeHook(ctx context.Context, hookID string) (*model.Worker, error) {
	return f.Hooks.ResumeHook(ctx, hookID)
}

// GetRigQueue summarizes a rig's hooks by status.
func (f *Facade) GetRigQueue(rigID string) hooks.RigQueue { return f.Hooks.GetRigQueue(rigID) }

// ExecuteTask resolves task/crew/rig, renders a template, spawns a worker,
// and records a Run.
func (f *Facade) ExecuteTask(ctx context.Context, taskID, crewID, agentType, templateName string) (*model.Worker, error) {
	task, ok := f.State.FindTask(taskID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "task %s not found", taskID)
	}
	crewRow, ok := f.State.FindCrew(crewID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "crew %s not found", crewID)
	}
	rigRow, ok := f.State.FindRig(crewRow.RigID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", crewRow.RigID)
	}

	prompt := renderTaskTemplate(templateName, task, rigRow, crewRow)
	worker, err := f.Workers.SpawnWorker(ctx, crewID, agentType, prompt, model.WorkerCrew, "", "")
	if err != nil {
		return nil, err
	}

	run := model.Run{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		WorkerID:       worker.ID,
		CrewID:         crewID,
		RigID:          rigRow.ID,
		AgentType:      agentType,
		TemplateName:   templateName,
		RenderedPrompt: prompt,
		Status:         model.RunRunning,
		StartedAt:      model.RFC3339(corestate.Now()),
	}
	f.State.Runs.With(func(items []model.Run) []model.Run { return append(items, run) })

	if err := f.UpdateTaskStatus(taskID, model.TaskInProgress); err != nil {
		f.State.Log.Printf("[facade] updating task %s status after execute_task: %v", taskID, err)
	}
	return worker, nil
}

// --- Supervisor / refinery operations ----------------------------------------

// StartSupervisor starts the background reconciler loop.
func (f *Facade) StartSupervisor(intervalSeconds int, autoRefinerySync bool) {
	f.Supervisor.Start(intervalSeconds, autoRefinerySync)
}

// StopSupervisor stops the background reconciler loop.
func (f *Facade) StopSupervisor() { f.Supervisor.Stop() }

// ReconcileQueue runs one reconciliation pass on demand.
func (f *Facade) ReconcileQueue(rigID string) []supervisor.Decision {
	return f.Supervisor.ReconcileQueue(rigID)
}

// CompactState prunes old stopped workers, their logs, their runs and
// removed crews.
func (f *Facade) CompactState(rigID string, retentionDays int) {
	f.Supervisor.CompactState(rigID, retentionDays)
}

// SyncRigRefinery runs the merge queue for a rig.
func (f *Facade) SyncRigRefinery(rigID, baseBranch string, push bool) (*refinery.SyncReport, error) {
	return f.Refinery.Sync(rigID, baseBranch, push)
}

// GetRefineryQueue surfaces stale-claim and orphaned-branch findings for
// every crew currently waiting on the merge queue.
func (f *Facade) GetRefineryQueue(rigID string) ([]refinery.Anomaly, error) {
	return f.Refinery.Anomalies(rigID, corestate.Now())
}

func renderTaskTemplate(templateName string, task model.Task, rigRow model.Rig, crewRow model.Crew) string {
	return templates.RenderBuiltin(templateName, task.Title, task.Description, rigRow.Name, crewRow.Branch, crewRow.Path)
}

// --- Compound operations (town_up/down/status) -------------------------------

// TownUp brings the fleet online: starts the supervisor loop and returns the
// current Doctor findings so the caller knows what still needs attention.
func (f *Facade) TownUp(intervalSeconds int, autoRefinerySync bool) []Issue {
	f.StartSupervisor(intervalSeconds, autoRefinerySync)
	return f.Doctor()
}

// TownDown takes the fleet offline: stops the supervisor loop and every
// still-running worker.
func (f *Facade) TownDown() {
	f.StopSupervisor()
	for _, w := range f.State.Workers.Snapshot() {
		if w.Status == model.WorkerRunning {
			_ = f.StopWorker(w.ID)
		}
	}
}

// TownStatus summarizes fleet counts by running the janitorial Boot task,
// which changes no entity but records its summary as a dog audit event.
func (f *Facade) TownStatus() string { return f.Dogs.Boot() }
