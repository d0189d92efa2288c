// Package hooks implements the Hook Dispatch & Lease Manager: it binds a
// work item to a hook's persistent execution channel, builds the agent
// prompt, and drives the Worker Lifecycle Engine to run it.
package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
	"github.com/tdat-dev/corengine/internal/templates"
)

// leaseTTL is the hook lease's advisory time-to-live.
const leaseTTL = 45 * time.Minute

// Spawner is the subset of the Worker Lifecycle Engine the dispatcher
// drives. Satisfied by *ptyengine.Engine.
type Spawner interface {
	SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt string, workerType model.WorkerType, actorID, customPath string) (*model.Worker, error)
}

// Dispatcher implements dispatch/done/resume_hook/get_rig_queue against a
// shared State and a Worker Lifecycle Engine.
type Dispatcher struct {
	state   *corestate.State
	spawner Spawner
}

// New wires a Dispatcher to state and the engine used to actually start
// worker processes.
func New(state *corestate.State, spawner Spawner) *Dispatcher {
	return &Dispatcher{state: state, spawner: spawner}
}

// Dispatch implements the atomic hook reservation followed by execution.
// ctx is forwarded to the Worker Lifecycle Engine's spawn call.
func (d *Dispatcher) Dispatch(ctx context.Context, hookID, workItemID string, stateBlob *string, auditKind string) (*model.Hook, error) {
	now := corestate.Now()
	hook, ok := d.state.FindHook(hookID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "hook %s not found", hookID)
	}

	leaseToken := uuid.NewString()
	leaseExpiresAt := model.RFC3339(now.Add(leaseTTL))
	blob := ""
	if stateBlob != nil {
		blob = *stateBlob
	}

	var leased *corerr.HookLeased
	d.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				if (items[i].Status == model.HookRunning || items[i].Status == model.HookAssigned) && items[i].LeaseActive(now) {
					leased = &corerr.HookLeased{ExpiresAt: items[i].LeaseExpiresAt}
					return items
				}
				items[i].CurrentWorkID = workItemID
				items[i].StateBlob = blob
				items[i].Status = model.HookAssigned
				items[i].LeaseToken = leaseToken
				items[i].LeaseExpiresAt = leaseExpiresAt
				items[i].LastHeartbeat = model.RFC3339(now)
			}
		}
		return items
	})
	if leased != nil {
		return nil, leased
	}
	if err := d.state.Hooks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting reservation for %s: %v", hookID, err)
	}
	hook, _ = d.state.FindHook(hookID)

	crew, ok := d.state.ActiveCrew(hook.RigID)
	if !ok {
		d.emitDispatchFailure(hook, auditKind, "no active crew for rig")
		return &hook, corerr.Wrap(corerr.NotFound, "no active crew for rig %s", hook.RigID)
	}

	actor, _ := d.state.FindActor(hook.AttachedActorID)
	agentType := actor.AgentType
	if agentType == "" {
		agentType = d.state.Settings.Get().DefaultCLI
	}
	if agentType == "" {
		agentType = "codex"
	}

	prompt, err := d.buildPrompt(hook, workItemID, crew)
	if err != nil {
		d.emitDispatchFailure(hook, auditKind, err.Error())
		return &hook, corerr.Wrap(corerr.NotFound, "building prompt: %v", err)
	}

	worker, err := d.spawner.SpawnWorker(ctx, crew.ID, agentType, prompt, model.WorkerCrew, hook.AttachedActorID, "")
	if err != nil {
		d.emitDispatchFailure(hook, auditKind, err.Error())
		return &hook, corerr.Wrap(corerr.SpawnFailed, "dispatch spawn: %v", err)
	}

	d.state.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			if items[i].ID == workItemID {
				items[i].Status = model.TaskInProgress
				items[i].AssignedWorkerID = worker.ID
				items[i].OwnerActorID = hook.AttachedActorID
				items[i].HookID = hook.HookID
				items[i].BlockedReason = ""
				items[i].Outcome = ""
				items[i].UpdatedAt = model.RFC3339(now)
			}
		}
		return items
	})
	if err := d.state.Tasks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting task %s: %v", workItemID, err)
	}

	d.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				items[i].Status = model.HookRunning
				items[i].WorkerID = worker.ID
				items[i].LastHeartbeat = model.RFC3339(corestate.Now())
			}
		}
		return items
	})
	if err := d.state.Hooks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting running state for %s: %v", hookID, err)
	}
	hook, _ = d.state.FindHook(hookID)

	d.state.Audit.Emit(hook.RigID, hook.AttachedActorID, workItemID, auditKind, map[string]interface{}{
		"hook_id":        hook.HookID,
		"work_item_id":   workItemID,
		"worker_id":      worker.ID,
		"crew_id":        crew.ID,
		"agent_type":     agentType,
		"auto_executed":  true,
	})

	return &hook, nil
}

func (d *Dispatcher) emitDispatchFailure(hook model.Hook, auditKind, errMsg string) {
	d.state.Audit.Emit(hook.RigID, hook.AttachedActorID, hook.CurrentWorkID, auditKind, map[string]interface{}{
		"hook_id":       hook.HookID,
		"auto_executed": false,
		"error":         errMsg,
	})
}

// buildPrompt implements the reply-only-task special case and the default
// template-rendering path.
func (d *Dispatcher) buildPrompt(hook model.Hook, workItemID string, crew model.Crew) (string, error) {
	task, ok := d.state.FindTask(workItemID)
	if !ok {
		return "", fmt.Errorf("task %s not found", workItemID)
	}
	rig, _ := d.state.FindRig(hook.RigID)

	if isMinimalReplyTask(task) {
		return fmt.Sprintf(
			"[HOOK EXECUTION]\nHook ID: %s\nActor ID: %s\nTask ID: %s\n\n"+
				"Reply with exactly this text and nothing else:\n%s\n\n"+
				"Do not run shell commands. Do not inspect files.",
			hook.HookID, hook.AttachedActorID, task.ID, task.AcceptanceCriteria,
		), nil
	}

	templateName := d.state.Settings.Get().DefaultTemplate
	if templateName == "" {
		templateName = "implement_feature"
	}
	body := templates.RenderBuiltin(templateName, task.Title, task.Description, rig.Name, crew.Branch, crew.Path)

	banner := fmt.Sprintf("[HOOK EXECUTION]\nHook ID: %s\nActor ID: %s\nTask ID: %s", hook.HookID, hook.AttachedActorID, task.ID)
	prompt := banner + "\n\n" + body
	if task.AcceptanceCriteria != "" {
		prompt += "\n\nAcceptance Criteria:\n" + task.AcceptanceCriteria
	}
	return prompt, nil
}

// isMinimalReplyTask matches the reply-only shortcut: a non-empty title, an
// empty description, and acceptance criteria equal to the title
// case-insensitively.
func isMinimalReplyTask(task model.Task) bool {
	return strings.TrimSpace(task.Title) != "" &&
		strings.TrimSpace(task.Description) == "" &&
		task.AcceptanceCriteria != "" &&
		strings.EqualFold(strings.TrimSpace(task.AcceptanceCriteria), strings.TrimSpace(task.Title))
}

// Done implements the snapshot, transition, task-close, reset sequence as
// two separate save points.
func (d *Dispatcher) Done(hookID string, outcome *string) (*model.Hook, error) {
	hook, ok := d.state.FindHook(hookID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "hook %s not found", hookID)
	}
	workItemID := hook.CurrentWorkID

	now := corestate.Now()
	d.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				items[i].Status = model.HookDone
				items[i].LeaseToken = ""
				items[i].LeaseExpiresAt = ""
			}
		}
		return items
	})
	if err := d.state.Hooks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting done-transition for %s: %v", hookID, err)
	}

	if workItemID != "" {
		d.state.Tasks.With(func(items []model.Task) []model.Task {
			for i := range items {
				if items[i].ID == workItemID {
					items[i].Status = model.TaskDone
					items[i].CompletedAt = model.RFC3339(now)
					items[i].UpdatedAt = model.RFC3339(now)
					if outcome != nil {
						items[i].Outcome = *outcome
					}
				}
			}
			return items
		})
		if err := d.state.Tasks.Save(); err != nil {
			d.state.Log.Printf("[hooks] persisting task completion for %s: %v", workItemID, err)
		}
	}

	d.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				items[i].Status = model.HookIdle
				items[i].CurrentWorkID = ""
				items[i].StateBlob = ""
				items[i].WorkerID = ""
			}
		}
		return items
	})
	if err := d.state.Hooks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting idle-reset for %s: %v", hookID, err)
	}

	hook, _ = d.state.FindHook(hookID)
	d.state.Audit.Emit(hook.RigID, hook.AttachedActorID, workItemID, audit.HookDone, map[string]string{
		"hook_id": hookID,
	})
	return &hook, nil
}

// ResumeHook fails fast on an actively leased Running hook; otherwise it
// computes a resume prompt from state_blob and spawns a worker to continue,
// re-linking the task to the new worker.
func (d *Dispatcher) ResumeHook(ctx context.Context, hookID string) (*model.Worker, error) {
	hook, ok := d.state.FindHook(hookID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "hook %s not found", hookID)
	}
	if hook.Status == model.HookRunning && hook.LeaseActive(corestate.Now()) {
		return nil, &corerr.HookLeased{ExpiresAt: hook.LeaseExpiresAt}
	}
	if hook.CurrentWorkID == "" {
		return nil, corerr.Wrap(corerr.PreconditionFailed, "hook %s has no current work to resume", hookID)
	}

	crew, ok := d.state.ActiveCrew(hook.RigID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "no active crew for rig %s", hook.RigID)
	}

	actor, _ := d.state.FindActor(hook.AttachedActorID)
	agentType := actor.AgentType
	if agentType == "" {
		agentType = d.state.Settings.Get().DefaultCLI
	}
	if agentType == "" {
		agentType = "codex"
	}

	resumePrompt := "no previous state"
	if hook.StateBlob != "" {
		resumePrompt = hook.StateBlob
	}

	worker, err := d.spawner.SpawnWorker(ctx, crew.ID, agentType, resumePrompt, model.WorkerCrew, hook.AttachedActorID, "")
	if err != nil {
		return nil, corerr.Wrap(corerr.SpawnFailed, "resume spawn: %v", err)
	}

	workItemID := hook.CurrentWorkID
	d.state.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			if items[i].ID == workItemID {
				items[i].AssignedWorkerID = worker.ID
				items[i].UpdatedAt = model.RFC3339(corestate.Now())
			}
		}
		return items
	})
	if err := d.state.Tasks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting resumed task %s: %v", workItemID, err)
	}

	d.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			if items[i].HookID == hookID {
				items[i].Status = model.HookRunning
				items[i].WorkerID = worker.ID
				items[i].LastHeartbeat = model.RFC3339(corestate.Now())
			}
		}
		return items
	})
	if err := d.state.Hooks.Save(); err != nil {
		d.state.Log.Printf("[hooks] persisting resume for %s: %v", hookID, err)
	}

	d.state.Audit.Emit(hook.RigID, hook.AttachedActorID, workItemID, audit.HookResumed, map[string]string{
		"hook_id": hookID, "worker_id": worker.ID,
	})
	return worker, nil
}

// QueueStatus is one hook's row in a rig queue snapshot.
type QueueStatus struct {
	HookID         string
	ActorID        string
	Status         model.HookStatus
	CurrentWorkID  string
	LastHeartbeat  string
	LeaseToken     string
	LeaseExpiresAt string
}

// RigQueue is get_rig_queue's return shape: counts by status plus a
// per-hook snapshot.
type RigQueue struct {
	CountsByStatus map[model.HookStatus]int
	Hooks          []QueueStatus
}

// GetRigQueue returns counts by status and a per-hook snapshot for rigID.
func (d *Dispatcher) GetRigQueue(rigID string) RigQueue {
	queue := RigQueue{CountsByStatus: map[model.HookStatus]int{}}
	for _, h := range d.state.Hooks.Snapshot() {
		if h.RigID != rigID {
			continue
		}
		queue.CountsByStatus[h.Status]++
		queue.Hooks = append(queue.Hooks, QueueStatus{
			HookID:         h.HookID,
			ActorID:        h.AttachedActorID,
			Status:         h.Status,
			CurrentWorkID:  h.CurrentWorkID,
			LastHeartbeat:  h.LastHeartbeat,
			LeaseToken:     h.LeaseToken,
			LeaseExpiresAt: h.LeaseExpiresAt,
		})
	}
	return queue
}
