// Package supervisor implements the Supervisor Loop: a single
// long-lived reconciler tied to a runtime state record, responsible for
// queue reconciliation, propulsion (auto-spawning work), witness (polecat
// pool management), and periodic state compaction.
package supervisor

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

const (
	minSupervisorIntervalSeconds = 5
	minPropulsionIntervalSeconds = 10
	defaultRetentionDays         = 7
)

// Spawner is the subset of the Worker Lifecycle Engine propulsion and
// witness drive directly (outside the hook dispatch protocol).
type Spawner interface {
	SpawnWorker(ctx context.Context, crewID, agentType, initialPrompt string, workerType model.WorkerType, actorID, customPath string) (*model.Worker, error)
	WriteToWorker(workerID string, data []byte) error
}

// RefinerySyncer is the subset of the Refinery the supervisor drives when
// auto_refinery_sync is enabled.
type RefinerySyncer interface {
	SyncRig(rigID, baseBranch string, push bool) error
}

// Supervisor owns the reconciler loop's lifecycle.
type Supervisor struct {
	state    *corestate.State
	spawner  Spawner
	refinery RefinerySyncer
	log      *log.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	lastProp time.Time
}

// New wires a Supervisor to shared state and its collaborators.
func New(state *corestate.State, spawner Spawner, refinery RefinerySyncer) *Supervisor {
	return &Supervisor{
		state:    state,
		spawner:  spawner,
		refinery: refinery,
		log:      log.New(state.Log.Writer(), "[supervisor] ", log.LstdFlags),
	}
}

// Start is idempotent: if already running it does nothing, otherwise it
// records the runtime state and spawns the loop goroutine.
func (s *Supervisor) Start(intervalSeconds int, autoRefinerySync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}

	if intervalSeconds <= 0 {
		intervalSeconds = s.state.Supervisor.Get().LoopIntervalSeconds
	}
	if intervalSeconds < minSupervisorIntervalSeconds {
		intervalSeconds = minSupervisorIntervalSeconds
	}

	now := corestate.Now()
	s.state.Supervisor.Set(model.SupervisorState{
		Running:             true,
		StartedAt:           model.RFC3339(now),
		LoopIntervalSeconds: intervalSeconds,
		AutoRefinerySync:    autoRefinerySync,
	})
	if err := s.state.Supervisor.Save(); err != nil {
		s.log.Printf("persisting start: %v", err)
	}
	s.state.Audit.Emit("", "", "", audit.SupervisorStarted, nil)

	s.stopCh = make(chan struct{})
	go s.loop(s.stopCh, intervalSeconds, autoRefinerySync)
}

// Stop sets running=false; the loop observes the flag on its next tick and
// exits, completing any work already in progress on the current iteration.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil

	st := s.state.Supervisor.Get()
	st.Running = false
	s.state.Supervisor.Set(st)
	if err := s.state.Supervisor.Save(); err != nil {
		s.log.Printf("persisting stop: %v", err)
	}
	s.state.Audit.Emit("", "", "", audit.SupervisorStopped, nil)
}

func (s *Supervisor) loop(stopCh chan struct{}, intervalSeconds int, autoRefinerySync bool) {
	propulsionInterval := s.state.Settings.Get().PropulsionIntervalSecs
	if propulsionInterval < minPropulsionIntervalSeconds {
		propulsionInterval = minPropulsionIntervalSeconds
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.ReconcileQueue("")

		if autoRefinerySync && s.refinery != nil {
			for _, rig := range s.state.Rigs.Snapshot() {
				if err := s.refinery.SyncRig(rig.ID, "", false); err != nil {
					s.log.Printf("auto refinery sync %s: %v", rig.ID, err)
				}
			}
		}

		if corestate.Now().Sub(s.lastProp) >= time.Duration(propulsionInterval)*time.Second {
			s.propel()
			s.lastProp = corestate.Now()
		}

		if s.state.Settings.Get().WitnessAutoSpawn {
			s.witness()
		}

		sleep := intervalSeconds
		if sleep < minSupervisorIntervalSeconds {
			sleep = minSupervisorIntervalSeconds
		}
		select {
		case <-stopCh:
			return
		case <-time.After(time.Duration(sleep) * time.Second):
		}
	}
}

// propel spawns a worker for every rig that has at least one Todo task and
// zero Running workers, seeded with the oldest Todo task.
func (s *Supervisor) propel() {
	running := runningWorkerRigs(s.state.Workers.Snapshot())
	for _, rig := range s.state.Rigs.Snapshot() {
		if running[rig.ID] {
			continue
		}
		oldest, ok := oldestTodoTask(s.state.Tasks.Snapshot(), rig.ID)
		if !ok {
			continue
		}
		crew, ok := s.state.ActiveCrew(rig.ID)
		if !ok {
			continue
		}

		agentType := s.state.Settings.Get().DefaultCLI
		if agentType == "" {
			agentType = "codex"
		}
		worker, err := s.spawner.SpawnWorker(context.Background(), crew.ID, agentType, oldest.Description, model.WorkerCrew, oldest.OwnerActorID, "")
		if err != nil {
			s.log.Printf("propulsion spawn for rig %s: %v", rig.ID, err)
			continue
		}
		s.state.Audit.Emit(rig.ID, "", oldest.ID, audit.WorkerSpawned, map[string]interface{}{
			"propulsion": true,
			"worker_id":  worker.ID,
		})
	}
}

// witness keeps each rig's polecat pool sized to demand: spawns more when
// idle hooks outnumber running polecats (up to max_polecats_per_rig), stops
// them when there are no idle hooks left, and nudges polecats that have been
// running longer than polecat_nudge_after_seconds.
func (s *Supervisor) witness() {
	maxPolecats := s.state.Settings.Get().MaxPolecatsPerRig
	if maxPolecats <= 0 {
		maxPolecats = 5
	}
	nudgeAfter := s.state.Settings.Get().PolecatNudgeAfterSeconds
	if nudgeAfter <= 0 {
		nudgeAfter = 600
	}

	workers := s.state.Workers.Snapshot()
	hooks := s.state.Hooks.Snapshot()

	for _, rig := range s.state.Rigs.Snapshot() {
		idleHooks := countIdleHooks(hooks, rig.ID)
		polecats := runningPolecats(workers, rig.ID)

		if idleHooks > 0 && len(polecats) < maxPolecats {
			crew, ok := s.state.ActiveCrew(rig.ID)
			if !ok {
				continue
			}
			agentType := s.state.Settings.Get().DefaultCLI
			if agentType == "" {
				agentType = "codex"
			}
			for i := len(polecats); i < maxPolecats && i < idleHooks; i++ {
				worker, err := s.spawner.SpawnWorker(context.Background(), crew.ID, agentType, "", model.WorkerPolecat, "", "")
				if err != nil {
					s.log.Printf("witness spawn for rig %s: %v", rig.ID, err)
					break
				}
				s.state.Audit.Emit(rig.ID, "", "", audit.WorkerSpawned, map[string]interface{}{
					"witness": true, "worker_id": worker.ID,
				})
			}
			continue
		}

		if idleHooks == 0 && len(polecats) > 0 {
			for _, p := range polecats {
				var err error
				if stopper, ok := s.spawner.(interface{ StopWorker(workerID string) error }); ok {
					err = stopper.StopWorker(p.ID)
				} else {
					err = stopWorkerByID(s.state, p.ID)
				}
				if err != nil {
					s.log.Printf("witness stop for worker %s: %v", p.ID, err)
				}
			}
			continue
		}

		for _, p := range polecats {
			started, err := time.Parse(time.RFC3339, p.StartedAt)
			if err != nil {
				continue
			}
			if corestate.Now().Sub(started) > time.Duration(nudgeAfter)*time.Second {
				if err := s.spawner.WriteToWorker(p.ID, []byte("\n")); err != nil {
					s.log.Printf("nudging worker %s: %v", p.ID, err)
				}
			}
		}
	}
}

// stopWorkerByID marks a worker Stopped via the Persistent Store without
// signalling its process. witness falls back to it only when the Spawner
// has no StopWorker method; *ptyengine.Engine has one, and its StopWorker
// also kills the process tree.
func stopWorkerByID(state *corestate.State, workerID string) error {
	state.Workers.With(func(items []model.Worker) []model.Worker {
		for i := range items {
			if items[i].ID == workerID {
				items[i].Status = model.WorkerStopped
			}
		}
		return items
	})
	return state.Workers.Save()
}

// Decision is one reconcile_queue outcome for a single hook.
type Decision struct {
	HookID string
	Kind   string // "cleared" or "requeued"
	Reason string
}

// ReconcileQueue snapshots hooks and tasks under lock, decides with locks
// released, then applies every decision in one mutation pass per
// collection. rigID empty means all rigs.
func (s *Supervisor) ReconcileQueue(rigID string) []Decision {
	hooks := s.state.Hooks.Snapshot()
	tasksByID := tasksByID(s.state.Tasks.Snapshot())
	runningWorkers := runningWorkerIDs(s.state.Workers.Snapshot())

	var decisions []Decision
	for _, h := range hooks {
		if rigID != "" && h.RigID != rigID {
			continue
		}
		if h.Status != model.HookAssigned && h.Status != model.HookRunning {
			continue
		}
		if h.CurrentWorkID == "" {
			continue
		}

		task, ok := tasksByID[h.CurrentWorkID]
		switch {
		case !ok:
			decisions = append(decisions, Decision{HookID: h.HookID, Kind: "cleared", Reason: "missing_task"})
		case task.Status == model.TaskDone || task.Status == model.TaskCancelled:
			decisions = append(decisions, Decision{HookID: h.HookID, Kind: "cleared", Reason: "task_closed"})
		case task.AssignedWorkerID == "":
			decisions = append(decisions, Decision{HookID: h.HookID, Kind: "requeued", Reason: "unassigned_task"})
		case !runningWorkers[task.AssignedWorkerID]:
			decisions = append(decisions, Decision{HookID: h.HookID, Kind: "requeued", Reason: "worker_not_running"})
		}
	}

	s.applyDecisions(decisions, rigID)
	return decisions
}

func (s *Supervisor) applyDecisions(decisions []Decision, rigID string) {
	if len(decisions) == 0 {
		s.state.Audit.Emit(rigID, "", "", audit.QueueReconciled, map[string]int{"decisions": 0})
		return
	}

	byHook := make(map[string]Decision, len(decisions))
	for _, d := range decisions {
		byHook[d.HookID] = d
	}

	now := corestate.Now()
	var requeuedTaskIDs []string
	requeueReasonByTask := make(map[string]string)

	s.state.Hooks.With(func(items []model.Hook) []model.Hook {
		for i := range items {
			d, ok := byHook[items[i].HookID]
			if !ok {
				continue
			}
			switch d.Kind {
			case "cleared":
				items[i].Status = model.HookIdle
				items[i].LeaseToken = ""
				items[i].LeaseExpiresAt = ""
				items[i].StateBlob = ""
				items[i].CurrentWorkID = ""
			case "requeued":
				requeuedTaskIDs = append(requeuedTaskIDs, items[i].CurrentWorkID)
				requeueReasonByTask[items[i].CurrentWorkID] = d.Reason
				items[i].Status = model.HookAssigned
				items[i].WorkerID = ""
			}
		}
		return items
	})
	if err := s.state.Hooks.Save(); err != nil {
		s.log.Printf("persisting reconcile decisions: %v", err)
	}

	requeuedSet := make(map[string]bool, len(requeuedTaskIDs))
	for _, id := range requeuedTaskIDs {
		requeuedSet[id] = true
	}
	s.state.Tasks.With(func(items []model.Task) []model.Task {
		for i := range items {
			if requeuedSet[items[i].ID] && items[i].Status == model.TaskInProgress {
				items[i].Status = model.TaskEscalated
				items[i].BlockedReason = "reconciliation requeued this task's hook: " + requeueReasonByTask[items[i].ID]
				items[i].UpdatedAt = model.RFC3339(now)
			}
		}
		return items
	})
	if err := s.state.Tasks.Save(); err != nil {
		s.log.Printf("persisting reconcile task escalations: %v", err)
	}

	for _, d := range decisions {
		eventType := audit.HookDone
		if d.Kind == "requeued" {
			eventType = audit.HookAssigned
		}
		s.state.Audit.Emit(rigID, "", "", eventType, map[string]string{"hook_id": d.HookID, "reason": d.Reason})
	}
	for _, taskID := range requeuedTaskIDs {
		s.state.Audit.Emit(rigID, "", taskID, audit.TaskStatusChanged, map[string]string{"status": string(model.TaskEscalated)})
	}
	s.state.Audit.Emit(rigID, "", "", audit.QueueReconciled, map[string]int{"decisions": len(decisions)})
}

// CompactState removes non-Running workers whose stopped_at predates the
// retention cutoff, their log files and runs, and Removed crews. Idempotent.
func (s *Supervisor) CompactState(rigID string, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	cutoff := corestate.Now().AddDate(0, 0, -retentionDays)

	var removedWorkerIDs []string
	s.state.Workers.With(func(items []model.Worker) []model.Worker {
		out := items[:0]
		for _, w := range items {
			if rigID != "" && w.RigID != rigID {
				out = append(out, w)
				continue
			}
			if w.Status != model.WorkerRunning && w.StoppedAt != "" {
				if stopped, err := time.Parse(time.RFC3339, w.StoppedAt); err == nil && stopped.Before(cutoff) {
					removedWorkerIDs = append(removedWorkerIDs, w.ID)
					continue
				}
			}
			out = append(out, w)
		}
		return out
	})
	if err := s.state.Workers.Save(); err != nil {
		s.log.Printf("persisting compaction: %v", err)
	}

	removedSet := make(map[string]bool, len(removedWorkerIDs))
	for _, id := range removedWorkerIDs {
		removedSet[id] = true
		if err := removeWorkerLog(s.state, id); err != nil {
			s.log.Printf("removing log for worker %s: %v", id, err)
		}
	}

	s.state.Runs.With(func(items []model.Run) []model.Run {
		out := items[:0]
		for _, r := range items {
			if !removedSet[r.WorkerID] {
				out = append(out, r)
			}
		}
		return out
	})
	if err := s.state.Runs.Save(); err != nil {
		s.log.Printf("persisting run compaction: %v", err)
	}

	s.state.Crews.With(func(items []model.Crew) []model.Crew {
		out := items[:0]
		for _, c := range items {
			if rigID != "" && c.RigID != rigID {
				out = append(out, c)
				continue
			}
			if c.Status != model.CrewRemoved {
				out = append(out, c)
			}
		}
		return out
	})
	if err := s.state.Crews.Save(); err != nil {
		s.log.Printf("persisting crew compaction: %v", err)
	}

	st := s.state.Supervisor.Get()
	st.LastCompactAt = model.RFC3339(corestate.Now())
	s.state.Supervisor.Set(st)
	if err := s.state.Supervisor.Save(); err != nil {
		s.log.Printf("persisting compaction timestamp: %v", err)
	}
	s.state.Audit.Emit(rigID, "", "", audit.StateCompacted, map[string]int{"workers_removed": len(removedWorkerIDs)})
}

func removeWorkerLog(state *corestate.State, workerID string) error {
	path := state.Store.WorkerLogPath(workerID)
	return removeIfExists(path)
}

func tasksByID(tasks []model.Task) map[string]model.Task {
	m := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

func runningWorkerIDs(workers []model.Worker) map[string]bool {
	m := make(map[string]bool, len(workers))
	for _, w := range workers {
		if w.Status == model.WorkerRunning {
			m[w.ID] = true
		}
	}
	return m
}

func runningWorkerRigs(workers []model.Worker) map[string]bool {
	m := make(map[string]bool)
	for _, w := range workers {
		if w.Status == model.WorkerRunning {
			m[w.RigID] = true
		}
	}
	return m
}

func runningPolecats(workers []model.Worker, rigID string) []model.Worker {
	var out []model.Worker
	for _, w := range workers {
		if w.RigID == rigID && w.Type == model.WorkerPolecat && w.Status == model.WorkerRunning {
			out = append(out, w)
		}
	}
	return out
}

func countIdleHooks(hooks []model.Hook, rigID string) int {
	n := 0
	for _, h := range hooks {
		if h.RigID == rigID && h.Status == model.HookIdle {
			n++
		}
	}
	return n
}

func oldestTodoTask(tasks []model.Task, rigID string) (model.Task, bool) {
	var oldest model.Task
	found := false
	for _, t := range tasks {
		if t.RigID != rigID || t.Status != model.TaskTodo {
			continue
		}
		if !found || t.CreatedAt < oldest.CreatedAt {
			oldest = t
			found = true
		}
	}
	return oldest, found
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
