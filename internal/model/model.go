// Package model defines the entity types persisted by the Persistent Store.
//
// Every entity carries an opaque string id and RFC 3339 UTC timestamps for
// its temporal fields. Cross-references between entities are by id; nothing
// here maintains back-references, reconciliation repairs drift instead.
package model

import "time"

// RFC3339 formats t the way every timestamp field in this package is stored.
func RFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// CrewStatus is the lifecycle state of a Crew worktree.
type CrewStatus string

const (
	CrewActive  CrewStatus = "Active"
	CrewRemoved CrewStatus = "Removed"
)

// Crew is a git worktree belonging to one rig.
type Crew struct {
	ID        string     `json:"id"`
	RigID     string     `json:"rig_id"`
	Name      string     `json:"name"`
	Branch    string     `json:"branch"`
	Path      string     `json:"path"`
	Status    CrewStatus `json:"status"`
	CreatedAt string     `json:"created_at"`
}

// Rig is a registered git repository on disk.
type Rig struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	CreatedAt  string `json:"created_at"`
	LastOpened string `json:"last_opened"`
}

// TaskPriority orders Task urgency; lower enum position sorts first.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "Low"
	PriorityMedium   TaskPriority = "Medium"
	PriorityHigh     TaskPriority = "High"
	PriorityCritical TaskPriority = "Critical"
)

// TaskStatus is the lifecycle state of a work item.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "Todo"
	TaskInProgress TaskStatus = "InProgress"
	TaskBlocked    TaskStatus = "Blocked"
	TaskDeferred   TaskStatus = "Deferred"
	TaskEscalated  TaskStatus = "Escalated"
	TaskDone       TaskStatus = "Done"
	TaskCancelled  TaskStatus = "Cancelled"
)

// Task is the unit of work dispatched through a Hook to a Worker.
type Task struct {
	ID                 string       `json:"id"`
	RigID              string       `json:"rig_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Tags               []string     `json:"tags"`
	Priority           TaskPriority `json:"priority"`
	Status             TaskStatus   `json:"status"`
	AssignedWorkerID   string       `json:"assigned_worker_id,omitempty"`
	AcceptanceCriteria string       `json:"acceptance_criteria,omitempty"`
	Dependencies       []string     `json:"dependencies,omitempty"`
	OwnerActorID       string       `json:"owner_actor_id,omitempty"`
	ConvoyID           string       `json:"convoy_id,omitempty"`
	HookID             string       `json:"hook_id,omitempty"`
	BlockedReason      string       `json:"blocked_reason,omitempty"`
	Outcome            string       `json:"outcome,omitempty"`
	CompletedAt        string       `json:"completed_at,omitempty"`
	CreatedAt          string       `json:"created_at"`
	UpdatedAt          string       `json:"updated_at"`
}

// Actor is a named role associated with a rig and a preferred agent type.
type Actor struct {
	ActorID   string `json:"actor_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AgentType string `json:"agent_type"`
	RigID     string `json:"rig_id"`
	CreatedAt string `json:"created_at"`
}

// HookStatus is the lifecycle state of a dispatch channel.
type HookStatus string

const (
	HookIdle     HookStatus = "Idle"
	HookAssigned HookStatus = "Assigned"
	HookRunning  HookStatus = "Running"
	HookDone     HookStatus = "Done"
)

// Hook is a persistent, actor-attached dispatch channel binding at most one
// work item at a time. LeaseExpiresAt is advisory, not an OS-level lock: a
// lease is active iff LeaseExpiresAt is in the future.
type Hook struct {
	HookID          string     `json:"hook_id"`
	RigID           string     `json:"rig_id"`
	AttachedActorID string     `json:"attached_actor_id"`
	CurrentWorkID   string     `json:"current_work_id,omitempty"`
	StateBlob       string     `json:"state_blob,omitempty"`
	LeaseToken      string     `json:"lease_token,omitempty"`
	LeaseExpiresAt  string     `json:"lease_expires_at,omitempty"`
	Status          HookStatus `json:"status"`
	WorkerID        string     `json:"worker_id,omitempty"`
	LastHeartbeat   string     `json:"last_heartbeat"`
	CreatedAt       string     `json:"created_at"`
}

// LeaseActive reports whether the hook's lease has not yet expired, given now.
func (h *Hook) LeaseActive(now time.Time) bool {
	if h.LeaseExpiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, h.LeaseExpiresAt)
	if err != nil {
		return false
	}
	return t.After(now)
}

// WorkerType distinguishes a crew-attached worker from an ephemeral one.
type WorkerType string

const (
	WorkerCrew    WorkerType = "Crew"
	WorkerPolecat WorkerType = "Polecat"
)

// WorkerStatus is the lifecycle state of a supervised child process.
type WorkerStatus string

const (
	WorkerRunning   WorkerStatus = "Running"
	WorkerStopped   WorkerStatus = "Stopped"
	WorkerCompleted WorkerStatus = "Completed"
	WorkerFailed    WorkerStatus = "Failed"
)

// Worker is a child process under supervision, spawned against a crew
// worktree to drive an interactive CLI agent.
type Worker struct {
	ID        string       `json:"id"`
	RigID     string       `json:"rig_id"`
	CrewID    string       `json:"crew_id"`
	AgentType string       `json:"agent_type"`
	ActorID   string       `json:"actor_id,omitempty"`
	Type      WorkerType   `json:"worker_type"`
	Status    WorkerStatus `json:"status"`
	PID       int          `json:"pid,omitempty"`
	StartedAt string       `json:"started_at"`
	StoppedAt string       `json:"stopped_at,omitempty"`
}

// RunStatus is the lifecycle state of a recorded Task execution.
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
	RunCancelled RunStatus = "Cancelled"
)

// Run is a recorded execution of a Task by a Worker, with the rendered
// prompt kept verbatim for later audit.
type Run struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	WorkerID       string    `json:"worker_id"`
	CrewID         string    `json:"crew_id"`
	RigID          string    `json:"rig_id"`
	AgentType      string    `json:"agent_type"`
	TemplateName   string    `json:"template_name"`
	RenderedPrompt string    `json:"rendered_prompt"`
	Status         RunStatus `json:"status"`
	StartedAt      string    `json:"started_at"`
	FinishedAt     string    `json:"finished_at,omitempty"`
	ExitCode       *int      `json:"exit_code,omitempty"`
	DiffStats      string    `json:"diff_stats,omitempty"`
}

// Handoff is a lightweight transfer record between actors. The core only
// consumes its id; content is ordinary CRUD owned by the outer shell.
type Handoff struct {
	ID        string `json:"id"`
	RigID     string `json:"rig_id"`
	FromActor string `json:"from_actor_id,omitempty"`
	ToActor   string `json:"to_actor_id,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Convoy is a lightweight grouping record for related tasks. The core only
// consumes its id.
type Convoy struct {
	ID        string `json:"id"`
	RigID     string `json:"rig_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// AuditEvent is an append-only record of something the core did.
type AuditEvent struct {
	EventID     string `json:"event_id"`
	RigID       string `json:"rig_id"`
	ActorID     string `json:"actor_id,omitempty"`
	WorkItemID  string `json:"work_item_id,omitempty"`
	EventType   string `json:"event_type"`
	PayloadJSON string `json:"payload_json"`
	EmittedAt   string `json:"emitted_at"`
}

// LogEntry is one line of a worker's captured output.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Stream    string `json:"stream"`
	Line      string `json:"line"`
}

// Settings holds the operator-controlled tunables consumed by the
// supervisor and dispatcher. It is one of the Persistent Store's JSON
// document collections, not a static config file.
type Settings struct {
	DefaultCLI               string            `json:"default_cli"`
	CLIPaths                 map[string]string `json:"cli_paths"`
	DefaultTemplate          string            `json:"default_template"`
	MaxPolecatsPerRig        int               `json:"max_polecats_per_rig"`
	PolecatNudgeAfterSeconds int               `json:"polecat_nudge_after_seconds"`
	PropulsionIntervalSecs   int               `json:"propulsion_interval_seconds"`
	AutoRefinerySync         bool              `json:"auto_refinery_sync"`
	WitnessAutoSpawn         bool              `json:"witness_auto_spawn"`
	EnvVars                  map[string]string `json:"env_vars,omitempty"`
}

// DefaultSettings returns the factory-default rig settings.
func DefaultSettings() Settings {
	return Settings{
		DefaultCLI:               "codex",
		CLIPaths:                 map[string]string{},
		DefaultTemplate:          "implement_feature",
		MaxPolecatsPerRig:        5,
		PolecatNudgeAfterSeconds: 600,
		PropulsionIntervalSecs:   10,
		AutoRefinerySync:         false,
		WitnessAutoSpawn:         false,
	}
}

// SupervisorState is the supervisor's own runtime bookkeeping record.
type SupervisorState struct {
	Running             bool   `json:"running"`
	StartedAt           string `json:"started_at,omitempty"`
	LastReconcileAt     string `json:"last_reconcile_at,omitempty"`
	LastCompactAt       string `json:"last_compact_at,omitempty"`
	LoopIntervalSeconds int    `json:"loop_interval_seconds"`
	AutoRefinerySync    bool   `json:"auto_refinery_sync"`
}
