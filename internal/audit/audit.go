// Package audit implements the Audit Event Sink: append-only structured
// events, read back with filters. Writes never fail the calling operation —
// I/O errors are logged and swallowed.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tdat-dev/corengine/internal/model"
	"github.com/tdat-dev/corengine/internal/store"
)

// Closed set of event kinds the core emits, kept as a fixed set of string
// constants rather than an open string type.
const (
	WorkerSpawned    = "WorkerSpawned"
	WorkerCompleted  = "WorkerCompleted"
	WorkerFailed     = "WorkerFailed"
	WorkerStopped    = "WorkerStopped"
	HookCreated      = "HookCreated"
	HookAssigned     = "HookAssigned"
	HookSlung        = "HookSlung"
	HookDone         = "HookDone"
	HookResumed      = "HookResumed"
	TaskStatusChanged = "TaskStatusChanged"
	QueueReconciled  = "QueueReconciled"
	SupervisorStarted = "SupervisorStarted"
	SupervisorStopped = "SupervisorStopped"
	StateCompacted   = "StateCompacted"
	RefinerySynced   = "RefinerySynced"
	RefinerySyncFailed = "RefinerySyncFailed"
)

// Sink appends structured events to the Persistent Store's audit log.
type Sink struct {
	store  *store.Store
	logger *log.Logger
}

// NewSink returns a sink writing through s, logging failures via logger
// rather than propagating them to the caller.
func NewSink(s *store.Store, logger *log.Logger) *Sink {
	return &Sink{store: s, logger: logger}
}

// Emit appends one event. payload is marshaled to JSON for payload_json;
// marshal or write failures are logged and swallowed, matching the
// documented "never throws on I/O error" contract.
func (s *Sink) Emit(rigID, actorID, workItemID, eventType string, payload interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("[audit] marshal payload for %s: %v", eventType, err)
		payloadJSON = []byte("{}")
	}

	event := model.AuditEvent{
		EventID:     uuid.NewString(),
		RigID:       rigID,
		ActorID:     actorID,
		WorkItemID:  workItemID,
		EventType:   eventType,
		PayloadJSON: string(payloadJSON),
		EmittedAt:   model.RFC3339(time.Now()),
	}

	if err := s.store.AppendAuditLine(event); err != nil {
		s.logger.Printf("[audit] append %s: %v", eventType, err)
	}
}

// Filter narrows Tail's results.
type Filter struct {
	RigID      string
	WorkItemID string
	Last       int // 0 means unlimited
}

// Tail reads the audit log and returns events matching filter, in file
// order, trimmed to the last N if filter.Last is positive.
func (s *Sink) Tail(filter Filter) ([]model.AuditEvent, error) {
	var matched []model.AuditEvent
	err := store.ReadLines(s.store.Path("audit_events.jsonl"), func(line []byte) bool {
		var ev model.AuditEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return true // tolerate a malformed line, keep reading
		}
		if filter.RigID != "" && ev.RigID != filter.RigID {
			return true
		}
		if filter.WorkItemID != "" && ev.WorkItemID != filter.WorkItemID {
			return true
		}
		matched = append(matched, ev)
		return true
	})
	if err != nil {
		return nil, err
	}
	if filter.Last > 0 && len(matched) > filter.Last {
		matched = matched[len(matched)-filter.Last:]
	}
	return matched, nil
}
