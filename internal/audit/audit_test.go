package audit

import (
	"io"
	"log"
	"testing"

	"github.com/tdat-dev/corengine/internal/store"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return NewSink(s, log.New(io.Discard, "", 0))
}

func TestEmitAndTail(t *testing.T) {
	sink := newTestSink(t)

	sink.Emit("rig-1", "", "task-1", WorkerSpawned, map[string]string{"worker_id": "w-1"})
	sink.Emit("rig-2", "", "task-2", HookAssigned, map[string]string{"hook_id": "h-1"})
	sink.Emit("rig-1", "", "task-3", WorkerCompleted, nil)

	all, err := sink.Tail(Filter{})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	rig1, err := sink.Tail(Filter{RigID: "rig-1"})
	if err != nil {
		t.Fatalf("Tail rig-1: %v", err)
	}
	if len(rig1) != 2 {
		t.Fatalf("expected 2 events for rig-1, got %d", len(rig1))
	}

	byWork, err := sink.Tail(Filter{WorkItemID: "task-2"})
	if err != nil {
		t.Fatalf("Tail task-2: %v", err)
	}
	if len(byWork) != 1 || byWork[0].EventType != HookAssigned {
		t.Fatalf("unexpected result: %+v", byWork)
	}
}

func TestTailLastN(t *testing.T) {
	sink := newTestSink(t)
	for i := 0; i < 5; i++ {
		sink.Emit("rig-1", "", "", WorkerSpawned, nil)
	}
	last2, err := sink.Tail(Filter{Last: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(last2) != 2 {
		t.Fatalf("expected 2 events, got %d", len(last2))
	}
}
