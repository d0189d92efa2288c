package ptyengine

import (
	"sync"

	"github.com/tdat-dev/corengine/internal/model"
)

// EventKind names one of the outer-shell event types the engine emits.
type EventKind string

const (
	EventWorkerPTYData EventKind = "worker-pty-data"
	EventWorkerLog     EventKind = "worker-log"
	EventWorkerStatus  EventKind = "worker-status"
	EventDataChanged   EventKind = "data-changed"
)

// Event is one outer-shell notification. Fields not relevant to Kind are
// left zero; worker-pty-data and worker-log carry Data/LogEntry, worker-status
// carries Status, data-changed carries nothing beyond Kind.
type Event struct {
	Kind     EventKind
	WorkerID string
	Data     string
	LogEntry model.LogEntry
	Status   string
}

// Broadcaster fans out Events to every live subscriber, one buffered channel
// per subscriber. When a subscriber's buffer is full, the event is dropped
// for that subscriber rather than blocking the publisher; the subscriber
// stays registered and receives later events.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel that receives every Event published from this
// point on. Call the returned func to unsubscribe and release the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}
}

func (b *Broadcaster) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; drop rather than block captureAndFinalize.
		}
	}
}
