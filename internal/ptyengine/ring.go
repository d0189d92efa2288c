package ptyengine

import "sync"

// ringCapacity is the maximum number of lines a worker's in-memory log ring
// holds before it drains its oldest entries.
const ringCapacity = 5000

// ringDrain is how many oldest lines are dropped once the ring hits
// ringCapacity, so draining doesn't happen on every single append.
const ringDrain = 500

// logRing buffers a worker's captured output lines in memory for
// get_worker_logs, independent of the append-only on-disk log file.
type logRing struct {
	mu    sync.Mutex
	lines []string
}

func newLogRing() *logRing {
	return &logRing{lines: make([]string, 0, ringCapacity)}
}

// Append adds line to the ring, draining the oldest ringDrain entries if the
// ring is at capacity.
func (r *logRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) >= ringCapacity {
		r.lines = append([]string{}, r.lines[ringDrain:]...)
	}
	r.lines = append(r.lines, line)
}

// Snapshot returns a copy of the lines currently buffered.
func (r *logRing) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
