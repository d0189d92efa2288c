package ptyengine

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// liveHandle is the in-memory counterpart to a model.Worker row: the actual
// OS-level process/PTY plumbing that the Persistent Store can't hold.
// Exactly one exists per running worker, registered by worker id.
type liveHandle struct {
	workerID string

	cmd  *exec.Cmd
	ptmx *os.File // nil when spawned without a PTY (Codex-on-Windows fast path)

	ring *logRing

	mu       sync.Mutex
	stopped  bool
	doneCh   chan struct{}
}

func newLiveHandle(workerID string, cmd *exec.Cmd, ptmx *os.File) *liveHandle {
	return &liveHandle{
		workerID: workerID,
		cmd:      cmd,
		ptmx:     ptmx,
		ring:     newLogRing(),
		doneCh:   make(chan struct{}),
	}
}

// Write sends input to the worker's stdin (its PTY, when one exists).
func (h *liveHandle) Write(data []byte) error {
	if h.ptmx != nil {
		_, err := h.ptmx.Write(data)
		return err
	}
	if stdin, ok := h.cmd.Stdin.(*os.File); ok {
		_, err := stdin.Write(data)
		return err
	}
	return errNoWritableStdin
}

// Resize changes the PTY's reported window size. A no-op when the worker
// was spawned without a PTY.
func (h *liveHandle) Resize(cols, rows uint16) error {
	if h.ptmx == nil {
		return nil
	}
	return pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// markStopped records that the handle is no longer backed by a live
// process and signals doneCh exactly once.
func (h *liveHandle) markStopped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.doneCh)
}

// registry is the process-wide map from worker id to its live handle.
type registry struct {
	mu      sync.Mutex
	handles map[string]*liveHandle
}

func newRegistry() *registry {
	return &registry{handles: make(map[string]*liveHandle)}
}

func (r *registry) put(h *liveHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.workerID] = h
}

func (r *registry) get(workerID string) (*liveHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[workerID]
	return h, ok
}

func (r *registry) remove(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, workerID)
}
