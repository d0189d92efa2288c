// Package store implements the Persistent Store: one JSON document per
// entity collection, an append-only newline-delimited JSON audit log, and
// per-worker newline-delimited JSON log files, all rooted under a single
// town directory.
//
// Every in-memory collection is guarded by its own mutex. Callers must
// follow the mutation discipline the rest of the core relies on: acquire,
// snapshot or mutate, release, then do I/O — never hold a collection lock
// across a blocking call, and never hold two collection locks at once.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// utf8BOM is the byte sequence readDocument strips before parsing, so
// files produced by BOM-emitting editors still load cleanly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Store owns the root directory and guarantees its sub-directory layout.
type Store struct {
	Root string

	auditMu sync.Mutex
	logMu   sync.Mutex
}

// Layout sub-directories, relative to Store.Root.
const (
	DirWorktrees = "worktrees"
	DirLogs      = "logs"
	DirTemplates = "templates"
)

// Open resolves root (defaulting to "$HOME/.corengine" when empty) and
// creates the directory tree Collections and append sinks expect.
func Open(root string) (*Store, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		root = filepath.Join(home, ".corengine")
	}
	s := &Store{Root: root}
	for _, dir := range []string{"", DirWorktrees, DirLogs, DirTemplates} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return s, nil
}

// Path joins elem onto the store root.
func (s *Store) Path(elem ...string) string {
	return filepath.Join(append([]string{s.Root}, elem...)...)
}

// readDocument loads path, stripping a leading UTF-8 BOM and tolerating a
// missing file by returning fallback (typically "[]" or "{}").
func readDocument(path string, fallback []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return fallback, nil
	}
	return data, nil
}

// writeDocumentAtomic pretty-prints v and replaces path with it. A gofrs/flock
// advisory lock on path+".lock" serializes concurrent writers sharing this
// store root; the write itself goes to a temp file first so a crash mid-write
// never corrupts the previous, still-valid document.
func writeDocumentAtomic(path string, v interface{}) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Collection is an in-memory vector of T backed by one JSON document. It is
// generic across every entity kind (Rig, Crew, Task, ...), giving each one
// scoped mutex per collection.
type Collection[T any] struct {
	mu    sync.Mutex
	path  string
	items []T
}

// NewCollection loads name+".json" under root (an empty array on first run).
func NewCollection[T any](s *Store, name string) (*Collection[T], error) {
	c := &Collection[T]{path: s.Path(name + ".json")}
	data, err := readDocument(c.path, []byte("[]"))
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.path, err)
	}
	c.items = items
	return c, nil
}

// Snapshot returns a shallow copy of the current items under the lock.
func (c *Collection[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// With runs fn under the collection lock, passing it the live slice; the
// slice fn returns becomes the collection's contents, so fn may append,
// filter or edit elements in place. With does not persist anything: callers
// that need to save call Save after With returns. fn must not call Save,
// Snapshot or Len, since each of them takes the same lock.
func (c *Collection[T]) With(fn func(items []T) []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = fn(c.items)
}

// Save persists the collection's current snapshot to disk. It takes the
// lock only long enough to copy the slice, then writes outside the lock —
// I/O never happens while the collection mutex is held.
func (c *Collection[T]) Save() error {
	items := c.Snapshot()
	return writeDocumentAtomic(c.path, items)
}

// Len reports the current item count.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Document is a single JSON object (as opposed to an array) collection,
// used for Settings and SupervisorState.
type Document[T any] struct {
	mu   sync.Mutex
	path string
	val  T
}

// NewDocument loads name+".json" under root, defaulting to zero if absent.
func NewDocument[T any](s *Store, name string, zero T) (*Document[T], error) {
	d := &Document[T]{path: s.Path(name + ".json"), val: zero}
	data, err := readDocument(d.path, nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return d, nil
	}
	if err := json.Unmarshal(data, &d.val); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", d.path, err)
	}
	return d, nil
}

// Get returns the current value under the lock.
func (d *Document[T]) Get() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.val
}

// Set replaces the current value under the lock.
func (d *Document[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.val = v
}

// Save persists the current value to disk.
func (d *Document[T]) Save() error {
	return writeDocumentAtomic(d.path, d.Get())
}

// appendJSONLine appends one JSON-encoded, newline-terminated line to path,
// serialized by mu so concurrent appenders (audit sink, worker log flush)
// never interleave partial lines.
func appendJSONLine(mu *sync.Mutex, path string, v interface{}) error {
	mu.Lock()
	defer mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding line for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

// AppendAuditLine appends one audit event line to audit_events.jsonl.
func (s *Store) AppendAuditLine(v interface{}) error {
	return appendJSONLine(&s.auditMu, s.Path("audit_events.jsonl"), v)
}

// AppendWorkerLogLine appends one LogEntry line to logs/<workerID>.jsonl.
func (s *Store) AppendWorkerLogLine(workerID string, v interface{}) error {
	return appendJSONLine(&s.logMu, s.Path(DirLogs, workerID+".jsonl"), v)
}

// WorkerLogPath returns the on-disk path of a worker's log file.
func (s *Store) WorkerLogPath(workerID string) string {
	return s.Path(DirLogs, workerID+".jsonl")
}

// ReadWorkerLogLines reads every LogEntry.Line from workerID's on-disk log,
// in append order. Used as a fallback for workers with no live handle left
// to hold an in-memory ring.
func (s *Store) ReadWorkerLogLines(workerID string) ([]string, error) {
	var lines []string
	err := ReadLines(s.WorkerLogPath(workerID), func(line []byte) bool {
		var entry struct {
			Line string `json:"line"`
		}
		if jsonErr := json.Unmarshal(line, &entry); jsonErr == nil {
			lines = append(lines, entry.Line)
		}
		return true
	})
	return lines, err
}

// ReadLines reads path and invokes fn once per non-empty line, stopping
// early if fn returns false. Used by the audit sink and log tailers; missing
// files are treated as empty.
func ReadLines(path string, fn func(line []byte) bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !fn(line) {
			break
		}
	}
	return nil
}
