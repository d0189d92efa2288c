package rig

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/tdat-dev/corengine/internal/corestate"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v: %s", err, out)
	}
	return dir
}

func TestRegisterAcceptsGitRepo(t *testing.T) {
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	dir := initRepo(t)

	r, err := New(state).Register("demo", dir)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Path != dir && filepath.Clean(r.Path) != filepath.Clean(dir) {
		t.Fatalf("expected path %s, got %s", dir, r.Path)
	}
	if len(state.Rigs.Snapshot()) != 1 {
		t.Fatalf("expected one rig row persisted")
	}
}

func TestRegisterRejectsNonGitDir(t *testing.T) {
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	dir := t.TempDir()

	if _, err := New(state).Register("demo", dir); err == nil {
		t.Fatalf("expected an error for a non-git directory")
	}
}

func TestRegisterRejectsMissingPath(t *testing.T) {
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}

	if _, err := New(state).Register("demo", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected an error for a missing path")
	}
}

func TestRemoveDeletesRigRow(t *testing.T) {
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	dir := initRepo(t)
	r, err := New(state).Register("demo", dir)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := New(state).Remove(r.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(state.Rigs.Snapshot()) != 0 {
		t.Fatalf("expected rig row removed")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected the repository directory itself to survive Remove: %v", err)
	}
}
