package refinery

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("base\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func newFixture(t *testing.T) (*corestate.State, string) {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	repoDir := initRepo(t)
	return state, repoDir
}

func TestSyncMergesCrewAheadOfBase(t *testing.T) {
	state, repoDir := newFixture(t)

	var base string
	runGit(t, repoDir, "branch", "--show-current")
	out, err := exec.Command("git", "-C", repoDir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		t.Fatalf("rev-parse: %v", err)
	}
	base = trimmed(out)

	worktreePath := filepath.Join(t.TempDir(), "wt")
	runGit(t, repoDir, "worktree", "add", worktreePath, "-b", "crew/feature", base)
	if err := os.WriteFile(filepath.Join(worktreePath, "feature.txt"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, worktreePath, "add", ".")
	runGit(t, worktreePath, "commit", "-m", "feature work")

	state.Rigs.With(func(items []model.Rig) []model.Rig {
		return append(items, model.Rig{ID: "rig-1", Name: "demo", Path: repoDir})
	})
	state.Crews.With(func(items []model.Crew) []model.Crew {
		return append(items, model.Crew{ID: "crew-1", RigID: "rig-1", Branch: "crew/feature", Path: worktreePath, Status: model.CrewActive})
	})

	report, err := New(state).Sync("rig-1", "", false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Merged) != 1 || report.Merged[0] != "crew/feature" {
		t.Fatalf("expected crew/feature merged, got %+v", report)
	}
	if len(report.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", report.Conflicts)
	}
}

func TestSyncSkipsCrewWithZeroCommitsAhead(t *testing.T) {
	state, repoDir := newFixture(t)
	out, _ := exec.Command("git", "-C", repoDir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	base := trimmed(out)

	worktreePath := filepath.Join(t.TempDir(), "wt")
	runGit(t, repoDir, "worktree", "add", worktreePath, "-b", "crew/idle", base)

	state.Rigs.With(func(items []model.Rig) []model.Rig {
		return append(items, model.Rig{ID: "rig-1", Path: repoDir})
	})
	state.Crews.With(func(items []model.Crew) []model.Crew {
		return append(items, model.Crew{ID: "crew-1", RigID: "rig-1", Branch: "crew/idle", Path: worktreePath, Status: model.CrewActive})
	})

	report, err := New(state).Sync("rig-1", "", false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != "zero_commits_ahead" {
		t.Fatalf("expected a zero_commits_ahead skip, got %+v", report)
	}
}

func TestSyncAbortsOnDirtyWorkingTree(t *testing.T) {
	state, repoDir := newFixture(t)
	if err := os.WriteFile(filepath.Join(repoDir, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	state.Rigs.With(func(items []model.Rig) []model.Rig {
		return append(items, model.Rig{ID: "rig-1", Path: repoDir})
	})

	if _, err := New(state).Sync("rig-1", "", false); err == nil {
		t.Fatalf("expected an error for a dirty base working tree")
	}
}

func trimmed(out []byte) string {
	s := string(out)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
