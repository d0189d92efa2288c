package ptyengine

import (
	"errors"
	"os"
	"os/exec"
	"strings"
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
	if err := os.WriteFile(dir+"/README.md", []byte("base\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

func newEngineFixture(t *testing.T) (*Engine, *corestate.State, string) {
	t.Helper()
	state, err := corestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("corestate.Open: %v", err)
	}
	repoDir := initRepo(t)
	state.Rigs.With(func(items []model.Rig) []model.Rig {
		return append(items, model.Rig{ID: "rig-1", Path: repoDir})
	})
	return New(state), state, repoDir
}

// addWorktreeCrew creates a real worktree+branch against repoDir and records
// a matching Crew row, mirroring what a Polecat spawn does on the happy path.
func addWorktreeCrew(t *testing.T, state *corestate.State, repoDir string) model.Crew {
	t.Helper()
	worktreePath := repoDir + "-wt"
	runGit(t, repoDir, "worktree", "add", worktreePath, "-b", "polecat-branch")
	crew := model.Crew{ID: "crew-1", RigID: "rig-1", Name: "Polecat", Branch: "polecat-branch", Path: worktreePath, Status: model.CrewActive}
	state.Crews.With(func(items []model.Crew) []model.Crew { return append(items, crew) })
	return crew
}

func TestGcPolecatCrewRemovesWorktreeBranchAndSoftDeletesCrew(t *testing.T) {
	engine, state, repoDir := newEngineFixture(t)
	crew := addWorktreeCrew(t, state, repoDir)

	engine.gcPolecatCrew(crew.ID)

	if _, err := os.Stat(crew.Path); !os.IsNotExist(err) {
		t.Fatalf("expected polecat worktree to be removed, stat err=%v", err)
	}
	branches, err := engineGitBranches(t, repoDir)
	if err != nil {
		t.Fatalf("listing branches: %v", err)
	}
	for _, b := range branches {
		if b == "polecat-branch" {
			t.Fatalf("expected polecat-branch to be deleted, branches=%v", branches)
		}
	}
	got, ok := state.FindCrew(crew.ID)
	if !ok || got.Status != model.CrewRemoved {
		t.Fatalf("expected crew soft-deleted (Removed), got %+v ok=%v", got, ok)
	}
}

func engineGitBranches(t *testing.T, dir string) ([]string, error) {
	t.Helper()
	cmd := exec.Command("git", "branch", "--format=%(refname:short)")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			branches = append(branches, strings.TrimSpace(line))
		}
	}
	return branches, nil
}

func TestFinalizeGarbageCollectsPolecatCrewOnExit(t *testing.T) {
	engine, state, repoDir := newEngineFixture(t)
	crew := addWorktreeCrew(t, state, repoDir)

	worker := model.Worker{ID: "worker-1", RigID: "rig-1", CrewID: crew.ID, Type: model.WorkerPolecat, Status: model.WorkerRunning}
	state.Workers.With(func(items []model.Worker) []model.Worker { return append(items, worker) })

	h := newLiveHandle(worker.ID, &exec.Cmd{}, nil)
	engine.finalize(h, &worker, nil)

	if _, err := os.Stat(crew.Path); !os.IsNotExist(err) {
		t.Fatalf("expected polecat worktree to be removed after finalize, stat err=%v", err)
	}
	got, ok := state.FindCrew(crew.ID)
	if !ok || got.Status != model.CrewRemoved {
		t.Fatalf("expected crew soft-deleted after finalize, got %+v ok=%v", got, ok)
	}
}

func TestFinalizeDoesNotGarbageCollectNonPolecatCrew(t *testing.T) {
	engine, state, repoDir := newEngineFixture(t)
	crew := addWorktreeCrew(t, state, repoDir)

	worker := model.Worker{ID: "worker-1", RigID: "rig-1", CrewID: crew.ID, Type: model.WorkerCrew, Status: model.WorkerRunning}
	state.Workers.With(func(items []model.Worker) []model.Worker { return append(items, worker) })

	h := newLiveHandle(worker.ID, &exec.Cmd{}, nil)
	engine.finalize(h, &worker, nil)

	if _, err := os.Stat(crew.Path); err != nil {
		t.Fatalf("expected non-polecat worktree to survive finalize, stat err=%v", err)
	}
	got, ok := state.FindCrew(crew.ID)
	if !ok || got.Status != model.CrewActive {
		t.Fatalf("expected crew untouched by finalize, got %+v ok=%v", got, ok)
	}
}

func TestFinalizeAppendsSyntheticStderrEntryOnFailure(t *testing.T) {
	engine, state, _ := newEngineFixture(t)
	worker := model.Worker{ID: "worker-1", RigID: "rig-1", Status: model.WorkerRunning}
	state.Workers.With(func(items []model.Worker) []model.Worker { return append(items, worker) })

	h := newLiveHandle(worker.ID, &exec.Cmd{}, nil)
	engine.finalize(h, &worker, errors.New("signal: killed"))

	lines, err := state.Store.ReadWorkerLogLines(worker.ID)
	if err != nil {
		t.Fatalf("ReadWorkerLogLines: %v", err)
	}
	if len(lines) != 1 || lines[0] != "Process terminated unexpectedly (no exit code)" {
		t.Fatalf("expected one synthetic failure line, got %v", lines)
	}
	ring := h.Snapshot()
	if len(ring) != 1 || ring[0] != "Process terminated unexpectedly (no exit code)" {
		t.Fatalf("expected the ring to also carry the synthetic failure line, got %v", ring)
	}

	got, _ := state.FindWorker(worker.ID)
	if got.Status != model.WorkerFailed {
		t.Fatalf("expected worker marked Failed, got %+v", got)
	}
}

func TestFinalizeNoSyntheticEntryOnSuccess(t *testing.T) {
	engine, state, _ := newEngineFixture(t)
	worker := model.Worker{ID: "worker-1", RigID: "rig-1", Status: model.WorkerRunning}
	state.Workers.With(func(items []model.Worker) []model.Worker { return append(items, worker) })

	h := newLiveHandle(worker.ID, &exec.Cmd{}, nil)
	engine.finalize(h, &worker, nil)

	lines, err := state.Store.ReadWorkerLogLines(worker.ID)
	if err != nil {
		t.Fatalf("ReadWorkerLogLines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no synthetic log lines on a clean exit, got %v", lines)
	}
}
