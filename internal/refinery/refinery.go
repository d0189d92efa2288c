// Package refinery implements the per-rig merge queue: it folds every
// active crew's branch into a base branch, synchronously, reporting merges,
// skips, conflicts and warnings.
package refinery

import (
	"fmt"
	"log"
	"time"

	"github.com/tdat-dev/corengine/internal/audit"
	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/git"
	"github.com/tdat-dev/corengine/internal/model"
)

// GitFactory builds a driver rooted at a worktree path. A factory (rather
// than a single *git.Git) lets Engineer drive both the rig's main checkout
// and each crew's own worktree.
type GitFactory func(dir string) *git.Git

// Engineer drives the merge-queue sync algorithm against shared state.
type Engineer struct {
	state  *corestate.State
	gitFor GitFactory
	log    *log.Logger
}

// New wires an Engineer to state, using git.NewGit unless overridden.
func New(state *corestate.State) *Engineer {
	return &Engineer{
		state:  state,
		gitFor: git.NewGit,
		log:    log.New(state.Log.Writer(), "[refinery] ", log.LstdFlags),
	}
}

// ConflictEntry records one crew branch that failed to merge cleanly.
type ConflictEntry struct {
	CrewID string
	Branch string
	Detail string
}

// SkippedEntry records a crew branch that was deliberately not merged.
type SkippedEntry struct {
	CrewID string
	Branch string
	Reason string
}

// SyncReport is sync_rig's structured return value.
type SyncReport struct {
	RigID          string
	BaseBranch     string
	Merged         []string
	Skipped        []SkippedEntry
	Conflicts      []ConflictEntry
	Warnings       []string
	Pushed         bool
	RestoredBranch string
}

// SyncRig implements the Refinery satisfying supervisor.RefinerySyncer;
// baseBranch empty means "use the rig's current HEAD".
func (e *Engineer) SyncRig(rigID, baseBranch string, push bool) error {
	_, err := e.Sync(rigID, baseBranch, push)
	return err
}

// Sync runs the full 9-step merge-queue algorithm for one rig.
func (e *Engineer) Sync(rigID, baseBranch string, push bool) (*SyncReport, error) {
	rig, ok := e.state.FindRig(rigID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	crews := activeCrews(e.state.Crews.Snapshot(), rigID)

	repo := e.gitFor(rig.Path)
	report := &SyncReport{RigID: rigID}

	originalBranch, err := repo.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("resolving current branch: %w", err)
	}
	if baseBranch == "" {
		baseBranch = originalBranch
	}
	report.BaseBranch = baseBranch

	dirty, err := repo.HasUncommittedChanges()
	if err != nil {
		return nil, fmt.Errorf("checking dirty state: %w", err)
	}
	if dirty {
		e.state.Audit.Emit(rigID, "", "", audit.RefinerySyncFailed, map[string]string{"reason": "dirty_working_tree"})
		return nil, corerr.Wrap(corerr.PreconditionFailed, "rig %s working tree is dirty", rigID)
	}

	if err := repo.FetchAll(); err != nil {
		report.Warnings = append(report.Warnings, "fetch --all failed: "+err.Error())
	}

	switchedBranch := false
	if originalBranch != baseBranch {
		if err := repo.CheckoutBranch(baseBranch); err != nil {
			return nil, fmt.Errorf("checking out base branch %s: %w", baseBranch, err)
		}
		switchedBranch = true
	}
	if err := repo.PullFFOnly("origin", baseBranch); err != nil {
		report.Warnings = append(report.Warnings, "pull --ff-only failed: "+err.Error())
	}

	for _, crew := range crews {
		if crew.Branch == baseBranch {
			report.Skipped = append(report.Skipped, SkippedEntry{CrewID: crew.ID, Branch: crew.Branch, Reason: "branch_equals_base"})
			continue
		}

		crewRepo := e.gitFor(crew.Path)
		dirty, derr := crewRepo.HasUncommittedChanges()
		if derr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("checking crew %s dirty state: %v", crew.ID, derr))
			continue
		}
		if dirty {
			report.Skipped = append(report.Skipped, SkippedEntry{CrewID: crew.ID, Branch: crew.Branch, Reason: "crew_worktree_dirty"})
			continue
		}

		ahead, aerr := repo.CountCommitsAhead(baseBranch, crew.Branch)
		if aerr != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("counting commits ahead for %s: %v", crew.ID, aerr))
			continue
		}
		if ahead == 0 {
			report.Skipped = append(report.Skipped, SkippedEntry{CrewID: crew.ID, Branch: crew.Branch, Reason: "zero_commits_ahead"})
			continue
		}

		if err := repo.MergeNoFFNoEdit(crew.Branch); err != nil {
			repo.AbortMerge()
			report.Conflicts = append(report.Conflicts, ConflictEntry{CrewID: crew.ID, Branch: crew.Branch, Detail: err.Error()})
			continue
		}
		report.Merged = append(report.Merged, crew.Branch)
	}

	if len(report.Merged) > 0 && push {
		if err := pushWithBackoff(repo, baseBranch); err != nil {
			report.Warnings = append(report.Warnings, "push failed: "+err.Error())
		} else {
			report.Pushed = true
		}
	}

	if switchedBranch {
		if err := repo.CheckoutBranch(originalBranch); err != nil {
			report.Warnings = append(report.Warnings, "restoring original branch failed: "+err.Error())
		} else {
			report.RestoredBranch = originalBranch
		}
	}

	if len(report.Conflicts) == 0 {
		e.state.Audit.Emit(rigID, "", "", audit.RefinerySynced, map[string]int{"merged": len(report.Merged), "skipped": len(report.Skipped)})
	} else {
		e.state.Audit.Emit(rigID, "", "", audit.RefinerySyncFailed, map[string]int{"conflicts": len(report.Conflicts)})
	}

	return report, nil
}

// Anomaly is one stale-claim or orphaned-branch finding from Anomalies.
type Anomaly struct {
	CrewID string
	Branch string
	Kind   string // "stale_claim" or "orphaned_branch"
	Detail string
}

// staleClaimThreshold is how long a crew can sit with zero commits ahead of
// base before it's flagged as a stale claim rather than simply idle.
const staleClaimThreshold = 24 * time.Hour

// Anomalies surfaces crew branches that look abandoned: crews created long
// ago with no commits ahead of base ("stale_claim"), and crew branches
// whose crew record has been soft-deleted but whose branch still exists on
// disk ("orphaned_branch").
func (e *Engineer) Anomalies(rigID string, now time.Time) ([]Anomaly, error) {
	rig, ok := e.state.FindRig(rigID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	repo := e.gitFor(rig.Path)
	baseBranch, err := repo.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("resolving base branch: %w", err)
	}

	var anomalies []Anomaly
	for _, crew := range e.state.Crews.Snapshot() {
		if crew.RigID != rigID {
			continue
		}

		createdAt, perr := time.Parse(time.RFC3339, crew.CreatedAt)
		if perr == nil && now.Sub(createdAt) > staleClaimThreshold && crew.Status == model.CrewActive {
			ahead, aerr := repo.CountCommitsAhead(baseBranch, crew.Branch)
			if aerr == nil && ahead == 0 {
				anomalies = append(anomalies, Anomaly{CrewID: crew.ID, Branch: crew.Branch, Kind: "stale_claim",
					Detail: fmt.Sprintf("no commits ahead of %s since %s", baseBranch, crew.CreatedAt)})
			}
		}

		if crew.Status == model.CrewRemoved {
			if exists, berr := repo.BranchExists(crew.Branch); berr == nil && exists {
				anomalies = append(anomalies, Anomaly{CrewID: crew.ID, Branch: crew.Branch, Kind: "orphaned_branch",
					Detail: "crew soft-deleted but branch still exists"})
			}
		}
	}
	return anomalies, nil
}

func activeCrews(crews []model.Crew, rigID string) []model.Crew {
	var out []model.Crew
	for _, c := range crews {
		if c.RigID == rigID && c.Status == model.CrewActive {
			out = append(out, c)
		}
	}
	return out
}

const (
	pushBaseBackoff = 1 * time.Second
	pushMaxBackoff  = 8 * time.Second
	pushMaxAttempts = 3
)

// pushWithBackoff retries a flaky remote push with exponential backoff,
// capped at pushMaxBackoff. Pushes fail transiently (remote momentarily
// unreachable, concurrent ref update) far more often than they fail for a
// reason retrying would fix twice, so attempts are capped low.
func pushWithBackoff(repo *git.Git, baseBranch string) error {
	var lastErr error
	backoff := pushBaseBackoff
	for attempt := 1; attempt <= pushMaxAttempts; attempt++ {
		if err := repo.PushBranch(baseBranch); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < pushMaxAttempts {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > pushMaxBackoff {
				backoff = pushMaxBackoff
			}
		}
	}
	return lastErr
}
