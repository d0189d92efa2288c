// Package crew creates and removes Crews: git worktrees belonging to a rig,
// tying together model.Crew, internal/git and the Persistent Store.
package crew

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/git"
	"github.com/tdat-dev/corengine/internal/model"
)

// GitFactory builds a driver rooted at dir; overridable in tests.
type GitFactory func(dir string) *git.Git

// Orchestrator creates and removes crew worktrees.
type Orchestrator struct {
	state  *corestate.State
	gitFor GitFactory
}

// New wires an Orchestrator to state, using git.NewGit unless overridden.
func New(state *corestate.State) *Orchestrator {
	return &Orchestrator{state: state, gitFor: git.NewGit}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9\-]+`)

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "crew"
	}
	return s
}

// Create registers a new worktree for rigID named name on branch, based off
// baseBranch (the rig's current branch when empty). The worktree directory
// and branch exist by the time Create returns successfully.
func (o *Orchestrator) Create(rigID, name, branch, baseBranch string) (*model.Crew, error) {
	rig, ok := o.state.FindRig(rigID)
	if !ok {
		return nil, corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}

	repo := o.gitFor(rig.Path)
	if baseBranch == "" {
		var err error
		baseBranch, err = repo.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("resolving base branch: %w", err)
		}
	}
	if branch == "" {
		branch = "crew/" + slugify(name)
	}

	id := uuid.NewString()
	worktreePath := o.state.Store.Path("worktrees", rigID, slugify(name)+"-"+id[:8])
	if err := repo.CreateWorktree(worktreePath, branch, baseBranch); err != nil {
		return nil, fmt.Errorf("creating worktree for crew %s: %w", name, err)
	}

	row := model.Crew{
		ID:        id,
		RigID:     rigID,
		Name:      name,
		Branch:    branch,
		Path:      worktreePath,
		Status:    model.CrewActive,
		CreatedAt: model.RFC3339(corestate.Now()),
	}
	o.state.Crews.With(func(items []model.Crew) []model.Crew {
		return append(items, row)
	})
	return &row, nil
}

// Remove soft-deletes crewID: flips its status to Removed, then unlinks the
// worktree directory from the rig's repository. The status flip happens
// first so a crash mid-removal never leaves a crew looking Active over a
// worktree that no longer exists.
func (o *Orchestrator) Remove(crewID string) error {
	crew, ok := o.state.FindCrew(crewID)
	if !ok {
		return corerr.Wrap(corerr.NotFound, "crew %s not found", crewID)
	}
	rig, ok := o.state.FindRig(crew.RigID)
	if !ok {
		return corerr.Wrap(corerr.NotFound, "rig %s not found", crew.RigID)
	}

	o.state.Crews.With(func(items []model.Crew) []model.Crew {
		for i := range items {
			if items[i].ID == crewID {
				items[i].Status = model.CrewRemoved
			}
		}
		return items
	})
	if err := o.state.Crews.Save(); err != nil {
		return fmt.Errorf("persisting removal of crew %s: %w", crewID, err)
	}

	repo := o.gitFor(rig.Path)
	if err := repo.RemoveWorktree(crew.Path); err != nil {
		return fmt.Errorf("unlinking worktree for crew %s: %w", crewID, err)
	}
	return nil
}

// PathFor returns worktrees/<rigID>/<slug of name> under the store root,
// without creating anything. Create's actual worktree path is this path
// followed by "-" and the first 8 characters of the new crew's id.
func (o *Orchestrator) PathFor(rigID, name string) string {
	return filepath.Join(o.state.Store.Path("worktrees", rigID), slugify(name))
}
