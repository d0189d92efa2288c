// Package rig registers and removes Rigs: git repositories on disk that the
// rest of the core operates against.
package rig

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tdat-dev/corengine/internal/corerr"
	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/model"
)

// Registrar registers and removes Rig rows. Registration validates that the
// path exists and contains a .git directory.
type Registrar struct {
	state *corestate.State
}

// New wires a Registrar to state.
func New(state *corestate.State) *Registrar {
	return &Registrar{state: state}
}

// Register validates path and appends a new Rig row.
func (r *Registrar) Register(name, path string) (*model.Rig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, corerr.Wrap(corerr.ValidationFailed, "resolving path %s: %v", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, corerr.Wrap(corerr.ValidationFailed, "rig path %s does not exist or is not a directory", abs)
	}
	if gitInfo, err := os.Stat(filepath.Join(abs, ".git")); err != nil || gitInfo == nil {
		return nil, corerr.Wrap(corerr.ValidationFailed, "rig path %s is not a git repository", abs)
	}

	now := model.RFC3339(corestate.Now())
	row := model.Rig{
		ID:         uuid.NewString(),
		Name:       name,
		Path:       abs,
		CreatedAt:  now,
		LastOpened: now,
	}
	r.state.Rigs.With(func(items []model.Rig) []model.Rig {
		return append(items, row)
	})
	if err := r.state.Rigs.Save(); err != nil {
		r.state.Log.Printf("[rig] persisting rig %s: %v", row.ID, err)
	}
	return &row, nil
}

// Touch updates a rig's last_opened timestamp.
func (r *Registrar) Touch(rigID string) error {
	found := false
	r.state.Rigs.With(func(items []model.Rig) []model.Rig {
		for i := range items {
			if items[i].ID == rigID {
				items[i].LastOpened = model.RFC3339(corestate.Now())
				found = true
			}
		}
		return items
	})
	if !found {
		return corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	return nil
}

// Remove deletes a rig row. It does not touch the filesystem: the
// repository at rig.Path is the outer shell's responsibility, not the
// core's — only worktrees the core itself created are ever unlinked.
func (r *Registrar) Remove(rigID string) error {
	found := false
	r.state.Rigs.With(func(items []model.Rig) []model.Rig {
		out := items[:0]
		for _, item := range items {
			if item.ID == rigID {
				found = true
				continue
			}
			out = append(out, item)
		}
		return out
	})
	if !found {
		return corerr.Wrap(corerr.NotFound, "rig %s not found", rigID)
	}
	return nil
}
