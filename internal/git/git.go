// Package git is the Git Worktree Driver: it shells out to the git binary
// and parses its textual output. Every operation is synchronous and
// blocking; callers that cannot block must offload onto a goroutine pool.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tdat-dev/corengine/internal/corerr"
)

// Git drives the git binary against one working directory.
type Git struct {
	dir string
}

// NewGit returns a driver rooted at dir.
func NewGit(dir string) *Git {
	return &Git{dir: dir}
}

// WorkDir returns the driver's working directory.
func (g *Git) WorkDir() string { return g.dir }

func (g *Git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return "", corerr.Wrap(corerr.IntegrationFailed, "git %s: %v: %s", strings.Join(args, " "), err, text)
	}
	return text, nil
}

// IsRepo reports whether dir contains a .git directory.
func (g *Git) IsRepo() bool {
	_, err := os.Stat(filepath.Join(g.dir, ".git"))
	return err == nil
}

// CurrentBranch returns the checked-out branch name via rev-parse.
func (g *Git) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

// StatusInfo reports a human summary ("Clean" or "N changed file(s)") and
// the changed-file count, from porcelain short status.
func (g *Git) StatusInfo() (string, int, error) {
	out, err := g.run("status", "--short")
	if err != nil {
		return "", 0, err
	}
	if out == "" {
		return "Clean", 0, nil
	}
	lines := strings.Split(out, "\n")
	return fmt.Sprintf("%d changed file(s)", len(lines)), len(lines), nil
}

// ListBranches returns local branch names, trimmed.
func (g *Git) ListBranches() ([]string, error) {
	out, err := g.run("branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// BranchExists reports whether name exists as a local branch.
func (g *Git) BranchExists(name string) (bool, error) {
	branches, err := g.ListBranches()
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateWorktree runs `worktree add targetPath -b newBranch baseBranch`.
func (g *Git) CreateWorktree(targetPath, newBranch, baseBranch string) error {
	_, err := g.run("worktree", "add", targetPath, "-b", newBranch, baseBranch)
	return err
}

// RemoveWorktree forcefully removes targetPath as a worktree.
func (g *Git) RemoveWorktree(targetPath string) error {
	_, err := g.run("worktree", "remove", targetPath, "--force")
	return err
}

// DeleteBranch force-deletes a local branch.
func (g *Git) DeleteBranch(name string) error {
	_, err := g.run("branch", "-D", name)
	return err
}

// PushBranch publishes a local branch to origin with upstream tracking.
func (g *Git) PushBranch(name string) error {
	_, err := g.run("push", "-u", "origin", name)
	return err
}

// DeleteRemoteBranch deletes name from origin.
func (g *Git) DeleteRemoteBranch(name string) error {
	_, err := g.run("push", "origin", "--delete", name)
	return err
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (g *Git) HasUncommittedChanges() (bool, error) {
	out, err := g.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// FetchAll runs `fetch --all --prune`.
func (g *Git) FetchAll() error {
	_, err := g.run("fetch", "--all", "--prune")
	return err
}

// CheckoutBranch checks out an existing branch.
func (g *Git) CheckoutBranch(name string) error {
	_, err := g.run("checkout", name)
	return err
}

// PullFFOnly fast-forwards the current branch from remote/branch.
func (g *Git) PullFFOnly(remote, branch string) error {
	_, err := g.run("pull", "--ff-only", remote, branch)
	return err
}

// MergeNoFFNoEdit merges branch into the current branch without a fast
// forward and without prompting for a commit message.
func (g *Git) MergeNoFFNoEdit(branch string) error {
	_, err := g.run("merge", "--no-ff", "--no-edit", branch)
	return err
}

// AbortMerge aborts an in-progress merge; failures are swallowed since this
// is itself a best-effort cleanup step.
func (g *Git) AbortMerge() {
	_, _ = g.run("merge", "--abort")
}

// CountCommitsAhead returns the number of commits branch has beyond base.
func (g *Git) CountCommitsAhead(base, branch string) (int, error) {
	out, err := g.run("rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, corerr.Wrap(corerr.IntegrationFailed, "parsing rev-list count %q: %v", out, convErr)
	}
	return n, nil
}

// DiffStat returns a diff --stat summary, preferring HEAD~1..HEAD and
// falling back to a working-tree diff when there is no parent commit or no
// output (e.g. the first commit in a worktree).
func (g *Git) DiffStat() (string, error) {
	if out, err := g.run("diff", "--stat", "HEAD~1..HEAD"); err == nil && out != "" {
		return out, nil
	}
	return g.run("diff", "--stat")
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
