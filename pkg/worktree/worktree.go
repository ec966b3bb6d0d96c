package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUncommittedChanges is returned by Cleanup when the worktree has
// uncommitted changes and force was not requested (§4.4 step 1).
var ErrUncommittedChanges = fmt.Errorf("worktree: uncommitted changes present")

// Manager drives `git worktree` operations rooted at one project checkout.
// It owns no process or State Store state — the Orchestrator sequences
// Manager calls alongside supervisor.KillGracefully and the State Store
// per §4.4's numbered spawn/cleanup steps.
type Manager struct {
	repoRoot string
}

// New creates a Manager rooted at repoRoot (the project's primary git
// checkout, the directory `af start` was run from).
func New(repoRoot string) *Manager {
	return &Manager{repoRoot: repoRoot}
}

// WorktreeDir returns the path a builder's worktree would live at:
// .builders/<id>, relative to repoRoot.
func (m *Manager) WorktreeDir(builderID string) string {
	return filepath.Join(m.repoRoot, ".builders", builderID)
}

// BranchName returns builder/<id>-<slug>, slugifying name for a git-safe
// branch suffix.
func BranchName(builderID, name string) string {
	return fmt.Sprintf("builder/%s-%s", builderID, Slugify(name))
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses runs of non-alphanumeric characters to
// a single hyphen, trimming leading/trailing hyphens.
func Slugify(s string) string {
	lowered := strings.ToLower(s)
	slug := slugInvalid.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "builder"
	}
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug
}

// Spawn creates a new worktree on a new branch for builderID, per §4.4
// steps 1-4 (step 5, writing scratch files, is the caller's responsibility
// since it depends on builder type and role content pkg/worktree has no
// knowledge of). Returns the absolute worktree path and branch name.
func (m *Manager) Spawn(ctx context.Context, builderID, name string) (worktreePath, branch string, err error) {
	branch = BranchName(builderID, name)
	worktreePath = m.WorktreeDir(builderID)

	if err := m.run(ctx, "worktree", "prune"); err != nil {
		return "", "", fmt.Errorf("worktree: prune before spawn: %w", err)
	}

	if err := m.run(ctx, "branch", branch, "HEAD"); err != nil {
		return "", "", fmt.Errorf("worktree: create branch %s: %w", branch, err)
	}

	if err := m.run(ctx, "worktree", "add", worktreePath, branch); err != nil {
		_ = m.run(ctx, "branch", "-D", branch)
		return "", "", fmt.Errorf("worktree: add %s on %s: %w", worktreePath, branch, err)
	}

	return worktreePath, branch, nil
}

// HasUncommittedChanges reports whether worktreePath has any pending
// changes (tracked modifications, staged changes, or untracked files).
func (m *Manager) HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", worktreePath, "status", "--porcelain")
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("worktree: status %s: %w", worktreePath, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// Cleanup removes a worktree and its branch, per §4.4 steps 1, 4, 5, 7
// (steps 2/3/6 — killing the bridge/session and removing the State Store
// row — are the Orchestrator's job, sequenced around this call).
func (m *Manager) Cleanup(ctx context.Context, worktreePath, branch string, force bool) error {
	if _, err := os.Stat(worktreePath); err == nil {
		dirty, err := m.HasUncommittedChanges(ctx, worktreePath)
		if err != nil {
			return err
		}
		if dirty && !force {
			return ErrUncommittedChanges
		}
	}

	removeArgs := []string{"worktree", "remove"}
	if force {
		removeArgs = append(removeArgs, "--force")
	}
	removeArgs = append(removeArgs, worktreePath)
	if err := m.run(ctx, removeArgs...); err != nil {
		return fmt.Errorf("worktree: remove %s: %w", worktreePath, err)
	}

	branchFlag := "-d"
	if force {
		branchFlag = "-D"
	}
	if err := m.run(ctx, "branch", branchFlag, branch); err != nil {
		return fmt.Errorf("worktree: delete branch %s: %w", branch, err)
	}

	if err := m.run(ctx, "worktree", "prune"); err != nil {
		return fmt.Errorf("worktree: prune after cleanup: %w", err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.repoRoot}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
