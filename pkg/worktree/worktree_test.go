package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Add Login Flow":        "add-login-flow",
		"fix bug #123":          "fix-bug-123",
		"  weird__spacing--":    "weird-spacing",
		"":                      "builder",
	}
	for input, want := range cases {
		require.Equal(t, want, Slugify(input), "input: %q", input)
	}
}

func TestSpawnAndCleanup(t *testing.T) {
	repo := initRepo(t)
	m := New(repo)
	ctx := context.Background()

	worktreePath, branch, err := m.Spawn(ctx, "001", "Add Login Flow")
	require.NoError(t, err)
	require.Equal(t, "builder/001-add-login-flow", branch)
	require.DirExists(t, worktreePath)

	dirty, err := m.HasUncommittedChanges(ctx, worktreePath)
	require.NoError(t, err)
	require.False(t, dirty)

	require.NoError(t, m.Cleanup(ctx, worktreePath, branch, false))
	require.NoDirExists(t, worktreePath)
}

func TestCleanup_RefusesDirtyWorktreeWithoutForce(t *testing.T) {
	repo := initRepo(t)
	m := New(repo)
	ctx := context.Background()

	worktreePath, branch, err := m.Spawn(ctx, "002", "Dirty Test")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(worktreePath, "scratch.txt"), []byte("wip"), 0o644))

	err = m.Cleanup(ctx, worktreePath, branch, false)
	require.ErrorIs(t, err, ErrUncommittedChanges)
	require.DirExists(t, worktreePath)

	require.NoError(t, m.Cleanup(ctx, worktreePath, branch, true))
	require.NoDirExists(t, worktreePath)
}
