package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfarm/agentfarm/pkg/registry"
	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/supervisor"
	"github.com/agentfarm/agentfarm/pkg/types"
)

func TestNextBuilderID_SpecModeZeroPads(t *testing.T) {
	o := &Orchestrator{}
	state := &types.State{Builders: []*types.Builder{
		{ID: "0001", Type: types.BuilderTypeSpec},
		{ID: "0003", Type: types.BuilderTypeSpec},
		{ID: "abcd1234", Type: types.BuilderTypeTask},
	}}
	assert.Equal(t, "0004", o.nextBuilderID(state, SpawnSpec))
}

func TestNextBuilderID_OtherModesAreShortAlphanumeric(t *testing.T) {
	o := &Orchestrator{}
	id := o.nextBuilderID(&types.State{}, SpawnTask)
	assert.Len(t, id, 8)
}

func TestTabCount(t *testing.T) {
	state := &types.State{
		Builders:    []*types.Builder{{}, {}},
		Utils:       []*types.UtilTerminal{{}},
		Annotations: []*types.Annotation{{}, {}, {}},
	}
	assert.Equal(t, 6, tabCount(state))
}

func TestUsedPorts(t *testing.T) {
	state := &types.State{
		Architect:   &types.Architect{Port: 4201},
		Builders:    []*types.Builder{{Port: 4210}, {Port: 4211}},
		Utils:       []*types.UtilTerminal{{Port: 4230}},
		Annotations: []*types.Annotation{{Port: 4250}},
	}
	used := usedPorts(state)
	assert.True(t, used[4201])
	assert.True(t, used[4210])
	assert.True(t, used[4211])
	assert.True(t, used[4230])
	assert.True(t, used[4250])
	assert.False(t, used[4212])
}

func TestNextFreePort_SkipsUsed(t *testing.T) {
	used := map[int]bool{4210: true, 4211: true}
	port, err := nextFreePort(4200, offsetBuilderLo, offsetBuilderHi, used)
	assert.NoError(t, err)
	assert.Equal(t, 4212, port)
}

func TestSortBuilders(t *testing.T) {
	builders := []*types.Builder{{ID: "0003"}, {ID: "0001"}, {ID: "0002"}}
	sorted := sortBuilders(builders)
	assert.Equal(t, []string{"0001", "0002", "0003"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestWriteBuilderScratch_TaskModeWritesPromptRoleAndStartScript(t *testing.T) {
	dir := t.TempDir()
	opts := SpawnOptions{Mode: SpawnTask, TaskText: "fix the flaky test", Files: []string{"pkg/foo/foo.go"}}

	scratchCmd, err := writeBuilderScratch(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, "cd "+dir+" && sh .builder-start.sh", scratchCmd)

	prompt, err := os.ReadFile(filepath.Join(dir, ".builder-prompt.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "fix the flaky test")
	assert.Contains(t, string(prompt), "pkg/foo/foo.go")

	role, err := os.ReadFile(filepath.Join(dir, ".builder-role.md"))
	require.NoError(t, err)
	assert.Contains(t, string(role), "task")

	start, err := os.ReadFile(filepath.Join(dir, ".builder-start.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(start), ".builder-prompt.txt")
	assert.Contains(t, string(start), ".builder-role.md")
}

func TestWriteBuilderScratch_NoRoleSkipsRoleFile(t *testing.T) {
	dir := t.TempDir()
	_, err := writeBuilderScratch(dir, SpawnOptions{Mode: SpawnProtocol, ProtocolName: "release", NoRole: true})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ".builder-role.md"))
	assert.True(t, os.IsNotExist(err))

	start, err := os.ReadFile(filepath.Join(dir, ".builder-start.sh"))
	require.NoError(t, err)
	assert.NotContains(t, string(start), ".builder-role.md")
}

func TestWriteBuilderScratch_EmptyWorktreeIsNoop(t *testing.T) {
	scratchCmd, err := writeBuilderScratch("", SpawnOptions{Mode: SpawnShell})
	require.NoError(t, err)
	assert.Empty(t, scratchCmd)
}

// fakeTmux writes a script standing in for tmux that appends each
// invocation's arguments to a log file, mirroring pkg/supervisor's own test
// substitution of the multiplexer binary.
func fakeTmux(t *testing.T) (binPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binPath = filepath.Join(dir, "tmux-fake.sh")
	script := `#!/bin/sh
{
  printf '--call--\n'
  for a in "$@"; do printf '%s\n' "$a"; done
} >> "` + logPath + `"
exit 0
`
	require.NoError(t, os.WriteFile(binPath, []byte(script), 0o755))
	return binPath, logPath
}

func newTestOrchestrator(t *testing.T, projectPath string) (orch *Orchestrator, store *storage.Store, tmuxLogPath string) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg, err := registry.Open(filepath.Join(t.TempDir(), "global.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	tmuxBin, logPath := fakeTmux(t)
	sup := supervisor.New(tmuxBin, "ttyd", t.TempDir(), zerolog.Nop())

	return New(projectPath, store, reg, sup, nil, nil, 0, zerolog.Nop()), store, logPath
}

func TestSend_FileOptionReadsAndDeliversFileContents(t *testing.T) {
	projectPath := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectPath, "notes.txt"), []byte("ship it"), 0o644))

	orch, store, logPath := newTestOrchestrator(t, projectPath)
	b := &types.Builder{
		ID: "builder-0001", Name: "builder-0001", Port: 9101, Status: types.BuilderStatusSpawning,
		Type: types.BuilderTypeTask, SessionName: "af-builder-0001", CreatedAt: time.Now(),
	}
	require.NoError(t, store.UpsertBuilder(b))

	err := orch.Send(context.Background(), b.ID, "notes.txt", SendOptions{File: true, Sender: "architect"})
	require.NoError(t, err)

	out, readErr := os.ReadFile(logPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(out), "ship it")
}

func TestSend_FileOptionRejectsPathEscape(t *testing.T) {
	projectPath := t.TempDir()
	orch, store, _ := newTestOrchestrator(t, projectPath)
	b := &types.Builder{
		ID: "builder-0001", Name: "builder-0001", Port: 9101, Status: types.BuilderStatusSpawning,
		Type: types.BuilderTypeTask, SessionName: "af-builder-0001", CreatedAt: time.Now(),
	}
	require.NoError(t, store.UpsertBuilder(b))

	err := orch.Send(context.Background(), b.ID, "../outside.txt", SendOptions{File: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve --file path")
}
