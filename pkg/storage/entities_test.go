package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfarm/agentfarm/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBuilder(id string, port int) *types.Builder {
	return &types.Builder{
		ID:           id,
		Name:         id,
		Port:         port,
		PID:          1234,
		Status:       types.BuilderStatusSpawning,
		Phase:        "startup",
		WorktreePath: "/tmp/worktrees/" + id,
		Branch:       "agentfarm/" + id,
		SessionName:  "af-" + id,
		Type:         types.BuilderTypeTask,
		TaskText:     "implement the thing",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestUpsertAndGetBuilder(t *testing.T) {
	s := openTestStore(t)

	b := testBuilder("builder-0001", 9101)
	require.NoError(t, s.UpsertBuilder(b))

	got, err := s.GetBuilder(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)
	assert.Equal(t, b.Port, got.Port)
	assert.Equal(t, b.Status, got.Status)
	assert.WithinDuration(t, b.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetBuilderNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBuilder("builder-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBuilderNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.DeleteBuilder("builder-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestUpsertBuilderPortConflictRolledBack exercises the state-atomicity
// property (§8): a write that violates cross-table port uniqueness leaves
// no partial row behind, proving WithTransaction's rollback path runs.
func TestUpsertBuilderPortConflictRolledBack(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBuilder(testBuilder("builder-0001", 9101)))

	conflicting := testBuilder("builder-0002", 9101)
	err := s.UpsertBuilder(conflicting)
	require.ErrorIs(t, err, ErrPortConflict)

	_, err = s.GetBuilder("builder-0002")
	assert.ErrorIs(t, err, ErrNotFound, "rejected insert must not leave a partial row")

	builders, err := s.ListBuilders()
	require.NoError(t, err)
	assert.Len(t, builders, 1)
}

func TestSetBuilderStatus(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBuilder(testBuilder("builder-0001", 9101)))

	require.NoError(t, s.SetBuilderStatus("builder-0001", types.BuilderStatusImplementing, "coding"))

	got, err := s.GetBuilder("builder-0001")
	require.NoError(t, err)
	assert.Equal(t, types.BuilderStatusImplementing, got.Status)
	assert.Equal(t, "coding", got.Phase)
}

func TestLoadStateSnapshotsAllTables(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetArchitect(&types.Architect{Port: 9100, PID: 1, Command: "claude", StartedAt: time.Now()}))
	require.NoError(t, s.UpsertBuilder(testBuilder("builder-0001", 9101)))
	require.NoError(t, s.InsertAnnotation(&types.Annotation{
		ID: "ann-0001", FilePath: "README.md", Port: 9400,
		ParentType: types.AnnotationParentBuilder, ParentID: "builder-0001", CreatedAt: time.Now(),
	}))

	st, err := s.LoadState()
	require.NoError(t, err)
	require.NotNil(t, st.Architect)
	assert.Len(t, st.Builders, 1)
	assert.Len(t, st.Annotations, 1)
}

func TestClearRemovesEverything(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBuilder(testBuilder("builder-0001", 9101)))
	require.NoError(t, s.Clear())

	builders, err := s.ListBuilders()
	require.NoError(t, err)
	assert.Empty(t, builders)
}

func TestTryAddUtilPortConflict(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertBuilder(testBuilder("builder-0001", 9101)))

	ok, err := s.TryAddUtil(&types.UtilTerminal{ID: "util-0001", Name: "u", Port: 9101, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok, "TryAddUtil must report false, not error, on a taken port")

	_, err = s.GetUtil("util-0001")
	assert.ErrorIs(t, err, ErrNotFound)
}
