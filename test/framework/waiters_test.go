package framework

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/types"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWaitForBuilderStatus(t *testing.T) {
	s := openTestStore(t)
	b := &types.Builder{
		ID: "builder-0001", Name: "builder-0001", Port: 9101, Status: types.BuilderStatusSpawning,
		Type: types.BuilderTypeTask, SessionName: "af-builder-0001", CreatedAt: time.Now(),
	}
	if err := s.UpsertBuilder(b); err != nil {
		t.Fatalf("UpsertBuilder: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.SetBuilderStatus("builder-0001", types.BuilderStatusImplementing, "coding")
	}()

	w := NewWaiter(2*time.Second, 10*time.Millisecond)
	if err := w.WaitForBuilderStatus(context.Background(), s, "builder-0001", types.BuilderStatusImplementing); err != nil {
		t.Fatalf("WaitForBuilderStatus: %v", err)
	}
}

func TestWaitForBuilderStatusTimesOut(t *testing.T) {
	s := openTestStore(t)

	w := NewWaiter(50*time.Millisecond, 10*time.Millisecond)
	err := w.WaitForBuilderStatus(context.Background(), s, "builder-missing", types.BuilderStatusComplete)
	if err == nil {
		t.Fatal("expected timeout error for a builder that never reaches the target status")
	}
}

func TestWaitForBuilderGone(t *testing.T) {
	s := openTestStore(t)
	b := &types.Builder{
		ID: "builder-0001", Name: "builder-0001", Port: 9101, Status: types.BuilderStatusComplete,
		Type: types.BuilderTypeTask, SessionName: "af-builder-0001", CreatedAt: time.Now(),
	}
	if err := s.UpsertBuilder(b); err != nil {
		t.Fatalf("UpsertBuilder: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.DeleteBuilder("builder-0001")
	}()

	w := NewWaiter(2*time.Second, 10*time.Millisecond)
	if err := w.WaitForBuilderGone(context.Background(), s, "builder-0001"); err != nil {
		t.Fatalf("WaitForBuilderGone: %v", err)
	}
}
