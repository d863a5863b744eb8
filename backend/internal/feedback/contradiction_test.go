package feedback

import (
	"context"
	"fmt"
	"testing"

	"dma/backend/internal/graph"
)

type stubDetector struct {
	conflictsWith map[string]bool
	err           error
}

func (d *stubDetector) DetectConflict(_ context.Context, _, oldContent string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.conflictsWith[oldContent], nil
}

func TestManager_ResolveContradictions(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	oldID := seed(t, store, 0.5)
	compatID := seed(t, store, 0.5)
	newID := seed(t, store, 0.5)

	oldNode, _ := store.GetNode(ctx, oldID)
	compatNode, _ := store.GetNode(ctx, compatID)
	oldNode.Content = "the deadline is March"
	compatNode.Content = "the team uses Go"

	detector := &stubDetector{conflictsWith: map[string]bool{"the deadline is March": true}}
	superseded := manager.ResolveContradictions(ctx, newID, "the deadline is May",
		[]*graph.MemoryNode{oldNode, compatNode}, detector)

	if len(superseded) != 1 || superseded[0] != oldID {
		t.Fatalf("expected only the contradicted node superseded, got %v", superseded)
	}

	stored, _ := store.GetNode(ctx, oldID)
	if stored.Status != graph.StatusStale {
		t.Errorf("expected contradicted node stale, got %s", stored.Status)
	}
	if stored.SupersededBy != newID {
		t.Errorf("expected superseded_by %s, got %s", newID, stored.SupersededBy)
	}

	compatible, _ := store.GetNode(ctx, compatID)
	if compatible.Status != graph.StatusActive {
		t.Errorf("compatible node must stay active, got %s", compatible.Status)
	}
}

func TestManager_ResolveContradictions_DetectorFailureLeavesBothActive(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	oldID := seed(t, store, 0.5)
	newID := seed(t, store, 0.5)
	oldNode, _ := store.GetNode(ctx, oldID)

	detector := &stubDetector{err: fmt.Errorf("model unavailable")}
	superseded := manager.ResolveContradictions(ctx, newID, "new fact",
		[]*graph.MemoryNode{oldNode}, detector)

	if len(superseded) != 0 {
		t.Errorf("expected no supersessions on detector failure, got %v", superseded)
	}
	stored, _ := store.GetNode(ctx, oldID)
	if stored.Status != graph.StatusActive {
		t.Errorf("expected old node untouched, got %s", stored.Status)
	}
}
