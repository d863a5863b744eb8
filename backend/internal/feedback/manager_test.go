package feedback

import (
	"context"
	"math"
	"testing"

	"dma/backend/internal/graph"
	"dma/backend/pkg/errors"
)

func testManagerConfig() Config {
	return Config{
		Eta:           0.2,
		UnusedDecay:   0.05,
		StaleFloor:    0.05,
		UpdateRetries: 3,
	}
}

func seed(t *testing.T, store *graph.MemStore, importance float64) string {
	t.Helper()
	id, err := store.CreateNode(context.Background(), graph.CreateNodeInput{
		Content:    "fact",
		Importance: importance,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return id
}

func TestManager_Apply_ReinforcesUsedNodes(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	id := seed(t, store, 0.5)
	if err := manager.Apply(ctx, []string{id}, map[string]bool{id: true}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	node, _ := store.GetNode(ctx, id)
	want := 0.5 + 0.2*(1-0.5)
	if math.Abs(node.Importance-want) > 1e-9 {
		t.Errorf("expected importance %f, got %f", want, node.Importance)
	}
	if node.Status != graph.StatusActive {
		t.Errorf("used node must stay active, got %s", node.Status)
	}
}

func TestManager_Apply_DecaysUnusedNodes(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	id := seed(t, store, 0.5)
	if err := manager.Apply(ctx, []string{id}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	node, _ := store.GetNode(ctx, id)
	want := 0.5 - 0.05*0.5
	if math.Abs(node.Importance-want) > 1e-9 {
		t.Errorf("expected importance %f, got %f", want, node.Importance)
	}
}

func TestManager_Apply_ImportanceStaysInBounds(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	id := seed(t, store, 1.0)
	for i := 0; i < 5; i++ {
		if err := manager.Apply(ctx, []string{id}, map[string]bool{id: true}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	node, _ := store.GetNode(ctx, id)
	if node.Importance > 1 {
		t.Errorf("importance exceeded 1: %f", node.Importance)
	}

	low := seed(t, store, 0.0)
	if err := manager.Apply(ctx, []string{low}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	lowNode, _ := store.GetNode(ctx, low)
	if lowNode.Importance < 0 {
		t.Errorf("importance dropped below 0: %f", lowNode.Importance)
	}
}

func TestManager_Apply_StaleTransitionBelowFloor(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	id := seed(t, store, 0.05)
	if err := manager.Apply(ctx, []string{id}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	node, _ := store.GetNode(ctx, id)
	if node.Status != graph.StatusStale {
		t.Errorf("expected stale transition below floor, got %s", node.Status)
	}
}

func TestManager_Apply_SkipsVanishedNodes(t *testing.T) {
	manager := NewManager(graph.NewMemStore("v1"), testManagerConfig())
	// a node pruned and purged between retrieval and feedback is not an error
	if err := manager.Apply(context.Background(), []string{"gone"}, nil); err != nil {
		t.Errorf("expected vanished node to be skipped, got %v", err)
	}
}

// conflictStore forces every versioned update to conflict
type conflictStore struct {
	graph.Store
	attempts int
}

func (s *conflictStore) UpdateNode(ctx context.Context, id string, version int64, mut graph.NodeMutation) error {
	s.attempts++
	return errors.NewVersionConflict(id, version)
}

func TestManager_Apply_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	inner := graph.NewMemStore("v1")
	id := seed(t, inner, 0.5)

	store := &conflictStore{Store: inner}
	manager := NewManager(store, testManagerConfig())

	err := manager.Apply(ctx, []string{id}, map[string]bool{id: true})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.IsErrorType(err, errors.ErrorTypeStore) {
		t.Errorf("expected store error type, got %v", err)
	}
	if store.attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", store.attempts)
	}
}

func TestManager_MarkIrrelevant(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	manager := NewManager(store, testManagerConfig())

	id := seed(t, store, 0.8)
	if err := manager.MarkIrrelevant(ctx, id); err != nil {
		t.Fatalf("MarkIrrelevant failed: %v", err)
	}
	node, _ := store.GetNode(ctx, id)
	if node.Status != graph.StatusStale {
		t.Errorf("expected stale, got %s", node.Status)
	}

	// repeat is a no-op, never a reverse transition
	if err := manager.MarkIrrelevant(ctx, id); err != nil {
		t.Fatalf("second MarkIrrelevant failed: %v", err)
	}
}
