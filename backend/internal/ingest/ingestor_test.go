package ingest

import (
	"context"
	"fmt"
	"testing"

	"dma/backend/internal/feedback"
	"dma/backend/internal/graph"
)

type fakeEmbedder struct {
	vector  []float32
	version string
	err     error
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func (e *fakeEmbedder) Version() string {
	if e.version == "" {
		return "v1"
	}
	return e.version
}

type fakeExtractor struct {
	mentions  []graph.EntityMention
	err       error
	conflicts bool
}

func (x *fakeExtractor) Extract(context.Context, string) ([]graph.EntityMention, error) {
	return x.mentions, x.err
}

func (x *fakeExtractor) DetectConflict(context.Context, string, string) (bool, error) {
	return x.conflicts, nil
}

func testIngestor(store *graph.MemStore, embedder *fakeEmbedder, extractor *fakeExtractor) *Ingestor {
	fb := feedback.NewManager(store, feedback.Config{
		Eta:           0.2,
		UnusedDecay:   0.05,
		StaleFloor:    0.05,
		UpdateRetries: 3,
	})
	return NewIngestor(store, embedder, extractor, fb)
}

func TestIngestor_IngestChunk(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	extractor := &fakeExtractor{mentions: []graph.EntityMention{{EntityID: "go", Name: "Go", Count: 1}}}
	ingestor := testIngestor(store, embedder, extractor)

	result, err := ingestor.IngestChunk(ctx, Chunk{
		Content: "Go ships a race detector",
		Source:  "https://example.com/article",
		Method:  "web",
	})
	if err != nil {
		t.Fatalf("IngestChunk failed: %v", err)
	}
	if result.Deduplicated || result.Degraded {
		t.Errorf("unexpected result flags: %+v", result)
	}

	node, err := store.GetNode(ctx, result.NodeID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.EncoderVersion != "v1" {
		t.Errorf("expected encoder version stamped, got %q", node.EncoderVersion)
	}
	if len(node.Entities) != 1 || node.Entities[0].EntityID != "go" {
		t.Errorf("unexpected entities %+v", node.Entities)
	}
	if !node.HasProvenance() {
		t.Error("expected provenance from chunk source")
	}
}

func TestIngestor_IngestChunk_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	ingestor := testIngestor(store, &fakeEmbedder{vector: []float32{1, 0}}, &fakeExtractor{})

	chunk := Chunk{Content: "a repeated fact", Source: "src"}
	first, err := ingestor.IngestChunk(ctx, chunk)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := ingestor.IngestChunk(ctx, chunk)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if !second.Deduplicated {
		t.Error("expected second ingest deduplicated")
	}
	if second.NodeID != first.NodeID {
		t.Errorf("expected same node id, got %s and %s", first.NodeID, second.NodeID)
	}

	// whitespace-only differences hash identically
	padded, err := ingestor.IngestChunk(ctx, Chunk{Content: "  a repeated fact \n", Source: "src"})
	if err != nil {
		t.Fatalf("padded ingest failed: %v", err)
	}
	if !padded.Deduplicated {
		t.Error("expected trimmed content to deduplicate")
	}
}

func TestIngestor_IngestChunk_EmptyContent(t *testing.T) {
	ingestor := testIngestor(graph.NewMemStore("v1"), &fakeEmbedder{}, &fakeExtractor{})
	if _, err := ingestor.IngestChunk(context.Background(), Chunk{Content: "   "}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestIngestor_IngestChunk_DegradesOnEncoderFailure(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")
	embedder := &fakeEmbedder{err: fmt.Errorf("encoder down")}
	ingestor := testIngestor(store, embedder, &fakeExtractor{mentions: []graph.EntityMention{{EntityID: "go", Name: "Go", Count: 1}}})

	result, err := ingestor.IngestChunk(ctx, Chunk{Content: "stored despite encoder outage", Source: "src"})
	if err != nil {
		t.Fatalf("expected degraded store, got error: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded flag")
	}

	node, _ := store.GetNode(ctx, result.NodeID)
	if len(node.Embedding) != 0 {
		t.Error("expected no embedding on degraded node")
	}
	if node.EncoderVersion != "" {
		t.Errorf("degraded node must not claim an encoder version, got %q", node.EncoderVersion)
	}
	if len(node.Entities) == 0 {
		t.Error("extraction succeeded, entities must be kept")
	}
}

func TestIngestor_IngestChunk_ResolvesContradictions(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")

	oldID, err := store.CreateNode(ctx, graph.CreateNodeInput{
		Content:     "the deadline is March",
		ContentHash: "old-hash",
		Entities:    []graph.EntityMention{{EntityID: "deadline", Name: "deadline", Count: 1}},
		Importance:  0.5,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	extractor := &fakeExtractor{
		mentions:  []graph.EntityMention{{EntityID: "deadline", Name: "deadline", Count: 1}},
		conflicts: true,
	}
	ingestor := testIngestor(store, &fakeEmbedder{vector: []float32{1, 0}}, extractor)

	result, err := ingestor.IngestChunk(ctx, Chunk{Content: "the deadline is May", Source: "src"})
	if err != nil {
		t.Fatalf("IngestChunk failed: %v", err)
	}
	if len(result.Superseded) != 1 || result.Superseded[0] != oldID {
		t.Fatalf("expected old fact superseded, got %v", result.Superseded)
	}

	oldNode, _ := store.GetNode(ctx, oldID)
	if oldNode.Status != graph.StatusStale {
		t.Errorf("expected old fact stale, got %s", oldNode.Status)
	}
	if oldNode.SupersededBy != result.NodeID {
		t.Errorf("expected superseded_by %s, got %s", result.NodeID, oldNode.SupersededBy)
	}
}

func TestIngestor_ReencodeOutdated(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore("v1")

	id, err := store.CreateNode(ctx, graph.CreateNodeInput{
		Content:        "old encoding",
		ContentHash:    "re-hash",
		Embedding:      []float32{1, 0},
		EncoderVersion: "v0",
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	embedder := &fakeEmbedder{vector: []float32{0, 1}, version: "v1"}
	ingestor := testIngestor(store, embedder, &fakeExtractor{})

	updated, err := ingestor.ReencodeOutdated(ctx, 10)
	if err != nil {
		t.Fatalf("ReencodeOutdated failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 node re-encoded, got %d", updated)
	}

	node, _ := store.GetNode(ctx, id)
	if node.EncoderVersion != "v1" {
		t.Errorf("expected encoder version v1, got %s", node.EncoderVersion)
	}

	// second pass finds nothing left
	updated, err = ingestor.ReencodeOutdated(ctx, 10)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 on second pass, got %d", updated)
	}
}
