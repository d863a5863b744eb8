package coordinator

import (
	"strings"
	"testing"
	"time"

	"dma/backend/internal/graph"
	"dma/backend/internal/retrieval"
)

func resultWith(id string, provenance bool) retrieval.Result {
	node := &graph.MemoryNode{ID: id, Content: "fact " + id}
	if provenance {
		node.Provenance = []graph.ProvenanceRecord{{
			ID:        "prov-" + id,
			Source:    "https://example.com/" + id,
			Timestamp: time.Now(),
		}}
	}
	return retrieval.Result{Node: node}
}

func TestAssignCitations_SkipsProvenanceFreeNodes(t *testing.T) {
	results := []retrieval.Result{
		resultWith("a", true),
		resultWith("b", false),
		resultWith("c", true),
	}

	citations := assignCitations(results)
	if len(citations) != 2 {
		t.Fatalf("expected 2 citable nodes, got %d", len(citations))
	}
	if citations[0].Marker != 1 || citations[0].NodeID != "a" {
		t.Errorf("unexpected first citation %+v", citations[0])
	}
	if citations[1].Marker != 2 || citations[1].NodeID != "c" {
		t.Errorf("expected markers to skip the uncitable node, got %+v", citations[1])
	}
}

func TestParseUsedCitations(t *testing.T) {
	assigned := []Citation{
		{Marker: 1, NodeID: "a", Source: "s1"},
		{Marker: 2, NodeID: "b", Source: "s2"},
	}

	used := parseUsedCitations("Claim one [2]. Claim two [1], repeated [2]. Bogus [7].", assigned)
	if len(used) != 2 {
		t.Fatalf("expected 2 used citations, got %d", len(used))
	}
	// first-appearance order, duplicates and out-of-range markers dropped
	if used[0].NodeID != "b" || used[1].NodeID != "a" {
		t.Errorf("unexpected order: %s, %s", used[0].NodeID, used[1].NodeID)
	}
}

func TestParseUsedCitations_NoMarkers(t *testing.T) {
	if used := parseUsedCitations("no grounding here", []Citation{{Marker: 1, NodeID: "a"}}); used != nil {
		t.Errorf("expected nil, got %v", used)
	}
}

func TestBuildPrompt_MarksBackgroundNodes(t *testing.T) {
	results := []retrieval.Result{resultWith("a", true), resultWith("b", false)}
	citations := assignCitations(results)

	prompt := buildPrompt(results, citations)
	if !strings.Contains(prompt, "[1] fact a") {
		t.Error("expected citable node rendered with its marker")
	}
	if !strings.Contains(prompt, "(background) fact b") {
		t.Error("expected provenance-free node rendered as background")
	}
}
