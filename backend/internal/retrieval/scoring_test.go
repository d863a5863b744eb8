package retrieval

import (
	"math"
	"testing"
	"time"

	"dma/backend/internal/graph"
)

func TestEntityOverlap(t *testing.T) {
	mentions := []graph.EntityMention{
		{EntityID: "marie-curie", Count: 3},
		{EntityID: "paris", Count: 1},
	}

	// shared counts over total counts
	got := EntityOverlap([]string{"marie-curie"}, mentions)
	want := 3.0 / 4.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}

	if got := EntityOverlap(nil, mentions); got != 0 {
		t.Errorf("empty query entities: expected 0, got %f", got)
	}
	if got := EntityOverlap([]string{"paris"}, nil); got != 0 {
		t.Errorf("empty node entities: expected 0, got %f", got)
	}
	if got := EntityOverlap([]string{"london"}, mentions); got != 0 {
		t.Errorf("no shared entities: expected 0, got %f", got)
	}
	if got := EntityOverlap([]string{"marie-curie", "paris"}, mentions); got != 1 {
		t.Errorf("full overlap: expected 1, got %f", got)
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Now()

	if got := RecencyScore(0.01, now, now); got != 1 {
		t.Errorf("zero elapsed: expected 1, got %f", got)
	}

	dayOld := RecencyScore(0.01, now, now.Add(-24*time.Hour))
	weekOld := RecencyScore(0.01, now, now.Add(-7*24*time.Hour))
	if dayOld <= weekOld {
		t.Errorf("expected monotonic decay: day=%f week=%f", dayOld, weekOld)
	}

	// clock skew never boosts a node above 1
	if got := RecencyScore(0.01, now, now.Add(time.Hour)); got != 1 {
		t.Errorf("future access time: expected 1, got %f", got)
	}
}
