package retrieval

import (
	"math"
	"time"

	"dma/backend/internal/graph"
)

// SubScores carries the individual ranking signals for one node, returned
// alongside the composite score for transparency and debugging
type SubScores struct {
	Semantic      float64 `json:"semantic"`
	EntityOverlap float64 `json:"entity_overlap"`
	Recency       float64 `json:"recency"`
	Importance    float64 `json:"importance"`
}

// EntityOverlap scores how prominently the query's entities figure in a
// node's mentions: the occurrence counts of shared entities over the node's
// total occurrence counts. 0 when either side has no entities.
func EntityOverlap(queryEntityIDs []string, mentions []graph.EntityMention) float64 {
	if len(queryEntityIDs) == 0 || len(mentions) == 0 {
		return 0
	}

	wanted := make(map[string]bool, len(queryEntityIDs))
	for _, id := range queryEntityIDs {
		wanted[id] = true
	}

	var shared, total float64
	for _, mention := range mentions {
		count := float64(mention.Count)
		if count < 1 {
			count = 1
		}
		total += count
		if wanted[mention.EntityID] {
			shared += count
		}
	}
	if total == 0 {
		return 0
	}
	return shared / total
}

// RecencyScore is the exponential decay exp(-lambda * hours since last
// access). lambda is configuration, never inferred.
func RecencyScore(lambda float64, now, lastAccessed time.Time) float64 {
	hours := now.Sub(lastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-lambda * hours)
}
