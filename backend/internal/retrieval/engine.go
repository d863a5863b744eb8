// Package retrieval ranks memory nodes for a query by combining vector
// similarity, entity overlap, recency decay and learned importance into a
// single composite score.
package retrieval

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"dma/backend/internal/graph"
	"dma/backend/pkg/logger"
)

// Config holds the ranking parameters. All of them are deployment
// configuration; see pkg/config for the environment bindings.
type Config struct {
	SemanticWeight   float64
	EntityWeight     float64
	RecencyWeight    float64
	ImportanceWeight float64
	RecencyLambda    float64 // decay rate per hour
	MinScore         float64
	StalePenalty     float64 // multiplier for stale node scores
	VectorTopK       int
	MaxResults       int
}

// Query is a fully analyzed retrieval request. Embedding or entity ids may
// be empty when the encoder or extractor degraded; ranking then runs on the
// remaining signals.
type Query struct {
	Text      string
	Embedding []float32
	EntityIDs []string
	Now       time.Time
}

// Result is one ranked node with its composite score and sub-scores
type Result struct {
	Node      *graph.MemoryNode `json:"node"`
	Score     float64           `json:"score"`
	SubScores SubScores         `json:"sub_scores"`
}

// ResultSet is an open set of ranked results. The returned nodes stay
// pinned against pruning until Release is called.
type ResultSet struct {
	Results []Result
	ids     []string
	pins    *PinRegistry
}

// Release unpins the result set's nodes. Safe to call more than once.
func (rs *ResultSet) Release() {
	if rs.pins != nil && rs.ids != nil {
		rs.pins.Release(rs.ids)
		rs.ids = nil
	}
}

// NodeIDs returns the ranked node ids
func (rs *ResultSet) NodeIDs() []string {
	ids := make([]string, len(rs.Results))
	for i, res := range rs.Results {
		ids[i] = res.Node.ID
	}
	return ids
}

// Engine produces ranked memory nodes via hybrid scoring
type Engine struct {
	store  graph.Store
	config Config
	pins   *PinRegistry
	logger *zap.Logger
}

// NewEngine creates a retrieval engine over the given store
func NewEngine(store graph.Store, config Config) *Engine {
	return &Engine{
		store:  store,
		config: config,
		pins:   NewPinRegistry(),
		logger: logger.Get(),
	}
}

// Pins exposes the pin registry so the pruning pass can skip nodes held by
// open result sets
func (e *Engine) Pins() *PinRegistry {
	return e.pins
}

// Retrieve ranks candidate nodes for the query. Candidates are the union of
// the vector top-K and every node sharing an entity with the query, pruned
// nodes excluded. Identical query and graph snapshot yield an identical
// ranked order: ties break by more recent last access, then node id.
//
// Retrieval has a write side effect: every returned node's access count is
// bumped and its last_accessed_at refreshed.
func (e *Engine) Retrieve(ctx context.Context, query Query) (*ResultSet, error) {
	now := query.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	candidates, similarities, err := e.gatherCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	results := e.rank(query, candidates, similarities, now)

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.Node.ID
	}
	e.pins.Pin(ids)

	if err := e.store.TouchNodes(ctx, ids, now); err != nil {
		e.pins.Release(ids)
		return nil, err
	}

	e.logger.Debug("Retrieval complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Bool("semantic_signal", len(query.Embedding) > 0),
		zap.Bool("entity_signal", len(query.EntityIDs) > 0),
	)

	return &ResultSet{Results: results, ids: ids, pins: e.pins}, nil
}

// gatherCandidates unions vector and entity candidates, keyed by node id.
// similarities holds index-reported cosine scores for vector candidates.
func (e *Engine) gatherCandidates(ctx context.Context, query Query) (map[string]*graph.MemoryNode, map[string]float64, error) {
	candidates := make(map[string]*graph.MemoryNode)
	similarities := make(map[string]float64)

	if len(query.Embedding) > 0 {
		matches, err := e.store.QueryByVector(ctx, query.Embedding, e.config.VectorTopK)
		if err != nil {
			return nil, nil, err
		}
		for _, match := range matches {
			candidates[match.Node.ID] = match.Node
			similarities[match.Node.ID] = match.Similarity
		}
	}

	if len(query.EntityIDs) > 0 {
		nodes, err := e.store.QueryByEntities(ctx, query.EntityIDs)
		if err != nil {
			return nil, nil, err
		}
		for _, node := range nodes {
			if _, seen := candidates[node.ID]; !seen {
				candidates[node.ID] = node
			}
		}
	}

	return candidates, similarities, nil
}

func (e *Engine) rank(query Query, candidates map[string]*graph.MemoryNode, similarities map[string]float64, now time.Time) []Result {
	results := make([]Result, 0, len(candidates))
	for id, node := range candidates {
		sub := SubScores{
			EntityOverlap: EntityOverlap(query.EntityIDs, node.Entities),
			Recency:       RecencyScore(e.config.RecencyLambda, now, node.LastAccessedAt),
			Importance:    node.Importance,
		}
		if sim, ok := similarities[id]; ok {
			sub.Semantic = sim
		} else if len(query.Embedding) > 0 {
			sub.Semantic = graph.Cosine(query.Embedding, node.Embedding)
		}

		score := e.config.SemanticWeight*sub.Semantic +
			e.config.EntityWeight*sub.EntityOverlap +
			e.config.RecencyWeight*sub.Recency +
			e.config.ImportanceWeight*sub.Importance

		if node.Status == graph.StatusStale {
			score *= e.config.StalePenalty
		}
		if score < e.config.MinScore {
			continue
		}
		results = append(results, Result{Node: node, Score: score, SubScores: sub})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		iAt, jAt := results[i].Node.LastAccessedAt, results[j].Node.LastAccessedAt
		if !iAt.Equal(jAt) {
			return iAt.After(jAt)
		}
		return results[i].Node.ID < results[j].Node.ID
	})

	if e.config.MaxResults > 0 && len(results) > e.config.MaxResults {
		results = results[:e.config.MaxResults]
	}
	return results
}
