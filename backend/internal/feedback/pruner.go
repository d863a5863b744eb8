package feedback

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"dma/backend/internal/graph"
	"dma/backend/pkg/logger"
)

// PinChecker reports node ids that belong to in-flight retrieval results and
// must not be evicted yet
type PinChecker interface {
	IsPinned(id string) bool
}

// PrunerConfig bounds the graph and schedules purges
type PrunerConfig struct {
	NodeCap          int           // max non-pruned nodes before eviction
	PruneFloor       float64       // combined-score floor for evicting active nodes
	RecencyLambda    float64       // per-hour decay, shared with retrieval
	RecencyWeight    float64
	ImportanceWeight float64
	Interval         time.Duration // background pass cadence
	PurgeRetention   time.Duration // how long pruned tombstones stay queryable by id
}

// Pruner enforces the node cap and hard-deletes expired tombstones
type Pruner struct {
	store  graph.Store
	config PrunerConfig
	pins   PinChecker
	logger *zap.Logger
}

// NewPruner creates a pruner; pins may be nil when no retrieval engine is
// attached (batch ingestion).
func NewPruner(store graph.Store, config PrunerConfig, pins PinChecker) *Pruner {
	return &Pruner{
		store:  store,
		config: config,
		pins:   pins,
		logger: logger.Get(),
	}
}

// Run executes prune passes on the configured interval until the context is
// cancelled
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Info("Pruner started", zap.Duration("interval", p.config.Interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pruner stopped")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("Prune pass failed", zap.Error(err))
			}
			if err := p.Purge(ctx); err != nil {
				p.logger.Error("Purge pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce evicts the lowest-value nodes until the graph is back under the
// node cap, returning how many nodes were pruned. Eviction order is ascending
// combined recency+importance. A node that has been superseded gets its
// provenance re-linked to the superseding node before it is pruned, so the
// replacement fact stays traceable to the original source.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	candidates, err := p.store.PruneCandidates(ctx)
	if err != nil {
		return 0, err
	}

	overshoot := len(candidates) - p.config.NodeCap
	if overshoot <= 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	evictable := p.rankEvictable(candidates, now)

	pruned := 0
	for _, c := range evictable {
		if pruned >= overshoot {
			break
		}
		if c.SupersededBy != "" {
			if err := p.store.RelinkProvenance(ctx, c.ID, c.SupersededBy); err != nil {
				p.logger.Error("Provenance re-link failed, keeping node",
					zap.String("node_id", c.ID),
					zap.String("superseded_by", c.SupersededBy),
					zap.Error(err),
				)
				continue
			}
		}
		if err := p.store.MarkPruned(ctx, c.ID, now); err != nil {
			p.logger.Error("Prune failed", zap.String("node_id", c.ID), zap.Error(err))
			continue
		}
		pruned++
	}

	if pruned > 0 {
		p.logger.Info("Prune pass complete",
			zap.Int("pruned", pruned),
			zap.Int("overshoot", overshoot),
		)
	}
	return pruned, nil
}

// rankEvictable filters candidates to those that may be evicted and orders
// them worst-first. Stale nodes go before active ones at equal score; pinned
// nodes and active nodes that are referenced by other live nodes are skipped.
// Active nodes above the prune floor are only considered once everything
// below the floor is exhausted, which keeps cap enforcement possible on a
// graph of uniformly healthy nodes.
func (p *Pruner) rankEvictable(candidates []graph.PruneCandidate, now time.Time) []graph.PruneCandidate {
	type scored struct {
		candidate graph.PruneCandidate
		combined  float64
		preferred bool // stale, or active below the floor
	}

	var evictable []scored
	for _, c := range candidates {
		if c.Status == graph.StatusPruned {
			continue
		}
		if p.pins != nil && p.pins.IsPinned(c.ID) {
			continue
		}
		if c.Status == graph.StatusActive && c.HasIncomingEdges {
			continue
		}

		combined := p.combinedScore(c, now)
		evictable = append(evictable, scored{
			candidate: c,
			combined:  combined,
			preferred: c.Status != graph.StatusActive || combined < p.config.PruneFloor,
		})
	}

	sort.Slice(evictable, func(i, j int) bool {
		if evictable[i].preferred != evictable[j].preferred {
			return evictable[i].preferred
		}
		if evictable[i].combined != evictable[j].combined {
			return evictable[i].combined < evictable[j].combined
		}
		if !evictable[i].candidate.LastAccessedAt.Equal(evictable[j].candidate.LastAccessedAt) {
			return evictable[i].candidate.LastAccessedAt.Before(evictable[j].candidate.LastAccessedAt)
		}
		return evictable[i].candidate.ID < evictable[j].candidate.ID
	})

	out := make([]graph.PruneCandidate, len(evictable))
	for i, s := range evictable {
		out[i] = s.candidate
	}
	return out
}

// combinedScore is the weighted recency+importance blend used for eviction
// ordering, normalized so the prune floor is comparable across weight
// configurations
func (p *Pruner) combinedScore(c graph.PruneCandidate, now time.Time) float64 {
	total := p.config.RecencyWeight + p.config.ImportanceWeight
	if total <= 0 {
		return c.Importance
	}
	hours := now.Sub(c.LastAccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Exp(-p.config.RecencyLambda * hours)
	return (p.config.RecencyWeight*recency + p.config.ImportanceWeight*c.Importance) / total
}

// Purge hard-deletes pruned tombstones older than the retention window
func (p *Pruner) Purge(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-p.config.PurgeRetention)
	removed, err := p.store.PurgePruned(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		p.logger.Info("Purged pruned nodes", zap.Int("removed", removed))
	}
	return nil
}
