package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dma/backend/pkg/errors"
)

// PruneCandidates projects every non-pruned node with the fields the pruning
// pass needs: status, scores, whether live nodes still point at it through
// non-SUPERSEDES edges, and who supersedes it.
func (r *Repository) PruneCandidates(ctx context.Context) ([]PruneCandidate, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory)
		WHERE m.status <> 'pruned'
		OPTIONAL MATCH (s:Memory)-[:SUPERSEDES]->(m)
		WITH m, head(collect(s.id)) AS superseded_by
		OPTIONAL MATCH (o:Memory)-[rel]->(m)
		WHERE type(rel) IN ['RELATES_TO', 'DERIVED_FROM'] AND o.status <> 'pruned'
		RETURN m.id AS id,
		       m.status AS status,
		       m.importance AS importance,
		       m.last_accessed_at AS last_accessed_at,
		       superseded_by,
		       count(rel) > 0 AS has_incoming
	`
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, errors.NewStoreUnavailable(r.database, err)
	}

	var candidates []PruneCandidate
	for result.Next(ctx) {
		record := result.Record()
		candidates = append(candidates, PruneCandidate{
			ID:               getStringFromRecord(record, "id"),
			Status:           NodeStatus(getStringFromRecord(record, "status")),
			Importance:       getFloat64FromRecord(record, "importance"),
			LastAccessedAt:   getTimeFromRecord(record, "last_accessed_at"),
			SupersededBy:     getStringFromRecord(record, "superseded_by"),
			HasIncomingEdges: getBoolFromRecord(record, "has_incoming"),
		})
	}
	return candidates, result.Err()
}

// RelinkProvenance moves all provenance records from one node to another.
// Pruning calls this before evicting the target of a supersedes chain so no
// provenance history is lost.
func (r *Repository) RelinkProvenance(ctx context.Context, fromID, toID string) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (from:Memory {id: $fromID})-[rel:HAS_PROVENANCE]->(p:Provenance)
		MATCH (to:Memory {id: $toID})
		MERGE (to)-[:HAS_PROVENANCE]->(p)
		DELETE rel
	`
	_, err := session.Run(ctx, query, map[string]any{
		"fromID": fromID,
		"toID":   toID,
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}

	r.logger.Debug("Provenance re-linked",
		zap.String("from_id", fromID),
		zap.String("to_id", toID),
	)
	return nil
}

// MarkPruned flips a node to pruned, resets its access counter and detaches
// every edge except provenance history. The node itself stays until purge.
func (r *Repository) MarkPruned(ctx context.Context, id string, at time.Time) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory {id: $id})
		SET m.status = 'pruned',
		    m.pruned_at = datetime($at),
		    m.access_count = 0,
		    m.version = m.version + 1
		WITH m
		OPTIONAL MATCH (m)-[rel]-()
		WHERE type(rel) <> 'HAS_PROVENANCE'
		DELETE rel
		RETURN DISTINCT m.id AS id
	`
	result, err := session.Run(ctx, query, map[string]any{
		"id": id,
		"at": at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	if _, err := result.Single(ctx); err != nil {
		return errors.NewNodeNotFound(id)
	}

	r.logger.Info("Node pruned", zap.String("node_id", id))
	return nil
}

// PurgePruned hard-deletes nodes pruned before the cutoff, along with their
// provenance records, and returns how many nodes were removed.
func (r *Repository) PurgePruned(ctx context.Context, olderThan time.Time) (int, error) {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory)
		WHERE m.status = 'pruned' AND m.pruned_at < datetime($cutoff)
		OPTIONAL MATCH (m)-[:HAS_PROVENANCE]->(p:Provenance)
		DETACH DELETE p
		WITH DISTINCT m
		DETACH DELETE m
		RETURN count(m) AS purged
	`
	result, err := session.Run(ctx, query, map[string]any{
		"cutoff": olderThan.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, errors.NewStoreUnavailable(r.database, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, errors.NewStoreUnavailable(r.database, err)
	}

	purged := int(getInt64FromRecord(record, "purged"))
	if purged > 0 {
		r.logger.Info("Pruned nodes purged", zap.Int("count", purged))
	}
	return purged, nil
}
