package graph

import (
	"context"

	"dma/backend/pkg/errors"
)

// QueryByEntities returns every non-pruned node mentioning at least one of
// the given canonical entity ids. This is the exact-match half of candidate
// generation; the vector index provides the other half.
func (r *Repository) QueryByEntities(ctx context.Context, entityIDs []string) ([]*MemoryNode, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := hydrationQuery(`
		MATCH (m:Memory)-[:MENTIONS]->(match:Entity)
		WHERE match.id IN $entityIDs AND m.status <> 'pruned'
		WITH DISTINCT m`, "", "")

	result, err := session.Run(ctx, query, map[string]any{"entityIDs": entityIDs})
	if err != nil {
		return nil, errors.NewStoreUnavailable(r.database, err)
	}

	var nodes []*MemoryNode
	for result.Next(ctx) {
		if node := nodeFromRecord(result.Record()); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes, result.Err()
}

// QueryByVector returns the top-k non-pruned nodes by cosine similarity,
// restricted to embeddings from the current encoder version. Mismatched
// versions are re-encoded by the ingestor before they can surface here.
func (r *Repository) QueryByVector(ctx context.Context, embedding []float32, k int) ([]VectorMatch, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}
	if len(embedding) != r.embeddingDim {
		return nil, errors.NewDimensionMismatch(r.embeddingDim, len(embedding))
	}

	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := hydrationQuery(`
		CALL db.index.vector.queryNodes($indexName, $k, $embedding)
		YIELD node AS m, score
		WHERE m.status <> 'pruned' AND m.encoder_version = $encoderVersion
		WITH m, score`, "score", `, score AS similarity`)

	result, err := session.Run(ctx, query, map[string]any{
		"indexName":      vectorIndexName,
		"k":              k,
		"embedding":      embeddingToParam(embedding),
		"encoderVersion": r.encoderVersion,
	})
	if err != nil {
		return nil, errors.NewStoreUnavailable(r.database, err)
	}

	var matches []VectorMatch
	for result.Next(ctx) {
		record := result.Record()
		node := nodeFromRecord(record)
		if node == nil {
			continue
		}
		matches = append(matches, VectorMatch{
			Node:       node,
			Similarity: getFloat64FromRecord(record, "similarity"),
		})
	}
	return matches, result.Err()
}

// CountActive returns the number of active memory nodes
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:Memory {status: 'active'}) RETURN count(m) AS total`, nil)
	if err != nil {
		return 0, errors.NewStoreUnavailable(r.database, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, errors.NewStoreUnavailable(r.database, err)
	}
	return int(getInt64FromRecord(record, "total")), nil
}
