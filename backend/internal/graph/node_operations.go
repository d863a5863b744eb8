package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"dma/backend/pkg/errors"
)

// nodeHydration expands a bound Memory node `m` into the node map, entity
// mentions, provenance records and superseding node id. Every read query
// shares it so callers always see the same snapshot shape.
const nodeHydration = `
	OPTIONAL MATCH (m)-[mr:MENTIONS]->(e:Entity)
	WITH m, %s collect(CASE WHEN e IS NULL THEN NULL ELSE {id: e.id, name: e.name, count: mr.count} END) AS raw_entities
	OPTIONAL MATCH (m)-[:HAS_PROVENANCE]->(p:Provenance)
	WITH m, %s raw_entities, collect(CASE WHEN p IS NULL THEN NULL ELSE {id: p.id, source: p.source, ts: p.ts, method: p.method} END) AS raw_provenance
	OPTIONAL MATCH (s:Memory)-[:SUPERSEDES]->(m)
	RETURN m{.*} AS node,
	       [x IN raw_entities WHERE x IS NOT NULL] AS entities,
	       [x IN raw_provenance WHERE x IS NOT NULL] AS provenance,
	       head(collect(s.id)) AS superseded_by%s`

func hydrationQuery(prefix string, carry string, suffix string) string {
	carryComma := ""
	if carry != "" {
		carryComma = carry + ", "
	}
	return prefix + fmt.Sprintf(nodeHydration, carryComma, carryComma, suffix)
}

// CreateNode persists a memory node together with its entity mentions and
// provenance records in one statement, so a cancelled turn never leaves a
// half-written node/edge pair.
func (r *Repository) CreateNode(ctx context.Context, input CreateNodeInput) (string, error) {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	id := uuid.New().String()
	now := time.Now().UTC()

	entities := make([]map[string]any, 0, len(input.Entities))
	for _, ent := range input.Entities {
		entities = append(entities, map[string]any{
			"id":    ent.EntityID,
			"name":  ent.Name,
			"count": ent.Count,
		})
	}

	provenance := make([]map[string]any, 0, len(input.Provenance))
	for _, prov := range input.Provenance {
		provID := prov.ID
		if provID == "" {
			provID = uuid.New().String()
		}
		ts := prov.Timestamp
		if ts.IsZero() {
			ts = now
		}
		provenance = append(provenance, map[string]any{
			"id":     provID,
			"source": prov.Source,
			"ts":     ts.Format(time.RFC3339),
			"method": prov.Method,
		})
	}

	query := `
		CREATE (m:Memory {
			id: $id,
			content: $content,
			content_hash: $contentHash,
			embedding: $embedding,
			encoder_version: $encoderVersion,
			created_at: datetime($now),
			last_accessed_at: datetime($now),
			access_count: 0,
			importance: $importance,
			confidence: $confidence,
			status: 'active',
			version: 0
		})
		FOREACH (ent IN $entities |
			MERGE (e:Entity {id: ent.id})
			ON CREATE SET e.name = ent.name, e.aliases = [ent.name]
			ON MATCH SET e.aliases = CASE
				WHEN ent.name IN e.aliases THEN e.aliases
				ELSE e.aliases + ent.name
			END
			MERGE (m)-[mr:MENTIONS]->(e)
			SET mr.count = ent.count
		)
		FOREACH (prov IN $provenance |
			CREATE (p:Provenance {
				id: prov.id,
				source: prov.source,
				ts: datetime(prov.ts),
				method: prov.method
			})
			CREATE (m)-[:HAS_PROVENANCE]->(p)
		)
		RETURN m.id AS id
	`

	result, err := session.Run(ctx, query, map[string]any{
		"id":             id,
		"content":        input.Content,
		"contentHash":    input.ContentHash,
		"embedding":      embeddingToParam(input.Embedding),
		"encoderVersion": input.EncoderVersion,
		"now":            now.Format(time.RFC3339),
		"importance":     clamp01(input.Importance),
		"confidence":     clamp01(input.Confidence),
		"entities":       entities,
		"provenance":     provenance,
	})
	if err != nil {
		return "", errors.NewStoreUnavailable(r.database, fmt.Errorf("failed to create node: %w", err))
	}
	if _, err := result.Single(ctx); err != nil {
		return "", errors.NewStoreUnavailable(r.database, fmt.Errorf("failed to verify node creation: %w", err))
	}

	r.logger.Debug("Memory node created",
		zap.String("node_id", id),
		zap.Int("entities", len(input.Entities)),
		zap.Int("provenance", len(input.Provenance)),
	)
	return id, nil
}

// GetNode retrieves a consistent snapshot of a memory node
func (r *Repository) GetNode(ctx context.Context, id string) (*MemoryNode, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := hydrationQuery(`MATCH (m:Memory {id: $id})`, "", "")

	result, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, errors.NewStoreUnavailable(r.database, err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, errors.NewStoreUnavailable(r.database, err)
		}
		return nil, errors.NewNodeNotFound(id)
	}

	return nodeFromRecord(result.Record()), nil
}

// FindByContentHash returns the id of the non-pruned node with the given
// content hash, or "" when none exists
func (r *Repository) FindByContentHash(ctx context.Context, hash string) (string, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory {content_hash: $hash})
		WHERE m.status <> 'pruned'
		RETURN m.id AS id
		LIMIT 1
	`
	result, err := session.Run(ctx, query, map[string]any{"hash": hash})
	if err != nil {
		return "", errors.NewStoreUnavailable(r.database, err)
	}
	if result.Next(ctx) {
		return getStringFromRecord(result.Record(), "id"), nil
	}
	return "", result.Err()
}

// UpdateNode applies a scoring/status mutation under the node's optimistic
// version check. Last writer wins; a mismatched version returns
// ErrVersionConflict and the caller retries with a fresh read.
func (r *Repository) UpdateNode(ctx context.Context, id string, version int64, mut NodeMutation) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	props := map[string]any{}
	if mut.Importance != nil {
		props["importance"] = clamp01(*mut.Importance)
	}
	if mut.Confidence != nil {
		props["confidence"] = clamp01(*mut.Confidence)
	}
	if mut.Status != nil {
		props["status"] = string(*mut.Status)
	}
	if len(props) == 0 {
		return nil
	}

	query := `
		MATCH (m:Memory {id: $id})
		WITH m, m.version = $version AS matched
		SET m += CASE WHEN matched THEN $props ELSE {} END,
		    m.version = CASE WHEN matched THEN m.version + 1 ELSE m.version END
		RETURN matched
	`
	result, err := session.Run(ctx, query, map[string]any{
		"id":      id,
		"version": version,
		"props":   props,
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return errors.NewNodeNotFound(id)
	}
	if !getBoolFromRecord(record, "matched") {
		return errors.NewVersionConflict(id, version)
	}
	return nil
}

// AddEdge links two non-pruned nodes. SUPERSEDES edges go through
// SupersedeNode instead, so the stale transition stays atomic with the edge.
func (r *Repository) AddEdge(ctx context.Context, sourceID, targetID string, kind RelationKind, weight float64) error {
	if kind == RelationSupersedes {
		return errors.NewBaseError(errors.ErrorTypeStore, "supersedes edges must be created via SupersedeNode", nil)
	}

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (src:Memory {id: $sourceID}), (dst:Memory {id: $targetID})
		WHERE src.status <> 'pruned' AND dst.status <> 'pruned'
		MERGE (src)-[rel:%s]->(dst)
		ON CREATE SET rel.created_at = datetime()
		SET rel.weight = $weight
		RETURN src.id AS id
	`, kind)

	result, err := session.Run(ctx, query, map[string]any{
		"sourceID": sourceID,
		"targetID": targetID,
		"weight":   weight,
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	if _, err := result.Single(ctx); err != nil {
		return errors.NewNodeNotFound(sourceID + "/" + targetID)
	}
	return nil
}

// SupersedeNode records that newID replaces oldID: the SUPERSEDES edge runs
// from the newer node to the older fact, and the old node goes stale in the
// same statement.
func (r *Repository) SupersedeNode(ctx context.Context, newID, oldID string) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (new:Memory {id: $newID}), (old:Memory {id: $oldID})
		WHERE new.status <> 'pruned' AND old.status <> 'pruned'
		MERGE (new)-[rel:SUPERSEDES]->(old)
		ON CREATE SET rel.created_at = datetime(), rel.weight = 1.0
		SET old.status = 'stale', old.version = old.version + 1
		RETURN old.id AS id
	`
	result, err := session.Run(ctx, query, map[string]any{
		"newID": newID,
		"oldID": oldID,
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	if _, err := result.Single(ctx); err != nil {
		return errors.NewNodeNotFound(oldID)
	}

	r.logger.Info("Node superseded",
		zap.String("new_id", newID),
		zap.String("old_id", oldID),
	)
	return nil
}

// TouchNodes bumps access stats for every retrieved node: read implies a
// write. Access counters are not versioned; they are monotonic until reset
// on prune, so concurrent touches merge safely.
func (r *Repository) TouchNodes(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory)
		WHERE m.id IN $ids AND m.status <> 'pruned'
		SET m.access_count = m.access_count + 1,
		    m.last_accessed_at = datetime($at)
	`
	_, err := session.Run(ctx, query, map[string]any{
		"ids": ids,
		"at":  at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	return nil
}

// UpdateEmbedding replaces a node's embedding after re-encoding
func (r *Repository) UpdateEmbedding(ctx context.Context, id string, embedding []float32, encoderVersion string) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory {id: $id})
		SET m.embedding = $embedding, m.encoder_version = $encoderVersion
		RETURN m.id AS id
	`
	result, err := session.Run(ctx, query, map[string]any{
		"id":             id,
		"embedding":      embeddingToParam(embedding),
		"encoderVersion": encoderVersion,
	})
	if err != nil {
		return errors.NewStoreUnavailable(r.database, err)
	}
	if _, err := result.Single(ctx); err != nil {
		return errors.NewNodeNotFound(id)
	}
	return nil
}

// ListOutdatedEmbeddings finds nodes encoded with a different encoder
// version. They are re-encoded before taking part in vector comparison.
func (r *Repository) ListOutdatedEmbeddings(ctx context.Context, encoderVersion string, limit int) ([]string, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory)
		WHERE m.status <> 'pruned' AND m.encoder_version <> $encoderVersion
		RETURN m.id AS id
		LIMIT $limit
	`
	result, err := session.Run(ctx, query, map[string]any{
		"encoderVersion": encoderVersion,
		"limit":          limit,
	})
	if err != nil {
		return nil, errors.NewStoreUnavailable(r.database, err)
	}

	var ids []string
	for result.Next(ctx) {
		ids = append(ids, getStringFromRecord(result.Record(), "id"))
	}
	return ids, result.Err()
}

// nodeFromRecord hydrates a MemoryNode from a record produced by the shared
// hydration fragment
func nodeFromRecord(record *neo4j.Record) *MemoryNode {
	raw, _ := record.Get("node")
	props, _ := raw.(map[string]any)
	if props == nil {
		return nil
	}

	node := &MemoryNode{
		ID:             getStringFromMap(props, "id"),
		Content:        getStringFromMap(props, "content"),
		ContentHash:    getStringFromMap(props, "content_hash"),
		EncoderVersion: getStringFromMap(props, "encoder_version"),
		CreatedAt:      getTimeFromMap(props, "created_at"),
		LastAccessedAt: getTimeFromMap(props, "last_accessed_at"),
		PrunedAt:       getTimeFromMap(props, "pruned_at"),
		Status:         NodeStatus(getStringFromMap(props, "status")),
	}
	node.Embedding = embeddingFromValue(props["embedding"])
	if v, ok := props["access_count"].(int64); ok {
		node.AccessCount = v
	}
	if v, ok := props["importance"].(float64); ok {
		node.Importance = v
	}
	if v, ok := props["confidence"].(float64); ok {
		node.Confidence = v
	}
	if v, ok := props["version"].(int64); ok {
		node.Version = v
	}

	entities, _ := record.Get("entities")
	node.Entities = mentionsFromValue(entities)
	provenance, _ := record.Get("provenance")
	node.Provenance = provenanceFromValue(provenance)
	node.SupersededBy = getStringFromRecord(record, "superseded_by")

	return node
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
