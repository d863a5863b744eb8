package graph

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dma/backend/pkg/errors"
)

// MemStore is an in-memory Store used by unit tests and local development.
// It mirrors the Cypher repository's semantics: the graph is an id-indexed
// arena of node records with edges held as (id, id) pairs, never as mutual
// object references.
type MemStore struct {
	mu             sync.RWMutex
	nodes          map[string]*MemoryNode
	edges          []Edge
	hashIndex      map[string]string
	encoderVersion string
}

// NewMemStore creates an empty in-memory store. Vector queries only match
// nodes encoded with the given encoder version.
func NewMemStore(encoderVersion string) *MemStore {
	return &MemStore{
		nodes:          make(map[string]*MemoryNode),
		hashIndex:      make(map[string]string),
		encoderVersion: encoderVersion,
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) CreateNode(_ context.Context, input CreateNodeInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	now := time.Now().UTC()

	provenance := make([]ProvenanceRecord, len(input.Provenance))
	copy(provenance, input.Provenance)
	for i := range provenance {
		if provenance[i].ID == "" {
			provenance[i].ID = uuid.New().String()
		}
		if provenance[i].Timestamp.IsZero() {
			provenance[i].Timestamp = now
		}
	}

	entities := make([]EntityMention, len(input.Entities))
	copy(entities, input.Entities)

	embedding := make([]float32, len(input.Embedding))
	copy(embedding, input.Embedding)

	s.nodes[id] = &MemoryNode{
		ID:             id,
		Content:        input.Content,
		ContentHash:    input.ContentHash,
		Embedding:      embedding,
		EncoderVersion: input.EncoderVersion,
		Entities:       entities,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     clamp01(input.Importance),
		Confidence:     clamp01(input.Confidence),
		Provenance:     provenance,
		Status:         StatusActive,
	}
	if input.ContentHash != "" {
		s.hashIndex[input.ContentHash] = id
	}
	return id, nil
}

func (s *MemStore) GetNode(_ context.Context, id string) (*MemoryNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, errors.NewNodeNotFound(id)
	}
	clone := s.snapshot(node)
	for _, edge := range s.edges {
		if edge.TargetID == id && edge.Kind == RelationSupersedes {
			clone.SupersededBy = edge.SourceID
			break
		}
	}
	return clone, nil
}

func (s *MemStore) FindByContentHash(_ context.Context, hash string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.hashIndex[hash]
	if !ok {
		return "", nil
	}
	if node, exists := s.nodes[id]; !exists || node.Status == StatusPruned {
		return "", nil
	}
	return id, nil
}

func (s *MemStore) QueryByEntities(_ context.Context, entityIDs []string) ([]*MemoryNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}

	var nodes []*MemoryNode
	for _, node := range s.nodes {
		if node.Status == StatusPruned {
			continue
		}
		for _, mention := range node.Entities {
			if wanted[mention.EntityID] {
				nodes = append(nodes, s.snapshot(node))
				break
			}
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *MemStore) QueryByVector(_ context.Context, embedding []float32, k int) ([]VectorMatch, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []VectorMatch
	for _, node := range s.nodes {
		if node.Status == StatusPruned || len(node.Embedding) != len(embedding) {
			continue
		}
		if node.EncoderVersion != s.encoderVersion {
			continue
		}
		matches = append(matches, VectorMatch{
			Node:       s.snapshot(node),
			Similarity: Cosine(embedding, node.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Node.ID < matches[j].Node.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemStore) AddEdge(_ context.Context, sourceID, targetID string, kind RelationKind, weight float64) error {
	if kind == RelationSupersedes {
		return errors.NewBaseError(errors.ErrorTypeStore, "supersedes edges must be created via SupersedeNode", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[sourceID]
	if !ok || src.Status == StatusPruned {
		return errors.NewNodeNotFound(sourceID)
	}
	dst, ok := s.nodes[targetID]
	if !ok || dst.Status == StatusPruned {
		return errors.NewNodeNotFound(targetID)
	}

	for i, edge := range s.edges {
		if edge.SourceID == sourceID && edge.TargetID == targetID && edge.Kind == kind {
			s.edges[i].Weight = weight
			return nil
		}
	}
	s.edges = append(s.edges, Edge{
		SourceID:  sourceID,
		TargetID:  targetID,
		Kind:      kind,
		Weight:    weight,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemStore) UpdateNode(_ context.Context, id string, version int64, mut NodeMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return errors.NewNodeNotFound(id)
	}
	if node.Version != version {
		return errors.NewVersionConflict(id, version)
	}

	if mut.Importance != nil {
		node.Importance = clamp01(*mut.Importance)
	}
	if mut.Confidence != nil {
		node.Confidence = clamp01(*mut.Confidence)
	}
	if mut.Status != nil {
		node.Status = *mut.Status
	}
	node.Version++
	return nil
}

func (s *MemStore) SupersedeNode(_ context.Context, newID, oldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newNode, ok := s.nodes[newID]
	if !ok || newNode.Status == StatusPruned {
		return errors.NewNodeNotFound(newID)
	}
	oldNode, ok := s.nodes[oldID]
	if !ok || oldNode.Status == StatusPruned {
		return errors.NewNodeNotFound(oldID)
	}

	exists := false
	for _, edge := range s.edges {
		if edge.SourceID == newID && edge.TargetID == oldID && edge.Kind == RelationSupersedes {
			exists = true
			break
		}
	}
	if !exists {
		s.edges = append(s.edges, Edge{
			SourceID:  newID,
			TargetID:  oldID,
			Kind:      RelationSupersedes,
			Weight:    1.0,
			CreatedAt: time.Now().UTC(),
		})
	}
	oldNode.Status = StatusStale
	oldNode.Version++
	return nil
}

func (s *MemStore) TouchNodes(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if node, ok := s.nodes[id]; ok && node.Status != StatusPruned {
			node.AccessCount++
			node.LastAccessedAt = at
		}
	}
	return nil
}

func (s *MemStore) UpdateEmbedding(_ context.Context, id string, embedding []float32, encoderVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return errors.NewNodeNotFound(id)
	}
	node.Embedding = make([]float32, len(embedding))
	copy(node.Embedding, embedding)
	node.EncoderVersion = encoderVersion
	return nil
}

func (s *MemStore) ListOutdatedEmbeddings(_ context.Context, encoderVersion string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, node := range s.nodes {
		if node.Status != StatusPruned && node.EncoderVersion != encoderVersion {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, node := range s.nodes {
		if node.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) PruneCandidates(_ context.Context) ([]PruneCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incoming := make(map[string]bool)
	supersededBy := make(map[string]string)
	for _, edge := range s.edges {
		src, ok := s.nodes[edge.SourceID]
		if !ok || src.Status == StatusPruned {
			continue
		}
		if edge.Kind == RelationSupersedes {
			supersededBy[edge.TargetID] = edge.SourceID
		} else {
			incoming[edge.TargetID] = true
		}
	}

	var candidates []PruneCandidate
	for id, node := range s.nodes {
		if node.Status == StatusPruned {
			continue
		}
		candidates = append(candidates, PruneCandidate{
			ID:               id,
			Status:           node.Status,
			Importance:       node.Importance,
			LastAccessedAt:   node.LastAccessedAt,
			HasIncomingEdges: incoming[id],
			SupersededBy:     supersededBy[id],
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

func (s *MemStore) RelinkProvenance(_ context.Context, fromID, toID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.nodes[fromID]
	if !ok {
		return errors.NewNodeNotFound(fromID)
	}
	to, ok := s.nodes[toID]
	if !ok {
		return errors.NewNodeNotFound(toID)
	}
	to.Provenance = append(to.Provenance, from.Provenance...)
	from.Provenance = nil
	return nil
}

func (s *MemStore) MarkPruned(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return errors.NewNodeNotFound(id)
	}
	node.Status = StatusPruned
	node.AccessCount = 0
	node.PrunedAt = at
	node.Version++

	kept := s.edges[:0]
	for _, edge := range s.edges {
		if edge.SourceID == id || edge.TargetID == id {
			continue
		}
		kept = append(kept, edge)
	}
	s.edges = kept
	return nil
}

func (s *MemStore) PurgePruned(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, node := range s.nodes {
		if node.Status == StatusPruned && node.PrunedAt.Before(olderThan) {
			delete(s.nodes, id)
			if s.hashIndex[node.ContentHash] == id {
				delete(s.hashIndex, node.ContentHash)
			}
			purged++
		}
	}
	return purged, nil
}

// Edges returns a copy of the current edge set, for tests and diagnostics
func (s *MemStore) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := make([]Edge, len(s.edges))
	copy(edges, s.edges)
	return edges
}

func (s *MemStore) snapshot(node *MemoryNode) *MemoryNode {
	clone := *node
	clone.Embedding = append([]float32(nil), node.Embedding...)
	clone.Entities = append([]EntityMention(nil), node.Entities...)
	clone.Provenance = append([]ProvenanceRecord(nil), node.Provenance...)
	return &clone
}

// Cosine computes cosine similarity between two equal-length vectors.
// Returns 0 when either vector is empty or zero-magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
