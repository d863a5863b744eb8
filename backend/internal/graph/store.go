package graph

import (
	"context"
	"time"
)

// Store is the persistence contract for the memory graph. The Neo4j
// Repository is the production implementation; MemStore backs unit tests and
// local development. The contract is the stability boundary: callers never
// see Cypher or driver types.
type Store interface {
	// CreateNode persists a node with its entity mentions and provenance in
	// a single transaction and returns the node id.
	CreateNode(ctx context.Context, input CreateNodeInput) (string, error)

	// GetNode returns a consistent snapshot of a node, or ErrNodeNotFound.
	GetNode(ctx context.Context, id string) (*MemoryNode, error)

	// FindByContentHash returns the id of the node with the given content
	// hash, or "" when no such node exists. Pruned nodes do not count.
	FindByContentHash(ctx context.Context, hash string) (string, error)

	// QueryByEntities returns all non-pruned nodes mentioning at least one of
	// the given canonical entity ids.
	QueryByEntities(ctx context.Context, entityIDs []string) ([]*MemoryNode, error)

	// QueryByVector returns the top-k non-pruned nodes by cosine similarity,
	// restricted to the current encoder version.
	QueryByVector(ctx context.Context, embedding []float32, k int) ([]VectorMatch, error)

	// AddEdge links two non-pruned nodes. SUPERSEDES edges must be created
	// through SupersedeNode so the status flip stays atomic.
	AddEdge(ctx context.Context, sourceID, targetID string, kind RelationKind, weight float64) error

	// UpdateNode applies a mutation if the stored version matches the given
	// one, bumping the version. Returns ErrVersionConflict otherwise.
	UpdateNode(ctx context.Context, id string, version int64, mut NodeMutation) error

	// SupersedeNode creates a SUPERSEDES edge from newID to oldID and marks
	// the old node stale, atomically.
	SupersedeNode(ctx context.Context, newID, oldID string) error

	// TouchNodes bumps access_count and refreshes last_accessed_at for the
	// given ids. Retrieval calls this for every returned node.
	TouchNodes(ctx context.Context, ids []string, at time.Time) error

	// UpdateEmbedding replaces a node's embedding after re-encoding it with
	// the current encoder version.
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, encoderVersion string) error

	// ListOutdatedEmbeddings returns ids of non-pruned nodes whose embedding
	// was produced by a different encoder version.
	ListOutdatedEmbeddings(ctx context.Context, encoderVersion string, limit int) ([]string, error)

	// CountActive returns the number of active nodes.
	CountActive(ctx context.Context) (int, error)

	// PruneCandidates projects every non-pruned node with the fields the
	// pruning pass needs to decide eligibility and eviction order.
	PruneCandidates(ctx context.Context) ([]PruneCandidate, error)

	// RelinkProvenance moves all provenance records from one node to another.
	// Called before pruning a node that sits on a supersedes chain.
	RelinkProvenance(ctx context.Context, fromID, toID string) error

	// MarkPruned sets status=pruned, resets access_count and detaches the
	// node's edges while keeping its remaining provenance history.
	MarkPruned(ctx context.Context, id string, at time.Time) error

	// PurgePruned hard-deletes nodes pruned before the cutoff and returns
	// how many were removed.
	PurgePruned(ctx context.Context, olderThan time.Time) (int, error)
}
