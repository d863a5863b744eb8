package graph

import "time"

// NodeStatus is the lifecycle state of a memory node. Transitions are
// one-directional: active -> stale -> pruned.
type NodeStatus string

const (
	StatusActive NodeStatus = "active"
	StatusStale  NodeStatus = "stale"
	StatusPruned NodeStatus = "pruned"
)

// RelationKind is the type of an edge between memory nodes
type RelationKind string

const (
	RelationRelatesTo   RelationKind = "RELATES_TO"
	RelationSupersedes  RelationKind = "SUPERSEDES"
	RelationDerivedFrom RelationKind = "DERIVED_FROM"
)

// EntityMention links a memory node to a canonical entity, with the number of
// times the entity occurs in the node's content
type EntityMention struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// Entity is a canonical named entity bridging extracted mentions to nodes
type Entity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// ProvenanceRecord traces a node back to its originating document or
// conversation turn. Nodes without provenance are never cited as grounding.
type ProvenanceRecord struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"` // extraction method tag
}

// MemoryNode is a stored unit of knowledge
type MemoryNode struct {
	ID             string             `json:"id"`
	Content        string             `json:"content"`
	ContentHash    string             `json:"content_hash"`
	Embedding      []float32          `json:"-"`
	EncoderVersion string             `json:"encoder_version"`
	Entities       []EntityMention    `json:"entities,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	AccessCount    int64              `json:"access_count"`
	Importance     float64            `json:"importance"` // in [0,1]
	Confidence     float64            `json:"confidence"` // in [0,1]
	Provenance     []ProvenanceRecord `json:"provenance,omitempty"`
	Status         NodeStatus         `json:"status"`
	PrunedAt       time.Time          `json:"pruned_at,omitempty"`
	Version        int64              `json:"version"`
	SupersededBy   string             `json:"superseded_by,omitempty"`
}

// HasProvenance reports whether the node carries at least one verifiable
// provenance record
func (n *MemoryNode) HasProvenance() bool {
	return len(n.Provenance) > 0
}

// Edge connects two memory nodes. Edges reference only non-pruned nodes.
type Edge struct {
	SourceID  string       `json:"source_id"`
	TargetID  string       `json:"target_id"`
	Kind      RelationKind `json:"kind"`
	Weight    float64      `json:"weight"`
	CreatedAt time.Time    `json:"created_at"`
}

// VectorMatch is a vector-index candidate with its raw cosine similarity
type VectorMatch struct {
	Node       *MemoryNode
	Similarity float64
}

// CreateNodeInput carries everything needed to persist a new memory node
type CreateNodeInput struct {
	Content        string
	ContentHash    string
	Embedding      []float32
	EncoderVersion string
	Entities       []EntityMention
	Provenance     []ProvenanceRecord
	Importance     float64
	Confidence     float64
}

// NodeMutation is a partial scoring/status update applied under the node's
// optimistic version check. Nil fields are left untouched.
type NodeMutation struct {
	Importance *float64
	Confidence *float64
	Status     *NodeStatus
}

// PruneCandidate is a lightweight projection used by the pruning pass
type PruneCandidate struct {
	ID               string
	Status           NodeStatus
	Importance       float64
	LastAccessedAt   time.Time
	HasIncomingEdges bool   // incoming non-SUPERSEDES edges from live nodes
	SupersededBy     string // id of the superseding node, if any
}
