// Package ingest turns source text into memory nodes: chunking, entity
// extraction, encoding, content-hash deduplication, and contradiction
// resolution against what the graph already believes.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dma/backend/internal/feedback"
	"dma/backend/internal/graph"
	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

// Embedder encodes text into fixed-dimension vectors under a version tag
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Version() string
}

// Extractor pulls entity mentions out of text and doubles as the conflict
// detector for contradiction resolution
type Extractor interface {
	Extract(ctx context.Context, text string) ([]graph.EntityMention, error)
	feedback.ConflictDetector
}

// Chunk is one ingestible unit of text with its provenance
type Chunk struct {
	Content string
	Source  string // document URL, conversation turn id, etc.
	Method  string // extraction method tag: "web", "conversation", "file"
}

// Result reports what ingesting one chunk did to the graph
type Result struct {
	NodeID       string   `json:"node_id"`
	Deduplicated bool     `json:"deduplicated"`         // content hash matched an existing node
	Superseded   []string `json:"superseded,omitempty"` // ids of contradicted nodes marked stale
	Degraded     bool     `json:"degraded"`             // stored without embedding or entities
}

// Ingestor is the write path into the memory graph
type Ingestor struct {
	store      graph.Store
	embedder   Embedder
	extractor  Extractor
	feedback   *feedback.Manager
	importance float64 // initial importance for new nodes
	confidence float64 // initial confidence for new nodes
	logger     *zap.Logger
}

// NewIngestor creates the ingestion write path
func NewIngestor(store graph.Store, embedder Embedder, extractor Extractor, fb *feedback.Manager) *Ingestor {
	return &Ingestor{
		store:      store,
		embedder:   embedder,
		extractor:  extractor,
		feedback:   fb,
		importance: 0.5,
		confidence: 0.8,
		logger:     logger.Get(),
	}
}

// HashContent returns the content hash used for idempotent ingestion
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// IngestChunk stores one chunk as a memory node. Re-ingesting identical
// content returns the existing node instead of creating a duplicate.
// Encoder or extractor failure degrades the node (stored without the missing
// signal) rather than dropping the content; store failure fails the call.
func (i *Ingestor) IngestChunk(ctx context.Context, chunk Chunk) (*Result, error) {
	content := strings.TrimSpace(chunk.Content)
	if content == "" {
		return nil, errors.NewBaseError(errors.ErrorTypeIngest, "empty chunk content", nil)
	}

	hash := HashContent(content)
	if existing, err := i.store.FindByContentHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != "" {
		i.logger.Debug("Chunk already ingested", zap.String("node_id", existing))
		return &Result{NodeID: existing, Deduplicated: true}, nil
	}

	// Encode and extract in parallel; each failure degrades independently.
	var (
		embedding     []float32
		mentions      []graph.EntityMention
		embedFailed   bool
		extractFailed bool
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vec, err := i.embedder.Embed(groupCtx, content)
		if err != nil {
			i.logger.Warn("Encoding failed, storing without embedding", zap.Error(err))
			embedFailed = true
			return nil
		}
		embedding = vec
		return nil
	})
	group.Go(func() error {
		ents, err := i.extractor.Extract(groupCtx, content)
		if err != nil {
			i.logger.Warn("Extraction failed, storing without entities", zap.Error(err))
			extractFailed = true
			return nil
		}
		mentions = ents
		return nil
	})
	_ = group.Wait()
	degraded := embedFailed || extractFailed

	input := graph.CreateNodeInput{
		Content:     content,
		ContentHash: hash,
		Embedding:   embedding,
		Entities:    mentions,
		Importance:  i.importance,
		Confidence:  i.confidence,
	}
	if len(embedding) > 0 {
		input.EncoderVersion = i.embedder.Version()
	}
	if chunk.Source != "" {
		input.Provenance = []graph.ProvenanceRecord{{
			ID:     uuid.New().String(),
			Source: chunk.Source,
			Method: chunk.Method,
		}}
	}

	nodeID, err := i.store.CreateNode(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &Result{NodeID: nodeID, Degraded: degraded}
	result.Superseded = i.resolveContradictions(ctx, nodeID, content, mentions)

	i.logger.Info("Chunk ingested",
		zap.String("node_id", nodeID),
		zap.Int("entities", len(mentions)),
		zap.Bool("degraded", degraded),
		zap.Int("superseded", len(result.Superseded)),
	)
	return result, nil
}

// IngestAll ingests chunks sequentially, stopping on the first store failure
func (i *Ingestor) IngestAll(ctx context.Context, chunks []Chunk) ([]*Result, error) {
	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		result, err := i.IngestChunk(ctx, chunk)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// resolveContradictions checks the new node against active nodes sharing at
// least one entity with it. Without entities there is nothing to compare
// against, so a degraded extraction skips the check.
func (i *Ingestor) resolveContradictions(ctx context.Context, nodeID, content string, mentions []graph.EntityMention) []string {
	if i.feedback == nil || len(mentions) == 0 {
		return nil
	}
	ids := make([]string, len(mentions))
	for n, m := range mentions {
		ids[n] = m.EntityID
	}
	overlapping, err := i.store.QueryByEntities(ctx, ids)
	if err != nil {
		i.logger.Warn("Contradiction lookup failed", zap.Error(err))
		return nil
	}
	return i.feedback.ResolveContradictions(ctx, nodeID, content, overlapping, i.extractor)
}

// ReencodeOutdated re-embeds up to limit nodes whose embedding was produced
// by an older encoder version. Run after an encoder upgrade until it returns
// zero.
func (i *Ingestor) ReencodeOutdated(ctx context.Context, limit int) (int, error) {
	ids, err := i.store.ListOutdatedEmbeddings(ctx, i.embedder.Version(), limit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		node, err := i.store.GetNode(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return updated, err
		}
		vec, err := i.embedder.Embed(ctx, node.Content)
		if err != nil {
			return updated, err
		}
		if err := i.store.UpdateEmbedding(ctx, id, vec, i.embedder.Version()); err != nil {
			return updated, err
		}
		updated++
	}
	if updated > 0 {
		i.logger.Info("Re-encoded outdated embeddings", zap.Int("updated", updated))
	}
	return updated, nil
}
