// Package pipeline assembles the engine from its parts and owns their
// lifecycle: store wiring, capability adapters, retrieval, feedback, the
// background pruner, and the per-turn coordinator. Turns run independently;
// all cross-turn coupling goes through the store.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dma/backend/internal/adapter"
	"dma/backend/internal/coordinator"
	"dma/backend/internal/feedback"
	"dma/backend/internal/graph"
	"dma/backend/internal/ingest"
	"dma/backend/internal/retrieval"
	"dma/backend/pkg/config"
	"dma/backend/pkg/logger"
)

// Pipeline is the assembled memory engine
type Pipeline struct {
	store       graph.Store
	engine      *retrieval.Engine
	feedback    *feedback.Manager
	pruner      *feedback.Pruner
	ingestor    *ingest.Ingestor
	webSource   *ingest.WebSource
	coordinator *coordinator.Coordinator

	prunerCancel context.CancelFunc
	logger       *zap.Logger
}

// New wires the engine over the given store
func New(store graph.Store, cfg *config.Config) *Pipeline {
	embedder := adapter.NewEmbedder(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModel,
		cfg.EmbeddingDim, cfg.EncoderVersion, cfg.EncoderTimeout)
	extractor := adapter.NewExtractor(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ExtractorModel, cfg.ExtractorTimeout)
	generator := adapter.NewGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.GeneratorModel, cfg.GeneratorTimeout)

	engine := retrieval.NewEngine(store, retrieval.Config{
		SemanticWeight:   cfg.SemanticWeight,
		EntityWeight:     cfg.EntityWeight,
		RecencyWeight:    cfg.RecencyWeight,
		ImportanceWeight: cfg.ImportanceWeight,
		RecencyLambda:    cfg.RecencyLambda,
		MinScore:         cfg.MinScore,
		StalePenalty:     cfg.StalePenalty,
		VectorTopK:       cfg.VectorTopK,
		MaxResults:       cfg.MaxContextNodes,
	})

	fb := feedback.NewManager(store, feedback.Config{
		Eta:           cfg.FeedbackEta,
		UnusedDecay:   cfg.UnusedDecay,
		StaleFloor:    cfg.StaleFloor,
		UpdateRetries: cfg.UpdateRetries,
	})

	pruner := feedback.NewPruner(store, feedback.PrunerConfig{
		NodeCap:          cfg.NodeCap,
		PruneFloor:       cfg.PruneFloor,
		RecencyLambda:    cfg.RecencyLambda,
		RecencyWeight:    cfg.RecencyWeight,
		ImportanceWeight: cfg.ImportanceWeight,
		Interval:         cfg.PruneInterval,
		PurgeRetention:   cfg.PurgeRetention,
	}, engine.Pins())

	ingestor := ingest.NewIngestor(store, embedder, extractor, fb)

	return &Pipeline{
		store:       store,
		engine:      engine,
		feedback:    fb,
		pruner:      pruner,
		ingestor:    ingestor,
		webSource:   ingest.NewWebSource(),
		coordinator: coordinator.NewCoordinator(engine, embedder, extractor, generator, ingestor, fb),
		logger:      logger.Get(),
	}
}

// Start launches the background prune loop
func (p *Pipeline) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.prunerCancel = cancel
	go p.pruner.Run(ctx)
}

// Stop cancels background work
func (p *Pipeline) Stop() {
	if p.prunerCancel != nil {
		p.prunerCancel()
	}
}

// Chat runs one grounded turn, streaming events through emit
func (p *Pipeline) Chat(ctx context.Context, history []coordinator.ChatMessage, message string, emit func(coordinator.Event)) (*coordinator.TurnResult, error) {
	return p.coordinator.RunTurn(ctx, history, message, emit)
}

// Ingest stores caller-chunked text
func (p *Pipeline) Ingest(ctx context.Context, chunks []ingest.Chunk) ([]*ingest.Result, error) {
	return p.ingestor.IngestAll(ctx, chunks)
}

// IngestURL fetches a web page and ingests its paragraphs
func (p *Pipeline) IngestURL(ctx context.Context, url string) (string, []*ingest.Result, error) {
	title, chunks, err := p.webSource.Fetch(ctx, url)
	if err != nil {
		return "", nil, err
	}
	results, err := p.ingestor.IngestAll(ctx, chunks)
	return title, results, err
}

// ApplyFeedback records an explicit usage signal for previously retrieved
// nodes
func (p *Pipeline) ApplyFeedback(ctx context.Context, retrievedIDs []string, usedIDs map[string]bool) error {
	return p.feedback.Apply(ctx, retrievedIDs, usedIDs)
}

// ApplyTurnFeedback applies a usage signal against the set a recent turn
// retrieved, addressed by turn id. Returns false when the turn id is unknown
// or has aged out of the turn history.
func (p *Pipeline) ApplyTurnFeedback(ctx context.Context, turnID string, usedIDs map[string]bool) (bool, error) {
	rec, ok := p.coordinator.Turn(turnID)
	if !ok {
		return false, nil
	}
	return true, p.feedback.Apply(ctx, rec.RetrievedIDs, usedIDs)
}

// MarkIrrelevant flags one node as no longer relevant
func (p *Pipeline) MarkIrrelevant(ctx context.Context, id string) error {
	return p.feedback.MarkIrrelevant(ctx, id)
}

// GetNode returns a node snapshot for inspection
func (p *Pipeline) GetNode(ctx context.Context, id string) (*graph.MemoryNode, error) {
	return p.store.GetNode(ctx, id)
}

// Retrieve runs a read-only style retrieval for the query text; the caller
// receives ranked results and the result set is released immediately since
// no generation follows.
func (p *Pipeline) Retrieve(ctx context.Context, query retrieval.Query) ([]retrieval.Result, error) {
	rs, err := p.engine.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rs.Release()
	return rs.Results, nil
}

// Stats reports basic graph health
func (p *Pipeline) Stats(ctx context.Context) (map[string]any, error) {
	active, err := p.store.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"active_nodes": active,
		"checked_at":   time.Now().UTC(),
	}, nil
}

// ReencodeOutdated re-embeds nodes left behind by an encoder upgrade
func (p *Pipeline) ReencodeOutdated(ctx context.Context, limit int) (int, error) {
	return p.ingestor.ReencodeOutdated(ctx, limit)
}
