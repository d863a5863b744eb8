package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dma/backend/internal/feedback"
	"dma/backend/internal/graph"
	"dma/backend/internal/ingest"
	"dma/backend/internal/retrieval"
	"dma/backend/pkg/logger"
)

// Generator streams a completion for the grounded prompt
type Generator interface {
	Stream(ctx context.Context, systemPrompt, userMsg string, emit func(delta string)) (string, error)
}

// Analyzer turns raw text into retrieval signals: entity mentions, and for
// conversational turns a standalone query reformulated from the dialogue
type Analyzer interface {
	Extract(ctx context.Context, text string) ([]graph.EntityMention, error)
	FormulateQuery(ctx context.Context, conversation string) (string, error)
}

// turnHistoryLimit bounds how many finished turns stay addressable for
// late usage feedback
const turnHistoryLimit = 256

// Coordinator ties retrieval, generation, persistence and feedback into one
// turn
type Coordinator struct {
	engine    *retrieval.Engine
	embedder  ingest.Embedder
	extractor Analyzer
	generator Generator
	ingestor  *ingest.Ingestor
	feedback  *feedback.Manager
	turns     *turnRegistry
	logger    *zap.Logger
}

// NewCoordinator wires the turn pipeline
func NewCoordinator(engine *retrieval.Engine, embedder ingest.Embedder, extractor Analyzer, generator Generator, ingestor *ingest.Ingestor, fb *feedback.Manager) *Coordinator {
	return &Coordinator{
		engine:    engine,
		embedder:  embedder,
		extractor: extractor,
		generator: generator,
		ingestor:  ingestor,
		feedback:  fb,
		turns:     newTurnRegistry(turnHistoryLimit),
		logger:    logger.Get(),
	}
}

// Turn returns the retrieved/used sets recorded for a recent turn id
func (c *Coordinator) Turn(turnID string) (TurnRecord, bool) {
	return c.turns.lookup(turnID)
}

// ChatMessage is one prior turn of the conversation, supplied by the caller
// for generation context
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResult summarizes a completed turn
type TurnResult struct {
	TurnID       string     `json:"turn_id"`
	Response     string     `json:"response"`
	Citations    []Citation `json:"citations,omitempty"`
	RetrievedIDs []string   `json:"retrieved_ids,omitempty"`
	Degraded     bool       `json:"degraded"`
}

// RunTurn executes one grounded turn, emitting typed events as it goes.
// Encoder or extractor failure degrades the turn to the remaining retrieval
// signals; generator or store failure fails it. The retrieved nodes stay
// pinned against pruning until the turn finishes.
func (c *Coordinator) RunTurn(ctx context.Context, history []ChatMessage, message string, emit func(Event)) (*TurnResult, error) {
	turnID := uuid.New().String()
	log := c.logger.With(zap.String("turn_id", turnID))

	// Analysis: embed the query and extract its entities in parallel. A
	// failed signal becomes a missing signal, not a failed turn.
	emit(statusEvent(StageAnalysis, "analyzing query", false))
	query, degraded := c.analyzeQuery(ctx, history, message, log)

	emit(statusEvent(StageRetrieval, "retrieving memories", degraded))
	resultSet, err := c.engine.Retrieve(ctx, query)
	if err != nil {
		emit(Event{Type: EventError, Error: "memory retrieval failed"})
		return nil, err
	}
	defer resultSet.Release()

	citations := assignCitations(resultSet.Results)
	systemPrompt := buildPrompt(resultSet.Results, citations)

	emit(statusEvent(StageGeneration, "generating response", false))
	response, err := c.generator.Stream(ctx, systemPrompt, composeUserMessage(history, message), func(delta string) {
		emit(Event{Type: EventContent, Content: delta})
	})
	if err != nil {
		// Surface the retrieved context even though the turn fails, so the
		// caller still sees what grounding was available
		for i := range citations {
			emit(Event{Type: EventCitation, Citation: &citations[i]})
		}
		emit(Event{Type: EventError, Error: "generation failed"})
		return nil, err
	}

	used := parseUsedCitations(response, citations)
	for i := range used {
		emit(Event{Type: EventCitation, Citation: &used[i]})
	}

	emit(statusEvent(StageFeedback, "updating memory", false))
	c.persistExchange(ctx, turnID, message, response, log)
	c.applyFeedback(ctx, resultSet, used, log)

	retrievedIDs := resultSet.NodeIDs()
	usedIDs := make([]string, len(used))
	for i, citation := range used {
		usedIDs[i] = citation.NodeID
	}
	c.turns.record(turnID, TurnRecord{RetrievedIDs: retrievedIDs, UsedIDs: usedIDs})

	emit(Event{Type: EventDone, Progress: 1})
	log.Info("Turn complete",
		zap.Int("retrieved", len(retrievedIDs)),
		zap.Int("citations", len(used)),
		zap.Bool("degraded", degraded),
	)
	return &TurnResult{
		TurnID:       turnID,
		Response:     response,
		Citations:    used,
		RetrievedIDs: retrievedIDs,
		Degraded:     degraded,
	}, nil
}

// analyzeQuery produces the retrieval query from the raw message. With
// history present, the message is first reformulated into a standalone query
// so follow-ups like "what about her?" retrieve against resolved references.
// A failed capability is logged and its signal left empty; the second return
// reports whether that happened.
func (c *Coordinator) analyzeQuery(ctx context.Context, history []ChatMessage, message string, log *zap.Logger) (retrieval.Query, bool) {
	text := message
	if len(history) > 0 {
		formulated, err := c.extractor.FormulateQuery(ctx, composeUserMessage(history, message))
		if err != nil {
			log.Warn("Query formulation failed, retrieving on the raw message", zap.Error(err))
		} else if formulated != "" {
			text = formulated
		}
	}

	query := retrieval.Query{Text: text}
	var encoderDown, extractorDown bool

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		embedding, err := c.embedder.Embed(groupCtx, text)
		if err != nil {
			log.Warn("Query encoding failed, degrading to entity retrieval", zap.Error(err))
			encoderDown = true
			return nil
		}
		query.Embedding = embedding
		return nil
	})
	group.Go(func() error {
		mentions, err := c.extractor.Extract(groupCtx, text)
		if err != nil {
			log.Warn("Query extraction failed, degrading to vector retrieval", zap.Error(err))
			extractorDown = true
			return nil
		}
		ids := make([]string, len(mentions))
		for i, m := range mentions {
			ids[i] = m.EntityID
		}
		query.EntityIDs = ids
		return nil
	})
	_ = group.Wait()
	return query, encoderDown || extractorDown
}

// persistExchange stores the turn as a new memory through the standard
// ingestion path, so deduplication and contradiction checks apply to
// conversational knowledge the same as to documents
func (c *Coordinator) persistExchange(ctx context.Context, turnID, message, response string, log *zap.Logger) {
	_, err := c.ingestor.IngestChunk(ctx, ingest.Chunk{
		Content: fmt.Sprintf("User: %s\nAssistant: %s", message, response),
		Source:  "conversation:" + turnID,
		Method:  "conversation",
	})
	if err != nil {
		log.Error("Failed to persist exchange", zap.Error(err))
	}
}

// applyFeedback reinforces cited nodes and decays the rest of the retrieved
// set
func (c *Coordinator) applyFeedback(ctx context.Context, resultSet *retrieval.ResultSet, used []Citation, log *zap.Logger) {
	usedIDs := make(map[string]bool, len(used))
	for _, citation := range used {
		usedIDs[citation.NodeID] = true
	}
	if err := c.feedback.Apply(ctx, resultSet.NodeIDs(), usedIDs); err != nil {
		log.Error("Feedback application failed", zap.Error(err))
	}
}
