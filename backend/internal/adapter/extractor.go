package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"dma/backend/internal/graph"
	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

const extractionSystemPrompt = `You extract named entities from text.
Return a JSON object of the form {"entities": [{"name": "...", "count": N}]}
where count is how many times the entity occurs in the text, including
pronoun references you can resolve. Include people, places, organizations,
products, and distinct concepts. Return {"entities": []} if there are none.
Return only JSON.`

const conflictSystemPrompt = `You compare two statements about the world.
Answer with a JSON object {"contradicts": true} if they cannot both be true
(one updates or reverses the other), or {"contradicts": false} if they are
compatible or unrelated. Return only JSON.`

const querySystemPrompt = `You rewrite the latest message of a conversation
into a standalone search query for a memory store. Resolve pronouns and
references against the earlier turns so the query makes sense on its own.
Return a JSON object {"query": "..."}. Return only JSON.`

// Extractor pulls entity mentions out of text and judges whether two facts
// contradict, both via small structured completions
type Extractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor creates an extraction client
func NewExtractor(baseURL, apiKey, model string, timeout time.Duration) *Extractor {
	return &Extractor{
		client:  newClient(baseURL, apiKey),
		model:   model,
		timeout: timeout,
		logger:  logger.Get(),
	}
}

type extractionResult struct {
	Entities []struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"entities"`
}

// Extract returns the entity mentions found in text, with occurrence counts
// and normalized entity ids. Duplicate surface forms merge into one mention.
func (x *Extractor) Extract(ctx context.Context, text string) ([]graph.EntityMention, error) {
	raw, err := x.complete(ctx, extractionSystemPrompt, text)
	if err != nil {
		return nil, errors.NewExtractionFailed(x.model, err)
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, errors.NewExtractionFailed(x.model, fmt.Errorf("malformed extraction response: %w", err))
	}

	mentions := make([]graph.EntityMention, 0, len(result.Entities))
	for _, e := range result.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		count := e.Count
		if count < 1 {
			count = 1
		}
		id := graph.NormalizeEntityID(name)
		merged := false
		for i := range mentions {
			if mentions[i].EntityID == id {
				mentions[i].Count += count
				merged = true
				break
			}
		}
		if !merged {
			mentions = append(mentions, graph.EntityMention{EntityID: id, Name: name, Count: count})
		}
	}

	x.logger.Debug("Entities extracted", zap.Int("count", len(mentions)))
	return mentions, nil
}

type conflictResult struct {
	Contradicts bool `json:"contradicts"`
}

// DetectConflict reports whether newContent contradicts oldContent
func (x *Extractor) DetectConflict(ctx context.Context, newContent, oldContent string) (bool, error) {
	prompt := fmt.Sprintf("Statement A (new): %s\n\nStatement B (existing): %s", newContent, oldContent)
	raw, err := x.complete(ctx, conflictSystemPrompt, prompt)
	if err != nil {
		return false, errors.NewExtractionFailed(x.model, err)
	}

	var result conflictResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return false, errors.NewExtractionFailed(x.model, fmt.Errorf("malformed conflict response: %w", err))
	}
	return result.Contradicts, nil
}

type queryResult struct {
	Query string `json:"query"`
}

// FormulateQuery rewrites a conversational message into a standalone
// retrieval query, resolving references against the rendered conversation.
// An empty query means the model had nothing better than the raw message.
func (x *Extractor) FormulateQuery(ctx context.Context, conversation string) (string, error) {
	raw, err := x.complete(ctx, querySystemPrompt, conversation)
	if err != nil {
		return "", errors.NewExtractionFailed(x.model, err)
	}

	var result queryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", errors.NewExtractionFailed(x.model, fmt.Errorf("malformed query response: %w", err))
	}
	return strings.TrimSpace(result.Query), nil
}

// complete runs one JSON-mode chat completion under the extractor timeout
func (x *Extractor) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: x.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var resp openai.ChatCompletionResponse
	err := withRetries(ctx, x.logger, "extract", func() error {
		var reqErr error
		resp, reqErr = x.client.CreateChatCompletion(ctx, req)
		return reqErr
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in extraction response")
	}
	return resp.Choices[0].Message.Content, nil
}
