package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	dmaerrors "dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

// Generator streams grounded completions token by token
type Generator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator creates a streaming generation client
func NewGenerator(baseURL, apiKey, model string, timeout time.Duration) *Generator {
	return &Generator{
		client:  newClient(baseURL, apiKey),
		model:   model,
		timeout: timeout,
		logger:  logger.Get(),
	}
}

// Stream sends the grounded prompt and forwards each content delta to emit
// as it arrives, returning the complete response text. A timeout or stream
// error fails the whole call; partial output is not trusted for citations.
func (g *Generator) Stream(ctx context.Context, systemPrompt, userMsg string, emit func(delta string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		Temperature: 0.7,
		Stream:      true,
	}

	var stream *openai.ChatCompletionStream
	err := withRetries(ctx, g.logger, "generate", func() error {
		var reqErr error
		stream, reqErr = g.client.CreateChatCompletionStream(ctx, req)
		return reqErr
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", dmaerrors.NewContextTimeout("generate", g.timeout)
		}
		return "", dmaerrors.NewGenerationFailed(g.model, err)
	}
	defer stream.Close()

	var full string
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", dmaerrors.NewContextTimeout("generate", g.timeout)
			}
			return "", dmaerrors.NewGenerationFailed(g.model, recvErr)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if emit != nil {
			emit(delta)
		}
	}

	if full == "" {
		return "", dmaerrors.NewGenerationFailed(g.model, fmt.Errorf("empty response from model"))
	}

	g.logger.Debug("Generation complete",
		zap.String("model", g.model),
		zap.Int("length", len(full)),
	)
	return full, nil
}
