package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

// Embedder produces fixed-dimension embeddings under a stable encoder
// version tag. Embeddings from different versions are never compared.
type Embedder struct {
	client  *openai.Client
	model   string
	dim     int
	version string
	timeout time.Duration
	logger  *zap.Logger
}

// NewEmbedder creates an embedding client
func NewEmbedder(baseURL, apiKey, model string, dim int, version string, timeout time.Duration) *Embedder {
	return &Embedder{
		client:  newClient(baseURL, apiKey),
		model:   model,
		dim:     dim,
		version: version,
		timeout: timeout,
		logger:  logger.Get(),
	}
}

// Version returns the encoder version tag stamped on produced embeddings
func (e *Embedder) Version() string { return e.version }

// Dimension returns the embedding dimensionality
func (e *Embedder) Dimension() int { return e.dim }

// Embed encodes one text into an embedding vector. A result of the wrong
// dimension is rejected rather than stored.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch encodes several texts in one request, preserving order
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var resp openai.EmbeddingResponse
	err := withRetries(ctx, e.logger, "embed", func() error {
		var reqErr error
		resp, reqErr = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts,
		})
		return reqErr
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewContextTimeout("embed", e.timeout)
		}
		return nil, errors.NewEncodingFailed(e.model, maxRetries, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.NewEncodingFailed(e.model, 1,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dim {
			return nil, errors.NewDimensionMismatch(e.dim, len(d.Embedding))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
