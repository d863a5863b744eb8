// Package adapter wraps the external model capabilities the engine depends
// on: embedding, entity extraction, and grounded generation. All three speak
// an OpenAI-compatible API (LiteLLM in deployment) and share the same retry
// and timeout discipline.
package adapter

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// newClient builds an OpenAI-compatible client against the configured
// gateway. LiteLLM accepts any key, so a placeholder is fine locally.
func newClient(baseURL, apiKey string) *openai.Client {
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return openai.NewClientWithConfig(config)
}

const maxRetries = 3

// withRetries runs fn up to maxRetries times with linear backoff, logging
// each failure. The last error is returned when all attempts fail; context
// cancellation aborts immediately.
func withRetries(ctx context.Context, log *zap.Logger, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			log.Warn("Retrying request",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Error("Request failed",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}
