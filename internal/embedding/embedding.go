// Package embedding wraps the embedding providers behind one interface. All
// implementations are order-preserving: result i is the vector for input i.
package embedding

import (
	"context"
	"fmt"

	"aide/internal/config"
)

// Embedding is the interface every embedding backend implements.
type Embedding interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewModel creates the embedding backend selected by the configuration.
func NewModel(ctx context.Context, cfg config.EmbeddingConfig) (Embedding, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	case "google":
		return NewGoogleModel(ctx, cfg.Google.APIKey, cfg.Google.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
