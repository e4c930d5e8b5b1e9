package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/opsward/geryon/pkg/domain/interfaces"
	"github.com/opsward/geryon/pkg/domain/model"
)

// client implements interfaces.Embedder on top of a gollem LLM client
type client struct {
	llmClient gollem.LLMClient
}

var _ interfaces.Embedder = &client{}

// New creates a new embedding service with the provided LLM client
func New(llmClient gollem.LLMClient) (interfaces.Embedder, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	return &client{llmClient: llmClient}, nil
}

// Embed generates an embedding vector for the given text
func (c *client) Embed(ctx context.Context, text string) (model.Embedding, error) {
	if text == "" {
		return nil, goerr.New("text is required for embedding")
	}

	embeddings, err := c.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	if len(embeddings[0]) != model.EmbeddingDimension {
		return nil, goerr.New("unexpected embedding dimension",
			goerr.V("got", len(embeddings[0])),
			goerr.V("want", model.EmbeddingDimension))
	}

	// Convert float64 to float32
	result := make(model.Embedding, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	// A zero vector would poison the store: once created, every later
	// comparison against it fails. Reject it here at the source.
	if err := result.Validate(); err != nil {
		return nil, goerr.Wrap(err, "embedder returned degenerate vector")
	}

	return result, nil
}
