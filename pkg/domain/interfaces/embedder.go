package interfaces

import (
	"context"

	"github.com/opsward/geryon/pkg/domain/model"
)

// Embedder turns report text into a fixed-dimensionality embedding vector.
// Implementations are external collaborators; failures propagate to the
// caller as transient errors.
type Embedder interface {
	Embed(ctx context.Context, text string) (model.Embedding, error)
}
