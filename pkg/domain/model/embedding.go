package model

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

// EmbeddingDimension is the dimension of the embedding vector
// Gemini text-embedding-004 uses 768 dimensions
const EmbeddingDimension = 768

// Embedding is a fixed-dimensionality vector representation of a report
// summary. It is never mutated after creation, only compared or stored.
type Embedding []float32

// Sentinel errors for similarity scoring
var (
	ErrEmptyVector       = goerr.New("embedding vector is empty")
	ErrDimensionMismatch = goerr.New("embedding vectors have different dimensions")
	ErrZeroVector        = goerr.New("embedding vector has zero magnitude")
)

// Validate rejects vectors that can never produce a similarity score:
// empty vectors and zero-magnitude vectors. A zero vector must not reach
// the store, because every later comparison against it would fail.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return goerr.Wrap(ErrEmptyVector, "embedding vector is empty")
	}
	for _, v := range e {
		if v != 0 {
			return nil
		}
	}
	return goerr.Wrap(ErrZeroVector, "embedding vector has zero magnitude")
}

// CosineSimilarity computes the cosine similarity between two embeddings,
// dot(a,b) / (|a|*|b|), in [-1, 1].
//
// Both vectors must have the same positive length and non-zero magnitude.
// A zero-magnitude vector is rejected with ErrZeroVector rather than
// defaulting to a score: a zero vector from the embedder means the upstream
// is broken, and a silent 0.0 would mask that.
func CosineSimilarity(a, b Embedding) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, goerr.Wrap(ErrEmptyVector, "cannot score empty vector",
			goerr.V("len_a", len(a)), goerr.V("len_b", len(b)))
	}
	if len(a) != len(b) {
		return 0, goerr.Wrap(ErrDimensionMismatch, "cannot score vectors of different dimensions",
			goerr.V("len_a", len(a)), goerr.V("len_b", len(b)))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, goerr.Wrap(ErrZeroVector, "cannot score zero-magnitude vector")
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
