package usecase

import (
	"github.com/opsward/geryon/pkg/domain/interfaces"
	"github.com/opsward/geryon/pkg/domain/types"
)

type UseCases struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
	Dedup    *DedupUseCase
}

type Option func(*UseCases)

// WithThreshold sets the duplication threshold used by the dedup decision
func WithThreshold(threshold float64) Option {
	return func(uc *UseCases) {
		uc.Dedup.threshold = threshold
	}
}

// WithSerializeCreates controls whether the read-decide-write window is
// serialized per category. See DedupUseCase for the trade-off.
func WithSerializeCreates(enabled bool) Option {
	return func(uc *UseCases) {
		uc.Dedup.serializeCreates = enabled
	}
}

// WithCategories restricts accepted report categories to the given set.
// Without it, any syntactically valid category is accepted.
func WithCategories(categories []types.CategoryID) Option {
	return func(uc *UseCases) {
		known := make(map[types.CategoryID]struct{}, len(categories))
		for _, c := range categories {
			known[c] = struct{}{}
		}
		uc.Dedup.knownCategories = known
	}
}

func New(repo interfaces.Repository, embedder interfaces.Embedder, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		embedder: embedder,
	}
	uc.Dedup = NewDedupUseCase(repo, embedder)

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
