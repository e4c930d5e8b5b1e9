package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/domain/interfaces"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/repository"
	"github.com/opsward/geryon/pkg/utils/logging"
)

// DefaultDuplicationThreshold is the cosine similarity above which a new
// report is chained to an existing issue instead of creating a new one.
// Strictly greater-than: a score exactly at the threshold creates a new issue.
const DefaultDuplicationThreshold = 0.85

// Timeouts bounding the two I/O suspension points of a request. Both
// dependencies are treated as transient failures on expiry; the caller owns
// retries.
const (
	embedTimeout = 15 * time.Second
	storeTimeout = 10 * time.Second
)

// DedupUseCase deduplicates incoming reports against open issues.
//
// With serializeCreates enabled (the default), the read-candidates, decide
// and write steps run under a per-category in-process lock, so two
// near-simultaneous reports of the same new event cannot both see "no match"
// and create duplicate issues. The lock covers a single process only; for
// multi-instance deployments the reconciliation worker catches what the lock
// cannot. With serializeCreates disabled, that duplicate-of-duplicates race
// is accepted and left entirely to reconciliation.
type DedupUseCase struct {
	repo             interfaces.Repository
	embedder         interfaces.Embedder
	threshold        float64
	serializeCreates bool
	knownCategories  map[types.CategoryID]struct{}

	locksMu sync.Mutex
	locks   map[types.CategoryID]*sync.Mutex
}

func NewDedupUseCase(repo interfaces.Repository, embedder interfaces.Embedder) *DedupUseCase {
	return &DedupUseCase{
		repo:             repo,
		embedder:         embedder,
		threshold:        DefaultDuplicationThreshold,
		serializeCreates: true,
		locks:            make(map[types.CategoryID]*sync.Mutex),
	}
}

// Threshold returns the configured duplication threshold
func (uc *DedupUseCase) Threshold() float64 {
	return uc.threshold
}

func (uc *DedupUseCase) categoryLock(category types.CategoryID) *sync.Mutex {
	uc.locksMu.Lock()
	defer uc.locksMu.Unlock()

	lock, exists := uc.locks[category]
	if !exists {
		lock = &sync.Mutex{}
		uc.locks[category] = lock
	}
	return lock
}

// Submit runs the full dedup pipeline for one validated report: embed the
// summary, select the best-scoring open candidate in the same category, and
// either chain the report to it or create a new issue.
func (uc *DedupUseCase) Submit(ctx context.Context, report *model.Report) (*model.DedupResult, error) {
	if err := uc.validateReport(report); err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	emb, err := uc.embedder.Embed(embedCtx, report.Summary)
	if err != nil {
		if errors.Is(err, model.ErrZeroVector) || errors.Is(err, model.ErrEmptyVector) || errors.Is(err, model.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, goerr.Wrap(ErrEmbedderUnavailable, err.Error(), goerr.V(CategoryKey, report.Category))
	}
	if err := emb.Validate(); err != nil {
		return nil, goerr.Wrap(err, "embedder returned unusable vector", goerr.V(CategoryKey, report.Category))
	}

	if uc.serializeCreates {
		lock := uc.categoryLock(report.Category)
		lock.Lock()
		defer lock.Unlock()
	}

	return uc.decideAndApply(ctx, report, emb)
}

func (uc *DedupUseCase) validateReport(report *model.Report) error {
	if report == nil {
		return goerr.Wrap(ErrInvalidReport, "report is required")
	}
	if err := report.Category.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidReport, "invalid category", goerr.V(CategoryKey, report.Category))
	}
	if report.Summary == "" {
		return goerr.Wrap(ErrInvalidReport, "summary is required", goerr.V(CategoryKey, report.Category))
	}
	if uc.knownCategories != nil {
		if _, ok := uc.knownCategories[report.Category]; !ok {
			return goerr.Wrap(ErrUnknownCategory, "category is not configured", goerr.V(CategoryKey, report.Category))
		}
	}
	return nil
}

func (uc *DedupUseCase) decideAndApply(ctx context.Context, report *model.Report, emb model.Embedding) (*model.DedupResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	candidates, err := uc.repo.Issue().ListOpenByCategory(storeCtx, report.Category)
	if err != nil {
		return nil, goerr.Wrap(ErrStoreUnavailable, err.Error(), goerr.V(CategoryKey, report.Category))
	}

	match, err := BestMatch(emb, candidates)
	if err != nil {
		return nil, err
	}

	if match.Score > uc.threshold {
		return uc.merge(ctx, report, match)
	}
	return uc.create(ctx, report, emb, match)
}

func (uc *DedupUseCase) merge(ctx context.Context, report *model.Report, match model.Match) (*model.DedupResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := uc.repo.Issue().RecordDuplicate(storeCtx, match.IssueID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, goerr.Wrap(ErrIssueVanished, "cannot chain report",
				goerr.V(IssueIDKey, match.IssueID),
				goerr.V(CategoryKey, report.Category),
				goerr.V(ScoreKey, match.Score))
		}
		return nil, goerr.Wrap(ErrStoreUnavailable, err.Error(), goerr.V(IssueIDKey, match.IssueID))
	}

	logging.From(ctx).Info("chained report to existing issue",
		"issue_id", match.IssueID,
		"category", report.Category,
		"score", match.Score,
	)

	return &model.DedupResult{
		Status:  model.DedupStatusDuplicate,
		IssueID: match.IssueID,
		Score:   match.Score,
	}, nil
}

func (uc *DedupUseCase) create(ctx context.Context, report *model.Report, emb model.Embedding, match model.Match) (*model.DedupResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	created, err := uc.repo.Issue().Create(storeCtx, model.NewIssue(report, emb))
	if err != nil {
		return nil, goerr.Wrap(ErrStoreUnavailable, err.Error(), goerr.V(CategoryKey, report.Category))
	}

	logging.From(ctx).Info("created new issue",
		"issue_id", created.ID,
		"category", report.Category,
		"best_score", match.Score,
	)

	return &model.DedupResult{
		Status:  model.DedupStatusCreated,
		IssueID: created.ID,
		Score:   match.Score,
	}, nil
}

// BestMatch folds the candidate issues into the single highest-scoring
// match. Candidates without a stored embedding are skipped (records created
// before embedding storage existed). Ties keep the first-encountered
// candidate; since the fold starts at 0.0, candidates scoring <= 0 never
// match. A candidate whose stored vector cannot be scored against the input
// surfaces as an error rather than being skipped: the single-model invariant
// means a bad stored vector is store corruption, not noise.
func BestMatch(emb model.Embedding, candidates []*model.Issue) (model.Match, error) {
	best := model.Match{IssueID: "", Score: 0.0}

	for _, candidate := range candidates {
		if len(candidate.SummaryEmbedding) == 0 {
			continue
		}

		score, err := model.CosineSimilarity(emb, candidate.SummaryEmbedding)
		if err != nil {
			return model.Match{}, goerr.Wrap(err, "failed to score candidate",
				goerr.V(IssueIDKey, candidate.ID))
		}

		if score > best.Score {
			best = model.Match{IssueID: candidate.ID, Score: score}
		}
	}

	return best, nil
}
