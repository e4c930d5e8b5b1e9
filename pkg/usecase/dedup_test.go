package usecase_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/opsward/geryon/pkg/domain/interfaces"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/repository"
	"github.com/opsward/geryon/pkg/repository/memory"
	"github.com/opsward/geryon/pkg/usecase"
)

// fakeEmbedder returns canned vectors per text
type fakeEmbedder struct {
	vectors map[string]model.Embedding
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	emb, ok := f.vectors[text]
	if !ok {
		return nil, goerr.New("no canned vector", goerr.V("text", text))
	}
	return emb, nil
}

// vectorWithCosine builds a unit vector whose cosine similarity with the
// unit base vector (1,0,0,...) is exactly cos.
func vectorWithCosine(cos float64) model.Embedding {
	emb := make(model.Embedding, model.EmbeddingDimension)
	emb[0] = float32(cos)
	emb[1] = float32(math.Sqrt(1 - cos*cos))
	return emb
}

func baseVector() model.Embedding {
	emb := make(model.Embedding, model.EmbeddingDimension)
	emb[0] = 1
	return emb
}

func seedIssue(t *testing.T, repo interfaces.Repository, category types.CategoryID, summary string, emb model.Embedding) *model.Issue {
	t.Helper()
	created, err := repo.Issue().Create(context.Background(), model.NewIssue(&model.Report{
		Category: category,
		Summary:  summary,
	}, emb))
	gt.NoError(t, err).Required()
	return created
}

func TestSubmit_Duplicate(t *testing.T) {
	repo := memory.New()
	existing := seedIssue(t, repo, "bug", "login crashes", vectorWithCosine(0.92))

	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"login page crashes on submit": baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	result, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "login page crashes on submit",
	})
	gt.NoError(t, err).Required()

	gt.Value(t, result.Status).Equal(model.DedupStatusDuplicate)
	gt.Value(t, result.IssueID).Equal(existing.ID)

	retrieved, err := repo.Issue().Get(context.Background(), existing.ID)
	gt.NoError(t, err).Required()
	gt.Number(t, retrieved.DuplicateCount).Equal(int64(2))
}

func TestSubmit_CreatedWhenBelowThreshold(t *testing.T) {
	repo := memory.New()
	existing := seedIssue(t, repo, "bug", "unrelated issue", vectorWithCosine(0.40))

	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"something new entirely": baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	result, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "something new entirely",
		Attributes: map[string]any{
			"reporter": "user-9",
		},
	})
	gt.NoError(t, err).Required()

	gt.Value(t, result.Status).Equal(model.DedupStatusCreated)
	gt.Value(t, result.IssueID).NotEqual(existing.ID)

	created, err := repo.Issue().Get(context.Background(), result.IssueID)
	gt.NoError(t, err).Required()
	gt.Number(t, created.DuplicateCount).Equal(int64(1))
	gt.Number(t, created.Upvotes).Equal(int64(0))
	gt.Number(t, created.ImportanceScore).Equal(0.0)
	gt.Value(t, len(created.SummaryEmbedding)).Equal(model.EmbeddingDimension)
	gt.Value(t, created.Attributes["reporter"]).Equal("user-9")

	// The existing issue is untouched
	untouched, err := repo.Issue().Get(context.Background(), existing.ID)
	gt.NoError(t, err).Required()
	gt.Number(t, untouched.DuplicateCount).Equal(int64(1))
}

func TestSubmit_CreatedWhenNoCandidates(t *testing.T) {
	repo := memory.New()
	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"first ever report": baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	result, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "first ever report",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, result.Status).Equal(model.DedupStatusCreated)
	gt.Number(t, result.Score).Equal(0.0)
}

func TestSubmit_SkipsCandidatesWithoutEmbedding(t *testing.T) {
	repo := memory.New()

	// Legacy record, stored before embeddings existed
	legacy := model.NewIssue(&model.Report{Category: "bug", Summary: "legacy record"}, nil)
	_, err := repo.Issue().Create(context.Background(), legacy)
	gt.NoError(t, err).Required()

	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"fresh report": baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	result, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "fresh report",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, result.Status).Equal(model.DedupStatusCreated)
}

func TestSubmit_ThresholdBoundary(t *testing.T) {
	run := func(t *testing.T, candidate model.Embedding, threshold float64) *model.DedupResult {
		repo := memory.New()
		seedIssue(t, repo, "bug", "existing", candidate)

		embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
			"boundary report": baseVector(),
		}}
		uc := usecase.New(repo, embedder, usecase.WithThreshold(threshold))

		result, err := uc.Dedup.Submit(context.Background(), &model.Report{
			Category: "bug",
			Summary:  "boundary report",
		})
		gt.NoError(t, err).Required()
		return result
	}

	t.Run("score exactly at threshold creates", func(t *testing.T) {
		// Identical unit vectors score exactly 1.0, so a threshold of 1.0
		// exercises the tie without floating point noise.
		result := run(t, baseVector(), 1.0)
		gt.Value(t, result.Status).Equal(model.DedupStatusCreated)
	})

	t.Run("score above threshold merges", func(t *testing.T) {
		result := run(t, vectorWithCosine(0.851), 0.85)
		gt.Value(t, result.Status).Equal(model.DedupStatusDuplicate)
	})
}

func TestSubmit_RetriedMergeIncrementsEachTime(t *testing.T) {
	// RecordDuplicate is not idempotent across retried requests; each
	// application increments by one. Retry dedup belongs upstream.
	repo := memory.New()
	existing := seedIssue(t, repo, "bug", "target", vectorWithCosine(0.95))

	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"same report twice": baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	report := &model.Report{Category: "bug", Summary: "same report twice"}
	for i := 0; i < 2; i++ {
		result, err := uc.Dedup.Submit(context.Background(), report)
		gt.NoError(t, err).Required()
		gt.Value(t, result.Status).Equal(model.DedupStatusDuplicate)
	}

	retrieved, err := repo.Issue().Get(context.Background(), existing.ID)
	gt.NoError(t, err).Required()
	gt.Number(t, retrieved.DuplicateCount).Equal(int64(3))
}

func TestSubmit_ValidationFailures(t *testing.T) {
	repo := memory.New()
	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{}}
	uc := usecase.New(repo, embedder)

	t.Run("nil report", func(t *testing.T) {
		_, err := uc.Dedup.Submit(context.Background(), nil)
		gt.Bool(t, errors.Is(err, usecase.ErrInvalidReport)).True()
	})

	t.Run("invalid category", func(t *testing.T) {
		_, err := uc.Dedup.Submit(context.Background(), &model.Report{
			Category: "Not Valid",
			Summary:  "something",
		})
		gt.Bool(t, errors.Is(err, usecase.ErrInvalidReport)).True()
	})

	t.Run("empty summary", func(t *testing.T) {
		_, err := uc.Dedup.Submit(context.Background(), &model.Report{
			Category: "bug",
		})
		gt.Bool(t, errors.Is(err, usecase.ErrInvalidReport)).True()
	})

	t.Run("unknown category with registry", func(t *testing.T) {
		restricted := usecase.New(repo, embedder,
			usecase.WithCategories([]types.CategoryID{"bug", "feature"}))
		_, err := restricted.Dedup.Submit(context.Background(), &model.Report{
			Category: "billing",
			Summary:  "charge failed",
		})
		gt.Bool(t, errors.Is(err, usecase.ErrUnknownCategory)).True()
	})
}

func TestSubmit_EmbedderFailureIsTransient(t *testing.T) {
	repo := memory.New()
	embedder := &fakeEmbedder{err: goerr.New("quota exceeded")}
	uc := usecase.New(repo, embedder)

	_, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "anything",
	})
	gt.Bool(t, errors.Is(err, usecase.ErrEmbedderUnavailable)).True()
}

func TestSubmit_RejectsZeroMagnitudeEmbedding(t *testing.T) {
	repo := memory.New()
	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"degenerate report": make(model.Embedding, model.EmbeddingDimension),
		"perfectly valid":   baseVector(),
	}}
	uc := usecase.New(repo, embedder)

	// The zero vector must be rejected, not stored as a new issue
	_, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "degenerate report",
	})
	gt.Bool(t, errors.Is(err, model.ErrZeroVector)).True()

	issues, err := repo.Issue().ListOpenByCategory(context.Background(), "bug")
	gt.NoError(t, err).Required()
	gt.Number(t, len(issues)).Equal(0)

	// The category stays usable for everyone else
	result, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "perfectly valid",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, result.Status).Equal(model.DedupStatusCreated)
}

// vanishingRepo simulates the merge target disappearing between selection
// and mutation.
type vanishingRepo struct {
	interfaces.Repository
}

type vanishingIssueRepo struct {
	interfaces.IssueRepository
}

func (r *vanishingRepo) Issue() interfaces.IssueRepository {
	return &vanishingIssueRepo{r.Repository.Issue()}
}

func (r *vanishingIssueRepo) RecordDuplicate(ctx context.Context, id types.IssueID, ts time.Time) error {
	return goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
}

func TestSubmit_MergeTargetVanished(t *testing.T) {
	inner := memory.New()
	seedIssue(t, inner, "bug", "soon to vanish", vectorWithCosine(0.95))

	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"report for vanished issue": baseVector(),
	}}
	uc := usecase.New(&vanishingRepo{inner}, embedder)

	_, err := uc.Dedup.Submit(context.Background(), &model.Report{
		Category: "bug",
		Summary:  "report for vanished issue",
	})
	gt.Bool(t, errors.Is(err, usecase.ErrIssueVanished)).True()

	// Not silently converted into a create
	issues, listErr := inner.Issue().ListOpenByCategory(context.Background(), "bug")
	gt.NoError(t, listErr).Required()
	gt.Number(t, len(issues)).Equal(1)
}

func TestSubmit_SerializedCreatesCollapseConcurrentDuplicates(t *testing.T) {
	repo := memory.New()
	embedder := &fakeEmbedder{vectors: map[string]model.Embedding{
		"same new event": baseVector(),
	}}
	uc := usecase.New(repo, embedder, usecase.WithSerializeCreates(true))

	const n = 8
	results := make([]*model.DedupResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := uc.Dedup.Submit(context.Background(), &model.Report{
				Category: "bug",
				Summary:  "same new event",
			})
			gt.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	var created, duplicate int
	for _, result := range results {
		switch result.Status {
		case model.DedupStatusCreated:
			created++
		case model.DedupStatusDuplicate:
			duplicate++
		}
	}
	gt.Number(t, created).Equal(1)
	gt.Number(t, duplicate).Equal(n - 1)

	issues, err := repo.Issue().ListOpenByCategory(context.Background(), "bug")
	gt.NoError(t, err).Required()
	gt.Number(t, len(issues)).Equal(1)
	gt.Number(t, issues[0].DuplicateCount).Equal(int64(n))
}

func TestBestMatch(t *testing.T) {
	emb := baseVector()

	t.Run("picks highest-scoring candidate", func(t *testing.T) {
		issues := []*model.Issue{
			{ID: "low", SummaryEmbedding: vectorWithCosine(0.30)},
			{ID: "high", SummaryEmbedding: vectorWithCosine(0.90)},
			{ID: "mid", SummaryEmbedding: vectorWithCosine(0.60)},
		}
		match, err := usecase.BestMatch(emb, issues)
		gt.NoError(t, err).Required()
		gt.Value(t, match.IssueID).Equal(types.IssueID("high"))
	})

	t.Run("first-encountered wins exact ties", func(t *testing.T) {
		issues := []*model.Issue{
			{ID: "first", SummaryEmbedding: vectorWithCosine(0.75)},
			{ID: "second", SummaryEmbedding: vectorWithCosine(0.75)},
		}
		match, err := usecase.BestMatch(emb, issues)
		gt.NoError(t, err).Required()
		gt.Value(t, match.IssueID).Equal(types.IssueID("first"))
	})

	t.Run("no candidates yields zero match", func(t *testing.T) {
		match, err := usecase.BestMatch(emb, nil)
		gt.NoError(t, err).Required()
		gt.Bool(t, match.Matched()).False()
		gt.Number(t, match.Score).Equal(0.0)
	})

	t.Run("candidates without embedding are skipped", func(t *testing.T) {
		issues := []*model.Issue{
			{ID: "no-embedding"},
			{ID: "scored", SummaryEmbedding: vectorWithCosine(0.5)},
		}
		match, err := usecase.BestMatch(emb, issues)
		gt.NoError(t, err).Required()
		gt.Value(t, match.IssueID).Equal(types.IssueID("scored"))
	})

	t.Run("corrupt stored vector surfaces as error", func(t *testing.T) {
		issues := []*model.Issue{
			{ID: "short", SummaryEmbedding: model.Embedding{1, 2, 3}},
		}
		_, err := usecase.BestMatch(emb, issues)
		gt.Bool(t, errors.Is(err, model.ErrDimensionMismatch)).True()
	})
}
