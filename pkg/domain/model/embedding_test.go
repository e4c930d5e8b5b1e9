package model_test

import (
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/opsward/geryon/pkg/domain/model"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("self-similarity is 1", func(t *testing.T) {
		a := model.Embedding{0.3, -0.5, 0.8, 0.1}
		score, err := model.CosineSimilarity(a, a)
		gt.NoError(t, err).Required()
		gt.Number(t, math.Abs(score-1.0)).Less(1e-9)
	})

	t.Run("opposite vector is -1", func(t *testing.T) {
		a := model.Embedding{0.3, -0.5, 0.8, 0.1}
		neg := make(model.Embedding, len(a))
		for i, v := range a {
			neg[i] = -v
		}
		score, err := model.CosineSimilarity(a, neg)
		gt.NoError(t, err).Required()
		gt.Number(t, math.Abs(score+1.0)).Less(1e-9)
	})

	t.Run("symmetry", func(t *testing.T) {
		a := model.Embedding{1, 2, 3}
		b := model.Embedding{-2, 0.5, 4}
		ab, err := model.CosineSimilarity(a, b)
		gt.NoError(t, err).Required()
		ba, err := model.CosineSimilarity(b, a)
		gt.NoError(t, err).Required()
		gt.Number(t, ab).Equal(ba)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		score, err := model.CosineSimilarity(model.Embedding{1, 0}, model.Embedding{0, 1})
		gt.NoError(t, err).Required()
		gt.Number(t, math.Abs(score)).Less(1e-9)
	})

	t.Run("empty vector rejected", func(t *testing.T) {
		_, err := model.CosineSimilarity(model.Embedding{}, model.Embedding{1})
		gt.Bool(t, errors.Is(err, model.ErrEmptyVector)).True()
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		_, err := model.CosineSimilarity(model.Embedding{1, 2}, model.Embedding{1, 2, 3})
		gt.Bool(t, errors.Is(err, model.ErrDimensionMismatch)).True()
	})

	t.Run("zero-magnitude vector rejected", func(t *testing.T) {
		_, err := model.CosineSimilarity(model.Embedding{0, 0, 0}, model.Embedding{1, 2, 3})
		gt.Bool(t, errors.Is(err, model.ErrZeroVector)).True()

		_, err = model.CosineSimilarity(model.Embedding{1, 2, 3}, model.Embedding{0, 0, 0})
		gt.Bool(t, errors.Is(err, model.ErrZeroVector)).True()
	})
}

func TestEmbeddingValidate(t *testing.T) {
	gt.NoError(t, model.Embedding{0, 0.5, 0}.Validate())

	err := model.Embedding{}.Validate()
	gt.Bool(t, errors.Is(err, model.ErrEmptyVector)).True()

	err = model.Embedding{0, 0, 0}.Validate()
	gt.Bool(t, errors.Is(err, model.ErrZeroVector)).True()
}

func TestNewIssue(t *testing.T) {
	report := &model.Report{
		Category: "bug",
		Summary:  "login page crashes on submit",
		Attributes: map[string]any{
			"reporter": "user-123",
			"severity": "high",
		},
	}
	emb := make(model.Embedding, model.EmbeddingDimension)
	emb[0] = 0.5

	issue := model.NewIssue(report, emb)

	gt.Value(t, issue.Status.String()).Equal("OPEN")
	gt.Value(t, issue.Category).Equal(report.Category)
	gt.Value(t, issue.Summary).Equal(report.Summary)
	gt.Number(t, issue.DuplicateCount).Equal(int64(1))
	gt.Number(t, issue.Upvotes).Equal(int64(0))
	gt.Number(t, issue.ImportanceScore).Equal(0.0)
	gt.Value(t, len(issue.SummaryEmbedding)).Equal(model.EmbeddingDimension)
	gt.Value(t, issue.Attributes["reporter"]).Equal("user-123")
}
