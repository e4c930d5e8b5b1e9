package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/repository"
)

type issueRepository struct {
	mu     sync.RWMutex
	issues map[types.IssueID]*model.Issue
}

func newIssueRepository() *issueRepository {
	return &issueRepository{
		issues: make(map[types.IssueID]*model.Issue),
	}
}

// copyIssue creates a deep copy of an issue
func copyIssue(issue *model.Issue) *model.Issue {
	copied := *issue

	if issue.SummaryEmbedding != nil {
		emb := make(model.Embedding, len(issue.SummaryEmbedding))
		copy(emb, issue.SummaryEmbedding)
		copied.SummaryEmbedding = emb
	}

	if issue.Attributes != nil {
		attrs := make(map[string]any, len(issue.Attributes))
		for k, v := range issue.Attributes {
			attrs[k] = v
		}
		copied.Attributes = attrs
	}

	return &copied
}

func (r *issueRepository) Create(ctx context.Context, issue *model.Issue) (*model.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	created := copyIssue(issue)
	created.ID = types.IssueID(uuid.New().String())
	created.Status = issue.Status.Normalize()
	created.CreatedAt = now
	created.LastUpdated = now

	r.issues[created.ID] = created
	return copyIssue(created), nil
}

func (r *issueRepository) Get(ctx context.Context, id types.IssueID) (*model.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issue, exists := r.issues[id]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
	}

	return copyIssue(issue), nil
}

func (r *issueRepository) ListOpenByCategory(ctx context.Context, category types.CategoryID) ([]*model.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []*model.Issue
	for _, issue := range r.issues {
		if issue.Status.Normalize() != types.IssueStatusOpen {
			continue
		}
		if issue.Category != category {
			continue
		}
		issues = append(issues, copyIssue(issue))
	}

	return issues, nil
}

func (r *issueRepository) RecordDuplicate(ctx context.Context, id types.IssueID, ts time.Time) error {
	return r.AddDuplicateCount(ctx, id, 1, ts)
}

func (r *issueRepository) AddDuplicateCount(ctx context.Context, id types.IssueID, n int64, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	issue, exists := r.issues[id]
	if !exists {
		return goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
	}

	issue.DuplicateCount += n
	issue.LastUpdated = ts.UTC()
	return nil
}

func (r *issueRepository) CloseAsDuplicate(ctx context.Context, id, duplicateOf types.IssueID, ts time.Time) (*model.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	issue, exists := r.issues[id]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
	}

	issue.Status = types.IssueStatusClosed
	issue.DuplicateOf = duplicateOf
	issue.LastUpdated = ts.UTC()

	return copyIssue(issue), nil
}

func (r *issueRepository) Update(ctx context.Context, issue *model.Issue) (*model.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.issues[issue.ID]; !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", issue.ID))
	}

	updated := copyIssue(issue)
	updated.LastUpdated = time.Now().UTC()

	r.issues[issue.ID] = updated
	return copyIssue(updated), nil
}
