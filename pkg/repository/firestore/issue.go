package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/repository"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// issueDoc is the Firestore document representation of model.Issue.
// SummaryEmbedding is stored as firestore.Vector32 so that a vector index
// can be added without a data migration.
type issueDoc struct {
	Status          string             `firestore:"status"`
	Category        string             `firestore:"category"`
	Summary         string             `firestore:"summary"`
	Embedding       firestore.Vector32 `firestore:"summary_embedding,omitempty"`
	DuplicateCount  int64              `firestore:"duplicate_count"`
	Upvotes         int64              `firestore:"upvotes"`
	ImportanceScore float64            `firestore:"importance_score"`
	Attributes      map[string]any     `firestore:"attributes,omitempty"`
	DuplicateOf     string             `firestore:"duplicate_of,omitempty"`
	CreatedAt       time.Time          `firestore:"created_at"`
	LastUpdated     time.Time          `firestore:"last_updated"`
}

func toIssueDoc(issue *model.Issue) *issueDoc {
	doc := &issueDoc{
		Status:          issue.Status.String(),
		Category:        issue.Category.String(),
		Summary:         issue.Summary,
		DuplicateCount:  issue.DuplicateCount,
		Upvotes:         issue.Upvotes,
		ImportanceScore: issue.ImportanceScore,
		Attributes:      issue.Attributes,
		DuplicateOf:     issue.DuplicateOf.String(),
		CreatedAt:       issue.CreatedAt,
		LastUpdated:     issue.LastUpdated,
	}
	if len(issue.SummaryEmbedding) > 0 {
		doc.Embedding = firestore.Vector32(issue.SummaryEmbedding)
	}
	return doc
}

func fromIssueDoc(id string, d *issueDoc) *model.Issue {
	issue := &model.Issue{
		ID:              types.IssueID(id),
		Status:          types.IssueStatus(d.Status).Normalize(),
		Category:        types.CategoryID(d.Category),
		Summary:         d.Summary,
		DuplicateCount:  d.DuplicateCount,
		Upvotes:         d.Upvotes,
		ImportanceScore: d.ImportanceScore,
		Attributes:      d.Attributes,
		DuplicateOf:     types.IssueID(d.DuplicateOf),
		CreatedAt:       d.CreatedAt,
		LastUpdated:     d.LastUpdated,
	}
	if len(d.Embedding) > 0 {
		issue.SummaryEmbedding = model.Embedding(d.Embedding)
	}
	return issue
}

func docToIssue(doc *firestore.DocumentSnapshot) (*model.Issue, error) {
	var d issueDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return fromIssueDoc(doc.Ref.ID, &d), nil
}

type issueRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newIssueRepository(client *firestore.Client) *issueRepository {
	return &issueRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *issueRepository) issuesCollection() *firestore.CollectionRef {
	name := "issues"
	if r.collectionPrefix != "" {
		name = r.collectionPrefix + "_issues"
	}
	return r.client.Collection(name)
}

func (r *issueRepository) Create(ctx context.Context, issue *model.Issue) (*model.Issue, error) {
	now := time.Now().UTC()
	created := *issue
	created.Status = issue.Status.Normalize()
	created.CreatedAt = now
	created.LastUpdated = now

	docRef := r.issuesCollection().NewDoc()
	if _, err := docRef.Set(ctx, toIssueDoc(&created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create issue", goerr.V("category", issue.Category))
	}

	created.ID = types.IssueID(docRef.ID)
	return &created, nil
}

func (r *issueRepository) Get(ctx context.Context, id types.IssueID) (*model.Issue, error) {
	doc, err := r.issuesCollection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get issue", goerr.V("id", id))
	}

	issue, err := docToIssue(doc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode issue", goerr.V("id", id))
	}

	return issue, nil
}

func (r *issueRepository) ListOpenByCategory(ctx context.Context, category types.CategoryID) ([]*model.Issue, error) {
	iter := r.issuesCollection().
		Where("status", "==", types.IssueStatusOpen.String()).
		Where("category", "==", category.String()).
		Documents(ctx)
	defer iter.Stop()

	var issues []*model.Issue
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate issues", goerr.V("category", category))
		}

		issue, err := docToIssue(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode issue", goerr.V("doc_id", doc.Ref.ID))
		}

		issues = append(issues, issue)
	}

	return issues, nil
}

func (r *issueRepository) RecordDuplicate(ctx context.Context, id types.IssueID, ts time.Time) error {
	return r.AddDuplicateCount(ctx, id, 1, ts)
}

func (r *issueRepository) AddDuplicateCount(ctx context.Context, id types.IssueID, n int64, ts time.Time) error {
	docRef := r.issuesCollection().Doc(string(id))

	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "duplicate_count", Value: firestore.Increment(n)},
		{Path: "last_updated", Value: ts.UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to record duplicate", goerr.V("id", id))
	}

	return nil
}

func (r *issueRepository) CloseAsDuplicate(ctx context.Context, id, duplicateOf types.IssueID, ts time.Time) (*model.Issue, error) {
	docRef := r.issuesCollection().Doc(string(id))

	var closed *model.Issue
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", id))
			}
			return err
		}

		issue, err := docToIssue(doc)
		if err != nil {
			return err
		}

		issue.Status = types.IssueStatusClosed
		issue.DuplicateOf = duplicateOf
		issue.LastUpdated = ts.UTC()

		if err := tx.Set(docRef, toIssueDoc(issue)); err != nil {
			return err
		}

		closed = issue
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to close duplicate issue", goerr.V("id", id))
	}

	return closed, nil
}

func (r *issueRepository) Update(ctx context.Context, issue *model.Issue) (*model.Issue, error) {
	docRef := r.issuesCollection().Doc(string(issue.ID))

	// Check if document exists
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "issue not found", goerr.V("id", issue.ID))
		}
		return nil, goerr.Wrap(err, "failed to get issue", goerr.V("id", issue.ID))
	}

	updated := *issue
	updated.LastUpdated = time.Now().UTC()

	if _, err := docRef.Set(ctx, toIssueDoc(&updated)); err != nil {
		return nil, goerr.Wrap(err, "failed to update issue", goerr.V("id", issue.ID))
	}

	return &updated, nil
}
