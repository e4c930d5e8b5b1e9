package interfaces

import (
	"context"
	"time"

	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
)

// IssueRepository defines the interface for Issue data access
type IssueRepository interface {
	// Create inserts a new issue and returns it with the store-generated ID
	// and timestamps set.
	Create(ctx context.Context, issue *model.Issue) (*model.Issue, error)

	// Get retrieves an issue by ID
	Get(ctx context.Context, id types.IssueID) (*model.Issue, error)

	// ListOpenByCategory returns all open issues in the given category.
	// This is a single filtered scan; cost grows linearly with the number of
	// open issues in the category.
	ListOpenByCategory(ctx context.Context, category types.CategoryID) ([]*model.Issue, error)

	// RecordDuplicate atomically increments the duplicate count of the
	// addressed issue and sets its last-updated timestamp. It must be a
	// server-side increment, not read-modify-write, so concurrent merges into
	// the same issue stay correct. Returns repository.ErrNotFound when the
	// target no longer exists.
	RecordDuplicate(ctx context.Context, id types.IssueID, ts time.Time) error

	// AddDuplicateCount atomically adds n to the duplicate count, with the
	// same semantics as RecordDuplicate. Used when folding one issue's
	// accumulated count into another.
	AddDuplicateCount(ctx context.Context, id types.IssueID, n int64, ts time.Time) error

	// CloseAsDuplicate atomically marks the issue closed with a pointer to
	// the issue it was folded into, and returns the closed record including
	// its final duplicate count.
	CloseAsDuplicate(ctx context.Context, id, duplicateOf types.IssueID, ts time.Time) (*model.Issue, error)

	// Update overwrites an existing issue. Counter changes must go through
	// the atomic operations above, never through Update.
	Update(ctx context.Context, issue *model.Issue) (*model.Issue, error)
}
