package model

import (
	"time"

	"github.com/opsward/geryon/pkg/domain/types"
)

// Report is a validated issue report received from the upstream
// categorization stage. It is request-scoped and immutable once received.
// Attributes carries any additional fields of the original payload verbatim.
type Report struct {
	Category   types.CategoryID
	Summary    string
	Attributes map[string]any
}

// Issue is a persistent, deduplicated issue record.
// DuplicateCount starts at 1 on creation (the creating report counts as the
// first instance) and is only ever incremented by this service.
// ImportanceScore is owned by a downstream scorer and only initialized here.
type Issue struct {
	ID               types.IssueID
	Status           types.IssueStatus
	Category         types.CategoryID
	Summary          string
	SummaryEmbedding Embedding
	DuplicateCount   int64
	Upvotes          int64
	ImportanceScore  float64
	Attributes       map[string]any
	DuplicateOf      types.IssueID // set when folded into another issue by reconciliation
	CreatedAt        time.Time
	LastUpdated      time.Time
}

// NewIssue builds a fresh open issue from a report and its embedding.
// Timestamps and the ID are assigned by the repository on insert.
func NewIssue(report *Report, embedding Embedding) *Issue {
	return &Issue{
		Status:           types.IssueStatusOpen,
		Category:         report.Category,
		Summary:          report.Summary,
		SummaryEmbedding: embedding,
		DuplicateCount:   1,
		Upvotes:          0,
		ImportanceScore:  0,
		Attributes:       report.Attributes,
	}
}

// Match is the transient result of candidate selection. A zero Match
// (empty IssueID, score 0.0) means no eligible candidate was beaten.
type Match struct {
	IssueID types.IssueID
	Score   float64
}

// Matched reports whether the match references an actual issue.
func (m Match) Matched() bool {
	return m.IssueID != ""
}

// DedupStatus is the outcome of a dedup decision
type DedupStatus string

const (
	DedupStatusCreated   DedupStatus = "CREATED"
	DedupStatusDuplicate DedupStatus = "DUPLICATE"
)

// DedupResult is the outcome of submitting a report for deduplication.
// IssueID is the created issue's ID when Status is CREATED, or the existing
// issue the report was chained to when Status is DUPLICATE.
type DedupResult struct {
	Status  DedupStatus
	IssueID types.IssueID
	Score   float64
}
