package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for the dedup use case. The HTTP layer maps these onto
// status codes, so each failure kind stays inspectable for the caller.
var (
	// Validation failures: the request never reaches the store
	ErrInvalidReport   = goerr.New("invalid report")
	ErrUnknownCategory = goerr.New("unknown report category")

	// Conflict failure: the merge target vanished between selection and mutation
	ErrIssueVanished = goerr.New("merge target issue no longer exists")

	// Transient dependency failures: safe for the caller to retry the whole request
	ErrEmbedderUnavailable = goerr.New("embedding service unavailable")
	ErrStoreUnavailable    = goerr.New("issue store unavailable")
)

// Context keys for error values
const (
	CategoryKey = "category"
	IssueIDKey  = "issue_id"
	ScoreKey    = "score"
)
