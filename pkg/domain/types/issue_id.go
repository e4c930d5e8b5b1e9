package types

// IssueID is a store-generated identifier for an issue record.
// Firestore assigns it on insert; the memory backend mints a UUID.
type IssueID string

// String returns the string representation of IssueID
func (i IssueID) String() string {
	return string(i)
}
