package types

import "fmt"

// IssueStatus represents the lifecycle status of an issue
type IssueStatus string

const (
	IssueStatusOpen   IssueStatus = "OPEN"
	IssueStatusClosed IssueStatus = "CLOSED"
)

// AllIssueStatuses returns all valid issue statuses
func AllIssueStatuses() []IssueStatus {
	return []IssueStatus{
		IssueStatusOpen,
		IssueStatusClosed,
	}
}

// IsValid checks if the issue status is valid
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueStatusOpen,
		IssueStatusClosed:
		return true
	default:
		return false
	}
}

// Normalize returns the status, treating empty as IssueStatusOpen for backward compatibility.
func (s IssueStatus) Normalize() IssueStatus {
	if s == "" {
		return IssueStatusOpen
	}
	return s
}

// String returns the string representation of the issue status
func (s IssueStatus) String() string {
	return string(s)
}

// ParseIssueStatus parses a string into an IssueStatus
func ParseIssueStatus(s string) (IssueStatus, error) {
	status := IssueStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid issue status: %s", s)
	}
	return status, nil
}
