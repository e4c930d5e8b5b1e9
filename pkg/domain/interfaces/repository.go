package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Issue() IssueRepository

	// Close releases the underlying client resources
	Close() error
}
