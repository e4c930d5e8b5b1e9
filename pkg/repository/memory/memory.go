package memory

import (
	"github.com/opsward/geryon/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	issue *issueRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		issue: newIssueRepository(),
	}
}

func (m *Memory) Issue() interfaces.IssueRepository {
	return m.issue
}

func (m *Memory) Close() error {
	return nil
}
