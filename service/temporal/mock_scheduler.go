package temporal

import (
	"context"
	"sync"
)

// MockJobStarter records started jobs instead of talking to Temporal.
type MockJobStarter struct {
	mu       sync.Mutex
	started  map[string]IndexWalletInput
	startErr error
}

func NewMockJobStarter() *MockJobStarter {
	return &MockJobStarter{started: make(map[string]IndexWalletInput)}
}

func (m *MockJobStarter) StartIndexJob(ctx context.Context, input IndexWalletInput) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[workflowID(input.JobID)] = input
	return nil
}

// SetStartError makes every subsequent start fail with err.
func (m *MockJobStarter) SetStartError(err error) {
	m.startErr = err
}

// Started returns the input a job was started with.
func (m *MockJobStarter) Started(jobID string) (IndexWalletInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.started[workflowID(jobID)]
	return input, ok
}

func (m *MockJobStarter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
