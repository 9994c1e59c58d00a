package nats

import (
	"context"
	"sync"
)

// MockPublisher records published events in memory.
type MockPublisher struct {
	mu           sync.RWMutex
	events       []*JobEvent
	publishError error
	closed       bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{events: make([]*JobEvent, 0)}
}

// PublishJobEvent records the event and returns any configured error.
func (m *MockPublisher) PublishJobEvent(ctx context.Context, event *JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of all published events.
func (m *MockPublisher) GetPublishedEvents() []*JobEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*JobEvent, len(m.events))
	copy(events, m.events)
	return events
}

// GetPublishedEventsForJob returns events published for one job, in order.
func (m *MockPublisher) GetPublishedEventsForJob(jobID string) []*JobEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*JobEvent, 0)
	for _, event := range m.events {
		if event.JobID == jobID {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to fail every publish with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make([]*JobEvent, 0)
	m.publishError = nil
	m.closed = false
}

func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
