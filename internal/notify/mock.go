package notify

import (
	"context"
	"sync"
)

// Mock records notifications for tests.
type Mock struct {
	mu       sync.Mutex
	messages []string

	// FailWith, when set, makes every Notify return this error.
	FailWith error
}

// NewMock creates an empty mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

// Notify records the message.
func (m *Mock) Notify(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.messages = append(m.messages, text)
	return nil
}

// Messages returns a copy of everything delivered so far.
func (m *Mock) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}
