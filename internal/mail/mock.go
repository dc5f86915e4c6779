package mail

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Sender for tests and draft-only deployments.
type Mock struct {
	mu   sync.Mutex
	sent []Message

	// FailWith, when set, makes every Send return this error.
	FailWith error
}

// NewMock creates an empty mock sender.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the message and returns a synthetic message ID.
func (m *Mock) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("<mock-%d@fuelwatch.test>", len(m.sent)), nil
}

// Sent returns a copy of everything delivered so far.
func (m *Mock) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
