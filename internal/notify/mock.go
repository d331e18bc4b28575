package notify

import (
	"context"
	"fmt"
	"sync"
)

// Mock implements Notifier for testing. It records sent events.
type Mock struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	sent      []Event
	SendErr   error // returned by Send when set
}

// NewMock creates a Mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

// Connect marks the notifier as connected.
func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock notifier: already closed")
	}
	m.connected = true
	return nil
}

// Send records the event.
func (m *Mock) Send(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	if !m.connected {
		return fmt.Errorf("mock notifier: not connected")
	}
	m.sent = append(m.sent, ev)
	return nil
}

// Close marks the notifier as closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

// Sent returns the events sent so far.
func (m *Mock) Sent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.sent...)
}
