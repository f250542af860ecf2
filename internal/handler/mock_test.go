package handler

import (
	"context"
	"sync"
)

// MockSender is a mock implementation of telegram.Sender for testing
type MockSender struct {
	SendTextFunc func(ctx context.Context, text string) error
	Calls        []string
	mu           sync.Mutex
}

// SendText implements the telegram.Sender interface
func (m *MockSender) SendText(ctx context.Context, text string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()
	if m.SendTextFunc != nil {
		return m.SendTextFunc(ctx, text)
	}
	return nil
}

// CallCount returns the number of times SendText was called
func (m *MockSender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// GetCall returns the text passed to the call at the specified index
func (m *MockSender) GetCall(index int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[index]
}
