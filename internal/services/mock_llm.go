package services

import (
	"context"
	"sync"
)

// MockBackend is a mock implementation of TextBackend for testing
type MockBackend struct {
	NameValue      string
	LocalValue     bool
	ListModelsFunc func(ctx context.Context) ([]string, error)
	CompleteFunc   func(ctx context.Context, model string, req CompletionRequest) (string, error)

	// Track calls for testing
	listModelsCalls int
	completeCalls   []CompleteCall

	mu sync.Mutex // protects call tracking
}

var _ TextBackend = (*MockBackend)(nil)

type CompleteCall struct {
	Model   string
	Request CompletionRequest
}

// NewMockBackend creates a mock that answers every completion with reply
func NewMockBackend(reply string) *MockBackend {
	return &MockBackend{
		NameValue: "mock",
		CompleteFunc: func(ctx context.Context, model string, req CompletionRequest) (string, error) {
			return reply, nil
		},
	}
}

func (m *MockBackend) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockBackend) Local() bool { return m.LocalValue }

// ListModels mocks model listing
func (m *MockBackend) ListModels(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.listModelsCalls++
	m.mu.Unlock()

	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []string{"mock-model"}, nil
}

// Complete records the call and delegates to CompleteFunc. The lock is
// released before delegating so tests can block inside CompleteFunc.
func (m *MockBackend) Complete(ctx context.Context, model string, req CompletionRequest) (string, error) {
	m.mu.Lock()
	m.completeCalls = append(m.completeCalls, CompleteCall{Model: model, Request: req})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, model, req)
	}
	return "The story continues.", nil
}

func (m *MockBackend) CompleteCalls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompleteCall, len(m.completeCalls))
	copy(out, m.completeCalls)
	return out
}

func (m *MockBackend) ListModelsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listModelsCalls
}
