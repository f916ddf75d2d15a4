package services

import (
	"context"
	"errors"
	"testing"
)

func TestMockBackend(t *testing.T) {
	mock := NewMockBackend("Mock response")

	if mock.Name() != "mock" {
		t.Errorf("Expected name 'mock', got '%s'", mock.Name())
	}
	if mock.Local() {
		t.Error("Expected mock backend not to be local")
	}

	models, err := mock.ListModels(context.Background())
	if err != nil {
		t.Errorf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0] != "mock-model" {
		t.Errorf("Expected [mock-model], got %v", models)
	}
	if mock.ListModelsCalls() != 1 {
		t.Errorf("Expected 1 ListModels call, got %d", mock.ListModelsCalls())
	}

	req := CompletionRequest{System: "be brief", Prompt: "be brief\nhello"}
	response, err := mock.Complete(context.Background(), "mock-model", req)
	if err != nil {
		t.Errorf("Complete failed: %v", err)
	}
	if response != "Mock response" {
		t.Errorf("Expected 'Mock response', got '%s'", response)
	}

	calls := mock.CompleteCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 Complete call, got %d", len(calls))
	}
	if calls[0].Model != "mock-model" || calls[0].Request.Prompt != req.Prompt {
		t.Errorf("Unexpected call recorded: %+v", calls[0])
	}
}

func TestMockBackend_CustomFuncs(t *testing.T) {
	mock := &MockBackend{
		NameValue:  "local",
		LocalValue: true,
		ListModelsFunc: func(ctx context.Context) ([]string, error) {
			return nil, ErrUnavailable
		},
		CompleteFunc: func(ctx context.Context, model string, req CompletionRequest) (string, error) {
			return "", ErrRateLimited
		},
	}

	if mock.Name() != "local" || !mock.Local() {
		t.Errorf("Expected local backend named 'local', got %s local=%t", mock.Name(), mock.Local())
	}
	if _, err := mock.ListModels(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if _, err := mock.Complete(context.Background(), "m", CompletionRequest{}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
}
