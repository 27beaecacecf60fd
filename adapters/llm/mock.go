package llm

import (
	"context"
	"sync"

	"github.com/satriahrh/discute/domain/repositories"
)

// MockLLM is a scripted LargeLanguageModel used by tests and the offline mode
type MockLLM struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Requests []repositories.CompletionRequest
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a mock that always answers with reply
func NewMockLLM(reply string) *MockLLM {
	return &MockLLM{Reply: reply}
}

// Complete implements repositories.LargeLanguageModel
func (m *MockLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// LastRequest returns the most recent request, if any
func (m *MockLLM) LastRequest() (repositories.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Requests) == 0 {
		return repositories.CompletionRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
