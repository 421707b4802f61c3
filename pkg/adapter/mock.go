package adapter

import (
	"context"
	"sync"
)

// MockAdapter returns scripted responses for local runs and tests.
type MockAdapter struct {
	mu              sync.Mutex
	responses       map[string]string
	defaultResponse string
	err             error
	calls           int
	Usage           *Usage
}

const mockDefaultResponse = `{"agent":"orchestrator","confidence":0.5,"reason":"mock classifier has no opinion"}`

// NewMockAdapter creates a mock adapter that always answers with a neutral
// classification.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: mockDefaultResponse,
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses
// keyed by exact prompt.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = mockDefaultResponse
	}
	if responses == nil {
		responses = make(map[string]string)
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// FailWith makes every subsequent call return err.
func (a *MockAdapter) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Calls returns how many times Generate has been invoked.
func (a *MockAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns the scripted response for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.err != nil {
		return nil, a.err
	}
	if model == "" {
		model = "mock-1"
	}
	content, ok := a.responses[prompt]
	if !ok {
		content = a.defaultResponse
	}
	return &Response{Content: content, Model: model, Usage: a.Usage}, nil
}
