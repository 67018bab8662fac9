package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// MockFunc answers a Generate call on a MockProvider.
type MockFunc func(ctx context.Context, req Request) (*Response, error)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// MockProvider is a deterministic Provider for testing and dry runs.
// Canned responses are returned in FIFO order; once the queue is empty
// GenerateFunc answers, and without one the call fails with a 503.
type MockProvider struct {
	name string

	// GenerateFunc answers calls once canned responses run out.
	GenerateFunc MockFunc

	// EmbedFunc answers Embed. Nil means embeddings are unsupported.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	mu         sync.Mutex
	responses  []MockResponse
	Calls      []Request
	EmbedCalls []EmbedRequest
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(name string, responses ...MockResponse) *MockProvider {
	return &MockProvider{name: name, responses: responses}
}

func (m *MockProvider) Name() string { return m.name }

// Generate returns the next canned response, or delegates to GenerateFunc.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)

	if len(m.responses) == 0 {
		fn := m.GenerateFunc
		m.mu.Unlock()
		if fn == nil {
			return nil, &ProviderError{
				Provider:   m.name,
				StatusCode: http.StatusServiceUnavailable,
				Message:    "mock: no canned response",
			}
		}
		return fn(ctx, req)
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}

	model := req.Model
	if model == "" {
		model = "mock"
	}
	return &Response{
		Content:    resp.Content,
		Usage:      resp.Usage,
		Model:      model,
		StopReason: "end",
	}, nil
}

// Embed delegates to EmbedFunc.
func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) (*Embedding, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, req)
	fn := m.EmbedFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, unsupportedEmbeddings(m.name)
	}
	vec, err := fn(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = "mock-embedding"
	}
	tokens := (len(req.Text) + 3) / 4
	return &Embedding{Vector: vec, Model: model, Usage: Usage{InputTokens: tokens, TotalTokens: tokens}}, nil
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// EmbedCount returns the number of Embed calls made.
func (m *MockProvider) EmbedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmbedCalls)
}
