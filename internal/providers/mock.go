package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/skim/internal/types"
)

const MockName = "mock"

// MockCall is one recorded invocation of a MockSummarizer.
type MockCall struct {
	Text  string
	Depth types.Depth
}

// MockSummarizer is a Summarizer for testing.
type MockSummarizer struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// Responses overrides ResponseText for an exact input text.
	Responses map[string]string
	// FailOn makes calls for an exact input text fail.
	FailOn map[string]bool

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        []MockCall
}

// NewMockSummarizer creates a new mock summarizer with sensible defaults.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{
		ResponseText: "mock summary",
	}
}

// Name returns the provider identifier.
func (m *MockSummarizer) Name() string {
	return MockName
}

// Summarize returns the configured response.
func (m *MockSummarizer) Summarize(ctx context.Context, text string, depth types.Depth) (*SummaryResult, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Depth: depth})
	m.mu.Unlock()

	if !depth.Valid() {
		err := fmt.Errorf("%w: depth must be between 1 and 4, got %d", types.ErrInvalidInput, depth)
		return failed(MockName, MockName, start, err), err
	}
	if m.ShouldFail || m.FailOn[text] {
		err := fmt.Errorf("%w: mock summarizer configured to fail", types.ErrUpstream)
		return failed(MockName, MockName, start, err), err
	}
	if m.FailAfter > 0 && int(count) > m.FailAfter {
		err := fmt.Errorf("%w: mock summarizer failed after %d requests", types.ErrUpstream, m.FailAfter)
		return failed(MockName, MockName, start, err), err
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			err := fmt.Errorf("%w: %v", types.ErrUpstream, ctx.Err())
			return failed(MockName, MockName, start, err), err
		}
	}

	content := m.ResponseText
	if r, ok := m.Responses[text]; ok {
		content = r
	}

	return &SummaryResult{
		Text:             content,
		PromptTokens:     len(text) / 4,
		CompletionTokens: len(content) / 4,
		ExecutionTime:    time.Since(start),
		Provider:         MockName,
		ModelUsed:        MockName,
		Success:          true,
	}, nil
}

// RequestCount returns the number of requests made.
func (m *MockSummarizer) RequestCount() int64 {
	return m.requestCount.Load()
}

// Calls returns a copy of every recorded invocation.
func (m *MockSummarizer) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears the request counter and recorded calls.
func (m *MockSummarizer) Reset() {
	m.requestCount.Store(0)
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
