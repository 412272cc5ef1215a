package providers

import (
	"context"
	"time"

	"github.com/jackzampolin/skim/internal/types"
)

// Summarizer is the Summarization Port: it turns chapter text into a summary
// at the requested depth. Implementations do not retry internally beyond
// their transport; retry policy belongs to the caller.
//
// A depth-1 result whose text is types.NonChapterSentinel is a successful
// response meaning the chapter is not narrative content.
type Summarizer interface {
	// Summarize returns the summary of text at depth. On failure the
	// returned result (if non-nil) carries timing and error details and the
	// error wraps types.ErrUpstream.
	Summarize(ctx context.Context, text string, depth types.Depth) (*SummaryResult, error)

	// Name returns the provider identifier (e.g., "gemini").
	Name() string
}

// SummaryResult is the complete response from a Summarize call.
type SummaryResult struct {
	Text string `json:"text"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// failed builds the result returned alongside an error.
func failed(provider, model string, start time.Time, err error) *SummaryResult {
	return &SummaryResult{
		Provider:      provider,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
		Success:       false,
		ErrorMessage:  err.Error(),
	}
}
