// Package llmcall provides LLM call recording and querying for traceability.
// Every summarization request sent upstream is recorded with its response and metrics.
package llmcall

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/jackzampolin/skim/internal/providers"
)

// Sources of a recorded call.
const (
	SourceQueue    = "queue"
	SourceOnDemand = "on_demand"
)

// Call represents a recorded LLM API call.
type Call struct {
	bun.BaseModel `bun:"table:llm_calls,alias:lc" json:"-"`

	// Unique identifier
	ID string `bun:",pk" json:"id"`

	// Timing
	Timestamp time.Time `bun:",notnull" json:"timestamp"`
	LatencyMs int       `bun:",notnull" json:"latency_ms"`

	// Context references
	BookID    string `bun:",nullzero" json:"book_id,omitempty"`
	ChapterID string `bun:",nullzero" json:"chapter_id,omitempty"`
	Depth     int    `bun:",notnull" json:"depth"`
	Source    string `bun:",nullzero" json:"source,omitempty"`

	// Model info
	Provider string `bun:",notnull" json:"provider"`
	Model    string `bun:",nullzero" json:"model"`

	// Token usage
	InputTokens  int `bun:",notnull" json:"input_tokens"`
	OutputTokens int `bun:",notnull" json:"output_tokens"`

	// Response
	Response string `bun:",nullzero" json:"response"`

	// Status
	Success bool   `bun:",notnull" json:"success"`
	Error   string `bun:",nullzero" json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	BookID    string
	ChapterID string
	Depth     int

	// Source is SourceQueue or SourceOnDemand.
	Source string
}

// FromSummaryResult creates a Call from a SummaryResult.
// Returns nil if result is nil.
func FromSummaryResult(result *providers.SummaryResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		BookID:       opts.BookID,
		ChapterID:    opts.ChapterID,
		Depth:        opts.Depth,
		Source:       opts.Source,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     result.Text,
		Success:      result.Success,
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	return call
}
