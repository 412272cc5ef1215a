package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jackzampolin/skim/internal/types"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.0-flash-001"
)

// GeminiConfig holds configuration for the Gemini summarizer.
type GeminiConfig struct {
	APIKey  string
	Model   string        // "gemini-2.0-flash-001" (default)
	Timeout time.Duration // Per-call timeout
}

// GeminiClient implements Summarizer with the Google generative AI SDK.
type GeminiClient struct {
	modelName string
	timeout   time.Duration
	client    *genai.Client
	model     *genai.GenerativeModel
}

// NewGeminiClient creates a new Gemini summarizer.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		modelName: cfg.Model,
		timeout:   cfg.Timeout,
		client:    client,
		model:     client.GenerativeModel(cfg.Model),
	}, nil
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Model returns the configured model.
func (c *GeminiClient) Model() string {
	return c.modelName
}

// Summarize generates a summary with a single GenerateContent call.
func (c *GeminiClient) Summarize(ctx context.Context, text string, depth types.Depth) (*SummaryResult, error) {
	start := time.Now()

	prompt, err := BuildPrompt(text, depth)
	if err != nil {
		return failed(GeminiName, c.modelName, start, err), err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		err = fmt.Errorf("%w: gemini generation failed: %v", types.ErrUpstream, err)
		return failed(GeminiName, c.modelName, start, err), err
	}

	content, err := extractGeminiText(resp)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrUpstream, err)
		return failed(GeminiName, c.modelName, start, err), err
	}

	result := &SummaryResult{
		Text:          content,
		ExecutionTime: time.Since(start),
		Provider:      GeminiName,
		ModelUsed:     c.modelName,
		Success:       true,
	}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// Close releases the underlying client connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned from gemini")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("gemini candidate has no content (finish reason %v)", cand.FinishReason)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("unexpected response format from gemini")
	}
	return out, nil
}
