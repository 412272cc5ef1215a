package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/skim/internal/types"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI summarizer.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o-mini" (default)
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests, compatible gateways)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Summarizer using the official OpenAI SDK.
type OpenAIClient struct {
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI summarizer.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Model returns the configured model.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Summarize sends the depth prompt and chapter text as a single user message.
func (c *OpenAIClient) Summarize(ctx context.Context, text string, depth types.Depth) (*SummaryResult, error) {
	start := time.Now()

	prompt, err := BuildPrompt(text, depth)
	if err != nil {
		return failed(OpenAIName, c.model, start, err), err
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrUpstream, mapOpenAIError(err))
		return failed(OpenAIName, c.model, start, err), err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: openai returned no choices", types.ErrUpstream)
		return failed(OpenAIName, c.model, start, err), err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		err := fmt.Errorf("%w: openai returned an empty summary", types.ErrUpstream)
		return failed(OpenAIName, c.model, start, err), err
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}

	return &SummaryResult{
		Text:             content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		ExecutionTime:    time.Since(start),
		Provider:         OpenAIName,
		ModelUsed:        model,
		Success:          true,
	}, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}
