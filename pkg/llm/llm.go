package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is a non-streaming completion client. The API key travels with each
// request so callers can rotate credentials between calls.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

type Config struct {
	Provider string
	Model    string
	APIURL   string
}

type Request struct {
	APIKey      string
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// APIError carries the upstream status code and message so callers can
// distinguish quota, billing and availability failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: upstream status %d: %s", e.StatusCode, e.Message)
}

func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini", "googleai":
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
