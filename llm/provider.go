package llm

import (
	"context"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the interface for LLM chat completions.
type Provider interface {
	// Chat sends a chat completion request and returns the completion text.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode. Leave it empty
	// when the expected answer is a top-level JSON array.
	ResponseFormat string `json:"response_format,omitempty"`
	// Validate, when set, rejects replies the caller cannot use. WithCache
	// neither stores nor serves a reply that fails it.
	Validate func(content string) error `json:"-"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Cached           bool   `json:"cached,omitempty"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // openai, anthropic, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// MaxRetries bounds retries of transient failures (network errors,
	// 429, 502, 503, 504). Zero selects DefaultMaxRetries; negative disables
	// retrying.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout caps a single HTTP round trip. Zero selects DefaultHTTPTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Defaults applied by the providers.
const (
	DefaultMaxRetries  = 3
	DefaultHTTPTimeout = 120 * time.Second
)

func (c Config) maxRetries() uint64 {
	switch {
	case c.MaxRetries < 0:
		return 0
	case c.MaxRetries == 0:
		return DefaultMaxRetries
	}
	return uint64(c.MaxRetries)
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultHTTPTimeout
	}
	return c.Timeout
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "groq":
		return NewGroq(cfg), nil
	case "xai":
		return NewXAI(cfg), nil
	case "gemini":
		return NewGemini(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
