package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when Config.Model is empty for the anthropic
// provider.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// defaultAnthropicMaxTokens is sent when the request leaves MaxTokens unset;
// the Messages API requires the field.
const defaultAnthropicMaxTokens = 1024

// anthropicProvider implements Provider with the official Anthropic SDK.
type anthropicProvider struct {
	client anthropic.Client
	model  string
	retry  retryPolicy
}

// NewAnthropic creates a provider for the Anthropic Messages API.
//
// API key: set via config, KGRAPH_API_KEY or ANTHROPIC_API_KEY.
func NewAnthropic(cfg Config) Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{
		// Retries are handled by retryPolicy so that every provider shares
		// the same budget and logging.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.timeout()),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		retry:  newRetryPolicy(cfg),
	}
}

// Name returns "anthropic".
func (p *anthropicProvider) Name() string { return "anthropic" }

// Model returns the configured default model.
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := p.buildParams(req)

	var message *anthropic.Message
	err := p.retry.do(ctx, "anthropic", func(ctx context.Context) error {
		var err error
		message, err = p.client.Messages.New(ctx, params)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("%w: no content blocks in response", ErrRequestFailed)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("%w: unexpected response format: no text block (type=%s)",
			ErrRequestFailed, message.Content[0].Type)
	}

	in := int(message.Usage.InputTokens)
	out := int(message.Usage.OutputTokens)
	return &ChatResponse{
		Content:          sb.String(),
		Model:            string(message.Model),
		FinishReason:     string(message.StopReason),
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	}, nil
}

// buildParams maps a ChatRequest onto the Messages API. System messages are
// lifted into the top-level system prompt.
func (p *anthropicProvider) buildParams(req ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}
