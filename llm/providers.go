package llm

import "context"

// DefaultOpenAIModel is the chat model used when Config.Model is empty for
// the openai provider.
const DefaultOpenAIModel = "gpt-4"

// compatProvider implements Provider for any OpenAI-compatible endpoint.
// The named constructors below only differ in their defaults.
type compatProvider struct {
	name string
	base openAICompatClient
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

// Name returns the provider identifier (openai, groq, ...).
func (p *compatProvider) Name() string { return p.name }

// Model returns the configured default model.
func (p *compatProvider) Model() string { return p.base.cfg.Model }

func newCompat(name string, cfg Config, defaultURL, defaultModel string) *compatProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &compatProvider{name: name, base: newOpenAICompatClient(cfg)}
}

// NewOpenAICompat creates a generic OpenAI-compatible provider. No default
// base URL is applied.
func NewOpenAICompat(cfg Config) Provider {
	return newCompat("custom", cfg, "", "")
}

// NewOpenAI creates a provider for OpenAI.
//
// API key: set via config, KGRAPH_API_KEY or OPENAI_API_KEY.
func NewOpenAI(cfg Config) Provider {
	return newCompat("openai", cfg, "https://api.openai.com", DefaultOpenAIModel)
}

// NewOllama creates a provider for a local Ollama server using its
// OpenAI-compatible endpoint.
func NewOllama(cfg Config) Provider {
	return newCompat("ollama", cfg, "http://localhost:11434", "")
}

// NewLMStudio creates a provider for LM Studio.
func NewLMStudio(cfg Config) Provider {
	return newCompat("lmstudio", cfg, "http://localhost:1234", "")
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(cfg Config) Provider {
	return newCompat("openrouter", cfg, "https://openrouter.ai/api", "")
}

// NewGroq creates a provider for Groq.
//
// API key: set via config, KGRAPH_API_KEY or GROQ_API_KEY.
func NewGroq(cfg Config) Provider {
	return newCompat("groq", cfg, "https://api.groq.com/openai", "llama-3.3-70b-versatile")
}

// NewXAI creates a provider for xAI (Grok).
func NewXAI(cfg Config) Provider {
	return newCompat("xai", cfg, "https://api.x.ai", "")
}

// NewGemini creates a provider for Google Gemini through its
// OpenAI-compatible endpoint, which has no /v1 prefix.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	return &compatProvider{name: "gemini", base: newOpenAICompatClientPrefix(cfg, "")}
}
