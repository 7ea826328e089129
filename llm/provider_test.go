package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"openai", "openai"},
		{"ollama", "ollama"},
		{"lmstudio", "lmstudio"},
		{"openrouter", "openrouter"},
		{"groq", "groq"},
		{"xai", "xai"},
		{"gemini", "gemini"},
		{"custom", "custom"},
		{"anthropic", "anthropic"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			require.NoError(t, err)
			require.NotNil(t, p)

			named, ok := p.(interface{ Name() string })
			require.True(t, ok, "provider %T has no Name()", p)
			assert.Equal(t, tt.wantName, named.Name())
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist"})
	require.Error(t, err)
	assert.Equal(t, "unknown llm provider: doesnotexist", err.Error())
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Provider: ""})
	require.Error(t, err)
	assert.Equal(t, "llm provider not specified", err.Error())
}

// TestDefaultBaseURLs verifies that when BaseURL is empty in the config,
// each provider constructor sets the correct default.
func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"openai", "https://api.openai.com"},
		{"ollama", "http://localhost:11434"},
		{"lmstudio", "http://localhost:1234"},
		{"openrouter", "https://openrouter.ai/api"},
		{"groq", "https://api.groq.com/openai"},
		{"xai", "https://api.x.ai"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai"},
		{"custom", ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			require.NoError(t, err)
			cp := p.(*compatProvider)
			assert.Equal(t, tt.wantURL, cp.base.cfg.BaseURL)
		})
	}
}

func TestGeminiHasNoPathPrefix(t *testing.T) {
	p := NewGemini(Config{}).(*compatProvider)
	assert.Equal(t, "", p.base.pathPrefix)

	o := NewOpenAI(Config{}).(*compatProvider)
	assert.Equal(t, "/v1", o.base.pathPrefix)
}

// TestExplicitBaseURLPreserved verifies that a user-supplied BaseURL
// is not overwritten by the default.
func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"
	for _, name := range []string{"openai", "ollama", "lmstudio", "openrouter", "groq", "xai", "gemini", "custom"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: name, BaseURL: customURL})
			require.NoError(t, err)
			assert.Equal(t, customURL, p.(*compatProvider).base.cfg.BaseURL)
		})
	}
}

func TestDefaultModels(t *testing.T) {
	assert.Equal(t, DefaultOpenAIModel, NewOpenAI(Config{}).(*compatProvider).Model())
	assert.Equal(t, "llama-3.3-70b-versatile", NewGroq(Config{}).(*compatProvider).Model())
	assert.Equal(t, DefaultAnthropicModel, NewAnthropic(Config{}).(*anthropicProvider).Model())
	assert.Equal(t, "llama3:latest", NewOllama(Config{Model: "llama3:latest"}).(*compatProvider).Model())
}

func TestAPIKeyPassedThrough(t *testing.T) {
	p, err := NewProvider(Config{Provider: "openrouter", APIKey: "sk-test-key-123"})
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key-123", p.(*compatProvider).base.cfg.APIKey)
}

func TestConfigRetryBudget(t *testing.T) {
	assert.Equal(t, uint64(DefaultMaxRetries), Config{}.maxRetries())
	assert.Equal(t, uint64(5), Config{MaxRetries: 5}.maxRetries())
	assert.Equal(t, uint64(0), Config{MaxRetries: -1}.maxRetries())
	assert.Equal(t, DefaultHTTPTimeout, Config{}.timeout())
}

func TestAnthropicBuildParams(t *testing.T) {
	p := NewAnthropic(Config{Model: "claude-test"}).(*anthropicProvider)
	params := p.buildParams(ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "again"},
		},
		Temperature: 0.3,
	})

	assert.Equal(t, "claude-test", string(params.Model))
	assert.Equal(t, int64(defaultAnthropicMaxTokens), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be terse", params.System[0].Text)
	assert.Len(t, params.Messages, 3)
}
