package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
)

// Cache stores completion text by request key. store.Store implements it.
type Cache interface {
	CacheGet(ctx context.Context, key string) (string, bool, error)
	CachePut(ctx context.Context, key, model, response string) error
}

// modelNamer is implemented by providers that know their default model.
type modelNamer interface {
	Model() string
}

type cachedProvider struct {
	next  Provider
	cache Cache
}

// WithCache decorates p so identical requests are answered from c. Replies
// failing ChatRequest.Validate are never stored or served. Cache read and
// write failures are logged and never fail the request.
func WithCache(p Provider, c Cache) Provider {
	if c == nil {
		return p
	}
	return &cachedProvider{next: p, cache: c}
}

func (p *cachedProvider) Model() string {
	if m, ok := p.next.(modelNamer); ok {
		return m.Model()
	}
	return ""
}

func (p *cachedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Model()
	}
	key := CacheKey(model, req)

	content, ok, err := p.cache.CacheGet(ctx, key)
	switch {
	case err != nil:
		slog.Warn("llm: cache read failed", "error", err)
	case ok && req.Validate != nil && req.Validate(content) != nil:
		slog.Debug("llm: cached reply rejected, refreshing", "key", key[:12])
	case ok:
		slog.Debug("llm: cache hit", "key", key[:12])
		return &ChatResponse{Content: content, Model: model, Cached: true}, nil
	}

	resp, err := p.next.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Validate != nil {
		if verr := req.Validate(resp.Content); verr != nil {
			slog.Debug("llm: reply not cached", "key", key[:12], "error", verr)
			return resp, nil
		}
	}
	if err := p.cache.CachePut(ctx, key, model, resp.Content); err != nil {
		slog.Warn("llm: cache write failed", "error", err)
	}
	return resp, nil
}

// CacheKey derives the cache key for a request: the hex sha256 of the model,
// sampling parameters and messages.
func CacheKey(model string, req ChatRequest) string {
	payload := struct {
		Model          string    `json:"model"`
		Temperature    float64   `json:"temperature"`
		MaxTokens      int       `json:"max_tokens"`
		ResponseFormat string    `json:"response_format"`
		Messages       []Message `json:"messages"`
	}{model, req.Temperature, req.MaxTokens, req.ResponseFormat, req.Messages}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
