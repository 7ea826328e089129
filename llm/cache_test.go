package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ChatResponse{Content: "answer:" + req.Messages[len(req.Messages)-1].Content, Model: "m"}, nil
}

func (p *countingProvider) Model() string { return "fake-model" }

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
	models  map[string]string
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}, models: map[string]string{}}
}

func (c *mapCache) CacheGet(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return "", false, errors.New("boom")
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) CachePut(_ context.Context, key, model, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = response
	c.models[key] = model
	return nil
}

func TestWithCacheHit(t *testing.T) {
	inner := &countingProvider{}
	cache := newMapCache()
	p := WithCache(inner, cache)

	req := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}, Temperature: 0.3}

	first, err := p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, inner.calls)

	key := CacheKey("fake-model", req)
	assert.Equal(t, "fake-model", cache.models[key])
}

func TestWithCacheDistinguishesRequests(t *testing.T) {
	inner := &countingProvider{}
	p := WithCache(inner, newMapCache())

	base := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}, Temperature: 0.3}
	warmer := base
	warmer.Temperature = 0.1

	_, err := p.Chat(context.Background(), base)
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), warmer)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestWithCacheErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: ErrRequestFailed}
	cache := newMapCache()
	p := WithCache(inner, cache)

	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Empty(t, cache.entries)
}

func TestWithCacheSkipsRejectedReplies(t *testing.T) {
	inner := &countingProvider{}
	cache := newMapCache()
	p := WithCache(inner, cache)

	req := ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
		Validate: func(string) error { return errors.New("unusable") },
	}
	for range 2 {
		resp, err := p.Chat(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, cache.entries)

	// A stored reply that now fails validation is refreshed and replaced.
	key := CacheKey("fake-model", req)
	cache.entries[key] = "stale"
	req.Validate = func(c string) error {
		if c == "stale" {
			return errors.New("stale")
		}
		return nil
	}
	resp, err := p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "answer:q", resp.Content)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "answer:q", cache.entries[key])
}

func TestWithCacheReadFailureFallsThrough(t *testing.T) {
	inner := &countingProvider{}
	cache := newMapCache()
	cache.failGet = true
	p := WithCache(inner, cache)

	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	require.NoError(t, err)
	assert.Equal(t, "answer:q", resp.Content)
	assert.Equal(t, 1, inner.calls)
}

func TestWithCacheNil(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), WithCache(inner, nil))
}

func TestCacheKeyStable(t *testing.T) {
	req := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}, MaxTokens: 1000}
	assert.Equal(t, CacheKey("m", req), CacheKey("m", req))
	assert.NotEqual(t, CacheKey("m", req), CacheKey("n", req))
	assert.Len(t, CacheKey("m", req), 64)
}
