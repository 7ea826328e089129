package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sethvargo/go-retry"
)

const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
	maxRetryAfter  = 60 * time.Second
	retryJitter    = 250 * time.Millisecond
)

// retryPolicy runs a call with exponential backoff and jitter.
type retryPolicy struct {
	maxRetries uint64
	base       time.Duration
	jitter     time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	return retryPolicy{maxRetries: cfg.maxRetries(), base: baseRetryDelay, jitter: retryJitter}
}

func (p retryPolicy) backoff() retry.Backoff {
	base := p.base
	if base <= 0 {
		base = baseRetryDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	if p.jitter > 0 {
		b = retry.WithJitter(p.jitter, b)
	}
	return retry.WithMaxRetries(p.maxRetries, b)
}

// do invokes fn until it succeeds, returns a non-retryable error, the retry
// budget runs out or ctx is done. target is only used for logging.
func (p retryPolicy) do(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(ctx, err) {
			return err
		}
		if uint64(attempt) <= p.maxRetries {
			slog.Warn("llm: retrying request",
				"target", target,
				"attempt", attempt,
				"error", err,
			)
		}
		return retry.RetryableError(err)
	})
}

// retryableStatusCode returns true for HTTP status codes that warrant a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// isRetryable classifies transport and provider errors.
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatusCode(statusErr.StatusCode)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var transportErr *transportError
	return errors.As(err, &transportErr)
}

// transportError marks a failed round trip (connection refused, reset,
// truncated body) as opposed to an error response.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// retryAfter parses a Retry-After header given in seconds. Values above
// maxRetryAfter are capped; missing or invalid values yield zero.
func retryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	seconds, err := strconv.Atoi(ra)
	if err != nil || seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
