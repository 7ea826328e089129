package llm

import (
	"errors"
	"fmt"
)

// ErrRequestFailed wraps every error returned by a provider after retries
// are exhausted or a non-retryable response was received.
var ErrRequestFailed = errors.New("llm: request failed")

// StatusError is a non-200 response from an OpenAI-compatible endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM API error %d: %s", e.StatusCode, e.Body)
}
