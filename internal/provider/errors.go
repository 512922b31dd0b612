package provider

import (
	"context"
	"errors"

	"github.com/replypass/replypass/pkg/reply"
)

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrTimeout indicates an attempt did not complete within its deadline.
	ErrTimeout = errors.New("provider timeout")

	// ErrFatal indicates a request the provider will never accept as sent.
	ErrFatal = errors.New("provider rejected request")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request can
// be retried after a delay. Rate limits are not retried: they are surfaced
// to the caller so quota pressure is visible.
func IsRetryable(err error) bool {
	return isTimeout(err) || errors.Is(err, ErrProviderDown)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Classify maps a generation error onto the failure kind reported to callers.
func Classify(err error) reply.FailureKind {
	switch {
	case errors.Is(err, ErrRateLimit):
		return reply.FailureUpstreamRateLimited
	case isTimeout(err), errors.Is(err, context.Canceled):
		return reply.FailureTimeout
	default:
		return reply.FailureUpstreamError
	}
}
