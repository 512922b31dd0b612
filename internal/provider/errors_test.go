package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/replypass/replypass/pkg/reply"
)

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		ErrRateLimit,
		ErrContextLength,
		ErrProviderDown,
		ErrTimeout,
		ErrFatal,
		ErrNoProvider,
	}

	for i, a := range sentinels {
		if a.Error() == "" {
			t.Fatalf("sentinel %d has an empty message", i)
		}
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinel errors must be distinct: %v and %v", a, b)
			}
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit, false},
		{"provider down", ErrProviderDown, true},
		{"timeout", ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"fatal", ErrFatal, false},
		{"context length", ErrContextLength, false},
		{"generic error", errors.New("something"), false},
		{"wrapped provider down", fmt.Errorf("gemini: %w", ErrProviderDown), true},
		{"wrapped fatal", fmt.Errorf("gemini: %w", ErrFatal), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want reply.FailureKind
	}{
		{"rate limit", fmt.Errorf("x: %w", ErrRateLimit), reply.FailureUpstreamRateLimited},
		{"timeout", ErrTimeout, reply.FailureTimeout},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), reply.FailureTimeout},
		{"canceled", context.Canceled, reply.FailureTimeout},
		{"provider down", ErrProviderDown, reply.FailureUpstreamError},
		{"fatal", ErrFatal, reply.FailureUpstreamError},
		{"unknown", errors.New("boom"), reply.FailureUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
