package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/replypass/replypass/internal/provider"
)

// mapError maps a go-openai error onto the provider sentinels.
// Context errors pass through unchanged.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return mapStatus(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
}

func mapStatus(code int, msg string, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", provider.ErrTimeout, msg)
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "context_length"):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	case code >= 500:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
	case code >= 400:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrFatal, code, msg)
	default:
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
}
