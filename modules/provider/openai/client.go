package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/replypass/replypass/internal/provider"
)

// buildChatRequest merges request-level overrides with config defaults.
func (p *Provider) buildChatRequest(req provider.CompletionRequest) goopenai.ChatCompletionRequest {
	cr := goopenai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if req.Model != "" {
		cr.Model = req.Model
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}

	switch {
	case req.Temperature != nil:
		cr.Temperature = float32(*req.Temperature)
	case p.config.Temperature != nil:
		cr.Temperature = float32(*p.config.Temperature)
	}
	return cr
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildChatRequest(req))
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("%w: response has no choices", provider.ErrProviderDown)
	}

	choice := resp.Choices[0]
	out := provider.CompletionResponse{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	switch choice.FinishReason {
	case goopenai.FinishReasonLength:
		out.FinishReason = provider.FinishReasonLength
	case goopenai.FinishReasonContentFilter:
		out.FinishReason = provider.FinishReasonFiltering
	default:
		out.FinishReason = provider.FinishReasonStop
	}
	return out, nil
}

// HealthCheck sends a 1-token completion, which exercises authentication,
// model access and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:  []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		MaxTokens: 1,
	})
	return err
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int {
	return p.contextWindow
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}
