// Package gemini implements the provider.gemini module on the Google Gen AI
// SDK (Gemini Developer API).
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/provider"
)

func init() {
	core.RegisterModule(&Provider{})
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider generates completions with Gemini models.
type Provider struct {
	config        Config
	logger        *slog.Logger
	client        *genai.Client
	contextWindow int
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.gemini",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.gemini: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	if err := p.config.validate(); err != nil {
		return err
	}
	p.logger = ctx.Logger

	cc := &genai.ClientConfig{
		APIKey:     p.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: p.config.Timeout},
	}
	if p.config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = p.config.BaseURL
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return fmt.Errorf("provider.gemini: create client: %w", err)
	}
	p.client = client

	if p.config.ContextWindow > 0 {
		p.contextWindow = p.config.ContextWindow
	} else if size, ok := knownContextWindows[p.config.Model]; ok {
		p.contextWindow = size
	}

	ctx.RegisterService("provider.gemini", p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if p.contextWindow <= 0 {
		return errors.New("provider.gemini: context_window must be set for unknown models")
	}
	return nil
}

// Complete implements provider.Provider. System messages become the
// system instruction; assistant turns are sent with the model role.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	model := p.config.Model
	if req.Model != "" {
		model = req.Model
	}

	gc := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if p.config.JSONOutput {
		gc.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleSystem:
			gc.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case provider.MessageRoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return fromResponse(resp, model), nil
}

func fromResponse(resp *genai.GenerateContentResponse, model string) provider.CompletionResponse {
	out := provider.CompletionResponse{
		Content:      resp.Text(),
		Model:        model,
		FinishReason: provider.FinishReasonStop,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonMaxTokens:
			out.FinishReason = provider.FinishReasonLength
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			out.FinishReason = provider.FinishReasonFiltering
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = provider.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

// HealthCheck sends a tiny generation, which exercises the key and model.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:  []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "Hello"}},
		MaxTokens: 10,
	})
	return err
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int { return p.contextWindow }

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string { return p.config.Model }
