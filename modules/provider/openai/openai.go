// Package openai implements the provider.openai module on the OpenAI Chat
// Completions API. BaseURL makes it usable with any compatible endpoint.
package openai

import (
	"errors"
	"log/slog"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/provider"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider generates completions through an OpenAI-compatible endpoint.
type Provider struct {
	config        Config
	logger        *slog.Logger
	client        *goopenai.Client
	contextWindow int
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger

	cc := goopenai.DefaultConfig(p.config.APIKey)
	cc.BaseURL = p.config.BaseURL
	cc.HTTPClient = &http.Client{Timeout: p.config.parsedTimeout()}
	p.client = goopenai.NewClientWithConfig(cc)

	// Explicit config > known model map > 0.
	if p.config.ContextWindow > 0 {
		p.contextWindow = p.config.ContextWindow
	} else if size, ok := knownContextWindows[p.config.Model]; ok {
		p.contextWindow = size
	}

	ctx.RegisterService("provider.openai", p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if p.config.APIKey == "" {
		return errors.New("provider.openai: api_key is required")
	}
	if p.config.Model == "" {
		return errors.New("provider.openai: model is required")
	}
	if p.contextWindow <= 0 {
		return errors.New("provider.openai: context_window must be set for unknown models")
	}
	return p.config.validateTimeout()
}
