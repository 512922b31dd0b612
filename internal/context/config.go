// Package ctxengine gathers and budgets the context of a reply generation:
// conversation excerpt, feedback examples and persona block.
package ctxengine

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// MaxContextTokens overrides the provider's ContextWindowSize().
	// 0 means use the provider's reported value.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// ReservedForReply is the number of tokens reserved for the model's response.
	ReservedForReply int `yaml:"reserved_for_reply"`

	// CharsPerToken is the estimator ratio. Japanese text runs near 1.5.
	CharsPerToken float64 `yaml:"chars_per_token"`

	// Shares split the context budget across persona, conversation and feedback.
	Shares Shares `yaml:"shares"`

	// FeedbackPerSide caps positive and negative examples independently.
	FeedbackPerSide int `yaml:"feedback_per_side"`
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg ContextConfig) WithDefaults() ContextConfig {
	if cfg.ReservedForReply == 0 {
		cfg.ReservedForReply = 800
	}
	if cfg.CharsPerToken == 0 {
		cfg.CharsPerToken = 2.0
	}
	if cfg.Shares == (Shares{}) {
		cfg.Shares = DefaultShares
	}
	if cfg.FeedbackPerSide == 0 {
		cfg.FeedbackPerSide = 5
	}
	return cfg
}
