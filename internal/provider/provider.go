package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g., provider.gemini)
// and also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	// Implementations map upstream failures onto the sentinel errors of
	// this package.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the default model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing. When a provider is in cooldown or
// dead, the client calls HealthCheck periodically to determine if it
// has recovered.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServiceName is the AppContext service key under which provider modules
// register themselves, suffixed with the module ID.
const ServiceName = "provider"
