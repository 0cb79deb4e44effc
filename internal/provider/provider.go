// Package provider is the model invocation layer: a uniform call surface for
// a remote generative-content provider, with tier-based model selection,
// bounded retries, and structured-output validation.
package provider

import (
	"context"
)

// Tier classifies a task for model selection. Fast maps to a cheaper model
// for quick scaffolding and query answering; Quality maps to the most capable
// model and is the default for content generation and agent steps.
type Tier int

const (
	TierQuality Tier = iota
	TierFast
)

// String returns the tier name.
func (t Tier) String() string {
	if t == TierFast {
		return "fast"
	}
	return "quality"
}

// ModelCatalog is the static tier -> model lookup table, injected at
// construction time from configuration.
type ModelCatalog struct {
	Fast    string
	Quality string
}

// Resolve returns the model name for the given tier.
func (c ModelCatalog) Resolve(tier Tier) string {
	if tier == TierFast {
		return c.Fast
	}
	return c.Quality
}

// Request describes one generation call.
type Request struct {
	Tier   Tier
	System string  // Optional system instruction
	Prompt string
	Schema *Schema // Optional structured-output schema
}

// Response is the provider's reply.
type Response struct {
	Text string
}

// Provider is the abstract model capability. Implementations may return
// *RateLimitedError, *ProviderError, or text that later fails schema
// validation.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Generate implements Provider.
func (f Func) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
