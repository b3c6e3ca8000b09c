// Package embedding generates message vectors through interchangeable
// providers and writes them back through the store.
package embedding

import "context"

// Limits declares a provider's token budget and billing rate.
type Limits struct {
	// MaxTokensPerRequest is a hard cap; a batch over it is rejected
	// before any network call.
	MaxTokensPerRequest int
	// MaxTokensPerText is a soft recommendation; texts over it risk
	// server-side truncation but are still sent.
	MaxTokensPerText int
	// PricePer1KTokens in dollars. Zero for local providers.
	PricePer1KTokens float64
}

// Provider converts texts into fixed-dimension vectors.
// Implementations: OpenAI-compatible HTTP APIs and a local Ollama server.
type Provider interface {
	Name() string
	Limits() Limits
	// TokenCount estimates the token footprint of one text. Providers
	// without a tokenizer may return 0, which disables budget checks.
	TokenCount(text string) int
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Usage is the cumulative token/cost consumption of a pipeline.
type Usage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}
