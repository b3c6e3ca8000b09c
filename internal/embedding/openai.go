package embedding

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chatvault/chatvault/internal/apperr"
)

// text-embedding-3-small limits and pricing.
const (
	openaiMaxTokensPerRequest = 8191
	openaiMaxTokensPerText    = 4000
	openaiPricePer1KTokens    = 0.00002
)

// OpenAIProvider generates embeddings through an OpenAI-compatible API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	encoder *tiktoken.Tiktoken
}

// OpenAIConfig holds the configuration for the OpenAI provider.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	encoder, err := tiktoken.EncodingForModel(cfg.Model)
	if err != nil {
		// unknown models fall back to the cl100k vocabulary
		encoder, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		encoder: encoder,
	}, nil
}

// Name identifies the provider in logs and usage reports.
func (p *OpenAIProvider) Name() string { return "openai" }

// Limits returns the token budget for text-embedding-3 models.
func (p *OpenAIProvider) Limits() Limits {
	return Limits{
		MaxTokensPerRequest: openaiMaxTokensPerRequest,
		MaxTokensPerText:    openaiMaxTokensPerText,
		PricePer1KTokens:    openaiPricePer1KTokens,
	}
}

// TokenCount returns the tiktoken footprint of one text.
func (p *OpenAIProvider) TokenCount(text string) int {
	return len(p.encoder.Encode(text, nil, nil))
}

// GenerateEmbeddings embeds a batch of texts in one API call.
func (p *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "openai embeddings call", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindProvider,
			"openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, apperr.Newf(apperr.KindProvider, "openai returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
