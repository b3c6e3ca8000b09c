package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chatvault/chatvault/internal/apperr"
)

// OllamaProvider generates embeddings through a local Ollama server.
// Ollama exposes no tokenizer, so token counts report zero and the
// pipeline's budget checks are effectively disabled.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates an Ollama embedding provider.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the provider in logs and usage reports.
func (p *OllamaProvider) Name() string { return "ollama" }

// Limits returns an unmetered budget; local inference has no billing.
func (p *OllamaProvider) Limits() Limits {
	return Limits{
		MaxTokensPerRequest: openaiMaxTokensPerRequest,
		MaxTokensPerText:    openaiMaxTokensPerText,
	}
}

// TokenCount always reports zero; see the type comment.
func (p *OllamaProvider) TokenCount(string) int { return 0 }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// GenerateEmbeddings embeds texts one request at a time; the Ollama
// embeddings endpoint takes a single prompt per call.
func (p *OllamaProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (p *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "encode ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "ollama embeddings call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindProvider, "ollama returned status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, "decode ollama response", err)
	}
	if len(out.Embedding) == 0 {
		return nil, apperr.New(apperr.KindProvider, fmt.Sprintf("ollama returned empty embedding for model %s", p.model))
	}
	return out.Embedding, nil
}
