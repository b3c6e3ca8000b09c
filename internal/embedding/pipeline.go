package embedding

import (
	"context"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/store"
)

// VectorWriter is the slice of the store the pipeline writes through.
type VectorWriter interface {
	UpdateEmbeddings(ctx context.Context, chatID int64, updates []store.EmbeddingUpdate) error
}

// Pipeline batches message texts, calls the provider under its token budget
// and writes vectors back in bounded sub-batches. Provider-call batch size is
// governed by token limits; write-back batch size by writeConcurrency, so the
// two backends are throttled independently.
type Pipeline struct {
	provider         Provider
	writer           VectorWriter
	writeConcurrency int
	log              *logger.Logger

	mu    sync.Mutex
	usage Usage
}

// NewPipeline creates an embedding pipeline.
func NewPipeline(provider Provider, writer VectorWriter, writeConcurrency int) *Pipeline {
	if writeConcurrency <= 0 {
		writeConcurrency = 4
	}
	return &Pipeline{
		provider:         provider,
		writer:           writer,
		writeConcurrency: writeConcurrency,
		log:              logger.Get(),
	}
}

// BatchResult holds the vectors for one provider call plus the indexes of
// texts that exceeded the per-text recommendation.
type BatchResult struct {
	Vectors        [][]float32
	TruncationRisk []int
}

// EmbedBatch embeds one batch of texts. The aggregate token count is checked
// against the provider's per-request cap before any network call; a batch over
// the cap fails whole. Texts over the per-text recommendation are recorded as
// truncation risks but still sent.
func (p *Pipeline) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(texts) == 0 {
		return &BatchResult{}, nil
	}

	limits := p.provider.Limits()

	total := 0
	var risky []int
	for i, text := range texts {
		n := p.provider.TokenCount(text)
		total += n
		if limits.MaxTokensPerText > 0 && n > limits.MaxTokensPerText {
			risky = append(risky, i)
		}
	}

	if limits.MaxTokensPerRequest > 0 && total > limits.MaxTokensPerRequest {
		return nil, apperr.Newf(apperr.KindProvider,
			"batch of %d tokens exceeds provider limit of %d", total, limits.MaxTokensPerRequest)
	}

	for _, i := range risky {
		p.log.Warn().
			Int("index", i).
			Int("tokens", p.provider.TokenCount(texts[i])).
			Int("recommended_max", limits.MaxTokensPerText).
			Msg("embedding: text may be truncated by provider")
	}

	vectors, err := p.provider.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.usage.Tokens += total
	p.usage.Cost += float64(total) / 1000 * limits.PricePer1KTokens
	p.mu.Unlock()

	return &BatchResult{Vectors: vectors, TruncationRisk: risky}, nil
}

// ApplyEmbeddings writes vectors back through the store in sub-batches of
// writeConcurrency rows each.
func (p *Pipeline) ApplyEmbeddings(ctx context.Context, chatID int64, updates []store.EmbeddingUpdate) error {
	for start := 0; start < len(updates); start += p.writeConcurrency {
		end := start + p.writeConcurrency
		if end > len(updates) {
			end = len(updates)
		}
		if err := p.writer.UpdateEmbeddings(ctx, chatID, updates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// EmbedMessages vectorizes the text content of messages and persists the
// vectors. Messages without content are skipped. The work is split into
// provider calls packed greedily under the token budget; a failed call fails
// only its own texts and the rest of the batch continues.
// Returns the number of messages whose embedding failed.
func (p *Pipeline) EmbedMessages(ctx context.Context, chatID int64, messages []models.Message) int {
	type item struct {
		id   int64
		text string
	}

	var items []item
	for i := range messages {
		if text := messages[i].Text(); text != "" {
			items = append(items, item{id: messages[i].ID, text: text})
		}
	}
	if len(items) == 0 {
		return 0
	}

	limits := p.provider.Limits()
	failed := 0

	// pack greedily under the per-request cap
	for start := 0; start < len(items); {
		end := start
		tokens := 0
		for end < len(items) {
			n := p.provider.TokenCount(items[end].text)
			if end > start && limits.MaxTokensPerRequest > 0 && tokens+n > limits.MaxTokensPerRequest {
				break
			}
			tokens += n
			end++
		}

		group := items[start:end]
		texts := make([]string, len(group))
		for i, it := range group {
			texts[i] = it.text
		}

		result, err := p.EmbedBatch(ctx, texts)
		if err != nil {
			p.log.Warn().Err(err).
				Int64("chat_id", chatID).
				Int("batch_size", len(group)).
				Msg("embedding: batch failed, continuing")
			failed += len(group)
			start = end
			continue
		}

		updates := make([]store.EmbeddingUpdate, len(group))
		for i, it := range group {
			updates[i] = store.EmbeddingUpdate{ID: it.id, Vector: pgvector.NewVector(result.Vectors[i])}
		}
		if err := p.ApplyEmbeddings(ctx, chatID, updates); err != nil {
			p.log.Warn().Err(err).
				Int64("chat_id", chatID).
				Msg("embedding: write-back failed, continuing")
			failed += len(group)
		}

		start = end
	}

	return failed
}

// Usage returns the cumulative token and cost consumption.
func (p *Pipeline) Usage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}
