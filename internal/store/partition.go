// Package store owns chat partitions, message persistence and hybrid search.
package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/logger"
)

// Store persists messages into per-chat partition tables and serves
// text and vector search over them.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	log       *logger.Logger
}

// New creates a message store. dimension is the embedding vector size
// enforced for every partition.
func New(pool *pgxpool.Pool, dimension int) *Store {
	return &Store{
		pool:      pool,
		dimension: dimension,
		log:       logger.Get(),
	}
}

// Dimension returns the configured embedding dimension.
func (s *Store) Dimension() int {
	return s.dimension
}

// PartitionName derives the partition table name for a chat id.
// The id is the only input and the sign is encoded as a fixed "n" prefix,
// so the result can never contain caller-controlled identifier text.
func PartitionName(chatID int64) string {
	abs := uint64(chatID)
	prefix := "messages_"
	if chatID < 0 {
		// two's-complement safe absolute value, valid for MinInt64 too
		abs = uint64(-(chatID + 1)) + 1
		prefix = "messages_n"
	}
	return prefix + strconv.FormatUint(abs, 10)
}

// statsViewName derives the materialized view name holding the partition's
// per-type aggregate.
func statsViewName(chatID int64) string {
	return "message_stats_" + PartitionName(chatID)
}

// EnsurePartition creates the partition table, its indexes and the stats
// aggregate for a chat if they do not exist yet. Safe to call repeatedly and
// from concurrent writers; every statement relies on the database's own
// IF NOT EXISTS atomicity.
func (s *Store) EnsurePartition(ctx context.Context, chatID int64) error {
	table := PartitionName(chatID)
	view := statsViewName(chatID)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			uuid UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			content TEXT,
			embedding vector(%d),
			ts_content TSVECTOR NOT NULL GENERATED ALWAYS AS (to_tsvector('chat_search', coalesce(content, ''))) STORED,
			media_info JSONB,
			from_id BIGINT,
			from_name TEXT,
			reply_to_id BIGINT,
			forward_from_chat_id BIGINT,
			forward_from_chat_name TEXT,
			forward_from_message_id BIGINT,
			views INTEGER,
			forwards INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, s.dimension),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_chat_id_id_idx ON %s (chat_id, id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ts_content_idx ON %s USING GIN (ts_content)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at DESC)`, table, table),
		fmt.Sprintf(`CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS
			SELECT
				chat_id,
				COUNT(*) AS message_count,
				COUNT(*) FILTER (WHERE type = 'text') AS text_count,
				COUNT(*) FILTER (WHERE type = 'photo') AS photo_count,
				COUNT(*) FILTER (WHERE type = 'video') AS video_count,
				COUNT(*) FILTER (WHERE type = 'document') AS document_count,
				COUNT(*) FILTER (WHERE type = 'sticker') AS sticker_count,
				COUNT(*) FILTER (WHERE type = 'other') AS other_count,
				MAX(created_at) AS last_message_date,
				(array_agg(content ORDER BY created_at DESC))[1] AS last_message
			FROM %s
			GROUP BY chat_id`, view, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_chat_id_idx ON %s (chat_id)`, view, view),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("ensure partition %s", table), err)
		}
	}

	s.log.Debug().Int64("chat_id", chatID).Str("table", table).Msg("store: partition ensured")
	return nil
}
