package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
)

const messageColumns = `uuid, id, chat_id, type, content, embedding, media_info,
	from_id, from_name, reply_to_id,
	forward_from_chat_id, forward_from_chat_name, forward_from_message_id,
	views, forwards, created_at`

// Upsert inserts a batch of messages into the chat's partition.
// Conflicts on (chat_id, id) update in place, but a missing embedding in the
// incoming row never clobbers a previously stored vector. The whole batch
// fails as a single error; there are no silent partial writes.
func (s *Store) Upsert(ctx context.Context, chatID int64, messages []models.Message) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	table := PartitionName(chatID)
	sql := fmt.Sprintf(`INSERT INTO %s (
			id, chat_id, type, content, embedding, media_info,
			from_id, from_name, reply_to_id,
			forward_from_chat_id, forward_from_chat_name, forward_from_message_id,
			views, forwards, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (chat_id, id) DO UPDATE SET
			type = EXCLUDED.type,
			content = EXCLUDED.content,
			embedding = COALESCE(EXCLUDED.embedding, %s.embedding),
			media_info = EXCLUDED.media_info,
			from_id = EXCLUDED.from_id,
			from_name = EXCLUDED.from_name,
			reply_to_id = EXCLUDED.reply_to_id,
			forward_from_chat_id = EXCLUDED.forward_from_chat_id,
			forward_from_chat_name = EXCLUDED.forward_from_chat_name,
			forward_from_message_id = EXCLUDED.forward_from_message_id,
			views = EXCLUDED.views,
			forwards = EXCLUDED.forwards,
			created_at = EXCLUDED.created_at`, table, table)

	batch := &pgx.Batch{}
	for i := range messages {
		m := &messages[i]
		if m.Embedding != nil && len(m.Embedding.Slice()) != s.dimension {
			return 0, apperr.Newf(apperr.KindValidation,
				"embedding dimension %d does not match configured %d", len(m.Embedding.Slice()), s.dimension)
		}
		mediaInfo, err := marshalMediaInfo(m.MediaInfo)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindValidation, "encode media info", err)
		}
		batch.Queue(sql,
			m.ID, chatID, m.Type, m.Content, m.Embedding, mediaInfo,
			m.FromID, m.FromName, m.ReplyToID,
			m.ForwardFromChatID, m.ForwardFromChatName, m.ForwardFromMessageID,
			m.Views, m.Forwards, m.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var affected int64
	for range messages {
		tag, err := results.Exec()
		if err != nil {
			return 0, apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("upsert batch into %s", table), err)
		}
		affected += tag.RowsAffected()
	}

	return affected, nil
}

// EmbeddingUpdate pairs a message id with its computed vector.
type EmbeddingUpdate struct {
	ID     int64
	Vector pgvector.Vector
}

// UpdateEmbeddings writes computed vectors back onto existing partition rows.
func (s *Store) UpdateEmbeddings(ctx context.Context, chatID int64, updates []EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	table := PartitionName(chatID)
	sql := fmt.Sprintf(`UPDATE %s SET embedding = $1 WHERE id = $2 AND chat_id = $3`, table)

	batch := &pgx.Batch{}
	for _, u := range updates {
		if len(u.Vector.Slice()) != s.dimension {
			return apperr.Newf(apperr.KindValidation,
				"embedding dimension %d does not match configured %d", len(u.Vector.Slice()), s.dimension)
		}
		batch.Queue(sql, u.Vector, u.ID, chatID)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range updates {
		if _, err := results.Exec(); err != nil {
			return apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("update embeddings in %s", table), err)
		}
	}

	return nil
}

// Page bounds a listing request.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() (Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return p, apperr.New(apperr.KindValidation, "limit and offset must be non-negative")
	}
	if p.Limit == 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	return p, nil
}

// MessagesByChat lists a chat's messages newest first.
func (s *Store) MessagesByChat(ctx context.Context, chatID int64, page Page) ([]models.Message, int64, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, 0, err
	}

	table := PartitionName(chatID)

	var total int64
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&total)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, 0, apperr.Newf(apperr.KindNotFound, "no messages archived for chat %d", chatID)
		}
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "count messages", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, messageColumns, table), page.Limit, page.Offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindPersistence, "list messages", err)
	}
	defer rows.Close()

	items, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TextSearch ranks a chat's messages by full-text relevance.
// A nil chatID searches every registered chat's partition.
func (s *Store) TextSearch(ctx context.Context, chatID *int64, query string, page Page) ([]models.SearchResult, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, apperr.New(apperr.KindValidation, "search query must not be empty")
	}

	chatIDs, err := s.resolveSearchChats(ctx, chatID)
	if err != nil {
		return nil, err
	}

	// Each partition contributes its top limit+offset hits with no SQL
	// offset; skipping happens only after the global merge, otherwise page
	// boundaries would cut into every chat's ranking independently.
	fetch := page.Limit + page.Offset

	var results []models.SearchResult
	for _, id := range chatIDs {
		table := PartitionName(id)
		rows, err := s.pool.Query(ctx, fmt.Sprintf(`
			SELECT %s, ts_rank(ts_content, plainto_tsquery('chat_search', $1))::float8 AS rank
			FROM %s
			WHERE ts_content @@ plainto_tsquery('chat_search', $1)
			ORDER BY rank DESC
			LIMIT $2
		`, messageColumns, table), query, fetch)
		if err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return nil, apperr.Wrap(apperr.KindPersistence, "text search", err)
		}
		hits, err := scanSearchResults(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hits...)
	}

	sortBySimilarity(results)
	return pageResults(results, page.Offset, page.Limit), nil
}

// VectorSearch ranks a chat's messages by cosine similarity to the query
// embedding. Rows without an embedding never match. The dimension is checked
// up front so a bad query fails before touching storage.
func (s *Store) VectorSearch(ctx context.Context, chatID *int64, query pgvector.Vector, page Page) ([]models.SearchResult, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	if got := len(query.Slice()); got != s.dimension {
		return nil, apperr.Newf(apperr.KindValidation,
			"query embedding dimension %d does not match configured %d", got, s.dimension)
	}

	chatIDs, err := s.resolveSearchChats(ctx, chatID)
	if err != nil {
		return nil, err
	}

	fetch := page.Limit + page.Offset

	var results []models.SearchResult
	for _, id := range chatIDs {
		table := PartitionName(id)
		rows, err := s.pool.Query(ctx, fmt.Sprintf(`
			SELECT %s, (1 - (embedding <=> $1))::float8 AS similarity
			FROM %s
			WHERE embedding IS NOT NULL
			ORDER BY embedding <=> $1
			LIMIT $2
		`, messageColumns, table), query, fetch)
		if err != nil {
			if isUndefinedTable(err) {
				continue
			}
			return nil, apperr.Wrap(apperr.KindPersistence, "vector search", err)
		}
		hits, err := scanSearchResults(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hits...)
	}

	sortBySimilarity(results)
	return pageResults(results, page.Offset, page.Limit), nil
}

// resolveSearchChats expands a nil chat filter into every registered chat id.
func (s *Store) resolveSearchChats(ctx context.Context, chatID *int64) ([]int64, error) {
	if chatID != nil {
		return []int64{*chatID}, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM chats ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list chats for search", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, "scan chat id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	var items []models.Message
	for rows.Next() {
		m, err := scanMessage(rows, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func scanSearchResults(rows pgx.Rows) ([]models.SearchResult, error) {
	defer rows.Close()

	var items []models.SearchResult
	for rows.Next() {
		var similarity float64
		m, err := scanMessage(rows, &similarity)
		if err != nil {
			return nil, err
		}
		items = append(items, models.SearchResult{Message: m, Similarity: similarity})
	}
	return items, rows.Err()
}

// scanMessage reads one message row; when extra is non-nil the trailing
// ranking column is scanned into it.
func scanMessage(rows pgx.Rows, extra *float64) (models.Message, error) {
	var m models.Message
	var mediaInfo []byte

	dest := []any{
		&m.UUID, &m.ID, &m.ChatID, &m.Type, &m.Content, &m.Embedding, &mediaInfo,
		&m.FromID, &m.FromName, &m.ReplyToID,
		&m.ForwardFromChatID, &m.ForwardFromChatName, &m.ForwardFromMessageID,
		&m.Views, &m.Forwards, &m.CreatedAt,
	}
	if extra != nil {
		dest = append(dest, extra)
	}

	if err := rows.Scan(dest...); err != nil {
		return m, apperr.Wrap(apperr.KindPersistence, "scan message", err)
	}
	if len(mediaInfo) > 0 {
		var info models.MediaInfo
		if err := json.Unmarshal(mediaInfo, &info); err != nil {
			return m, apperr.Wrap(apperr.KindPersistence, "decode media info", err)
		}
		m.MediaInfo = &info
	}
	return m, nil
}

func marshalMediaInfo(info *models.MediaInfo) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	return json.Marshal(info)
}

func sortBySimilarity(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

// pageResults slices one page out of the globally ranked result set.
func pageResults(results []models.SearchResult, offset, limit int) []models.SearchResult {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

// isUndefinedTable matches postgres error 42P01 (relation does not exist),
// which signals a chat whose partition was never created.
func isUndefinedTable(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "42P01"
	}
	return false
}
