package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
)

// RefreshStats recomputes the partition's materialized aggregate and writes
// the derived counters back onto the chat registry row. This is the only
// writer of messageCount/lastMessage* caches.
func (s *Store) RefreshStats(ctx context.Context, chatID int64) (*models.ChatStats, error) {
	view := statsViewName(chatID)

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`REFRESH MATERIALIZED VIEW %s`, view)); err != nil {
		if isUndefinedTable(err) {
			return nil, apperr.Newf(apperr.KindNotFound, "no partition for chat %d", chatID)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "refresh stats view", err)
	}

	stats := &models.ChatStats{ChatID: chatID}
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT message_count, text_count, photo_count, video_count,
		       document_count, sticker_count, other_count,
		       last_message_date, last_message
		FROM %s
		WHERE chat_id = $1
	`, view), chatID).Scan(
		&stats.MessageCount, &stats.TextCount, &stats.PhotoCount, &stats.VideoCount,
		&stats.DocumentCount, &stats.StickerCount, &stats.OtherCount,
		&stats.LastMessageDate, &stats.LastMessage,
	)
	if err != nil {
		if isNoRows(err) {
			// empty partition: aggregate has no row yet, caches stay zeroed
			return stats, s.writeChatCaches(ctx, stats)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "read stats view", err)
	}

	if err := s.writeChatCaches(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) writeChatCaches(ctx context.Context, stats *models.ChatStats) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chats
		SET message_count = $2,
		    last_message = $3,
		    last_message_date = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, stats.ChatID, stats.MessageCount, stats.LastMessage, stats.LastMessageDate)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "write chat caches", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
