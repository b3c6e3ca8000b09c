package store

import (
	"fmt"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// testMessages builds n plain text messages for a chat, ids starting at 1.
func testMessages(chatID int64, n int) []models.Message {
	msgs := make([]models.Message, 0, n)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("message %d", i+1)
		msgs = append(msgs, models.Message{
			ID:        int64(i + 1),
			ChatID:    chatID,
			Type:      models.MessageTypeText,
			Content:   &content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return msgs
}
