package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/publisher"
)

// StartWatch registers the live-message handler and returns the long-lived
// watch command. Watch runs outside the single-run guard: it only reacts to
// pushed messages and never paginates history, so it can coexist with an
// export. Calling StartWatch again returns the existing command.
func (m *Manager) StartWatch() Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchID != (uuid.UUID{}) {
		cmd, _ := m.registry.Get(m.watchID)
		return cmd
	}

	cmd := m.registry.Create(TypeWatch, 0)
	m.watchID = cmd.ID
	m.registry.Update(cmd.ID, func(c *Command) {
		c.Message = "watching for live messages"
	})

	m.src.OnMessage(m.handleLiveMessage)

	snapshot, _ := m.registry.Get(cmd.ID)
	return snapshot
}

func (m *Manager) handleLiveMessage(ctx context.Context, msg models.Message) {
	m.mu.Lock()
	id := m.watchID
	m.mu.Unlock()
	if id == (uuid.UUID{}) {
		return
	}

	if err := m.store.EnsurePartition(ctx, msg.ChatID); err != nil {
		m.log.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("watch: ensure partition failed")
		m.registry.Update(id, func(c *Command) { c.Details.Failed++ })
		return
	}
	if _, err := m.store.Upsert(ctx, msg.ChatID, []models.Message{msg}); err != nil {
		m.log.Error().Err(err).Int64("chat_id", msg.ChatID).Int64("message_id", msg.ID).Msg("watch: persist failed")
		m.registry.Update(id, func(c *Command) { c.Details.Failed++ })
		return
	}

	m.registry.Update(id, func(c *Command) {
		c.Details.Processed++
	})

	if m.publisher != nil {
		event := publisher.MessageNewEvent{
			ChatID:     msg.ChatID,
			MessageID:  msg.ID,
			Type:       msg.Type,
			Content:    msg.Text(),
			CreatedAt:  msg.CreatedAt,
			ArchivedAt: time.Now(),
		}
		if err := m.publisher.PublishMessageNew(ctx, event); err != nil {
			// event delivery is best effort, the message is already archived
			m.log.Warn().Err(err).Int64("chat_id", msg.ChatID).Msg("watch: publish failed")
		}
	}
}
