package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StartSync begins a metadata sync run: folders and chats are pulled from the
// source, routed through the folder rules, and upserted into the registry.
func (m *Manager) StartSync() (Command, <-chan Event, error) {
	cmd, err := m.acquire(TypeSync, 0)
	if err != nil {
		return Command{}, nil, err
	}

	ch := make(chan Event, eventBufferSize)
	go m.runSync(context.Background(), cmd.ID, ch)

	return cmd, ch, nil
}

func (m *Manager) runSync(ctx context.Context, id uuid.UUID, ch chan Event) {
	defer m.release(id)
	defer close(ch)

	m.emit(ch, Event{Type: EventInfo, Message: "starting metadata sync"})

	folderList, err := m.src.GetFolders(ctx)
	if err != nil {
		m.fail(id, ch, err)
		return
	}
	if err := m.chats.UpsertFolders(ctx, folderList); err != nil {
		m.fail(id, ch, err)
		return
	}

	chatList, err := m.src.GetChats(ctx)
	if err != nil {
		m.fail(id, ch, err)
		return
	}

	m.registry.Update(id, func(c *Command) {
		c.Message = fmt.Sprintf("syncing %d chats, %d folders", len(chatList), len(folderList))
		c.Details.TotalMessages = len(chatList)
	})
	m.emit(ch, Event{Type: EventInit, Command: m.snapshot(id)})

	processed, failed := 0, 0
	for i := range chatList {
		chat := chatList[i]
		chat.FolderID = m.router.Route(chat)

		if err := m.chats.Upsert(ctx, &chat); err != nil {
			m.log.Error().Err(err).Int64("chat_id", chat.ID).Msg("sync: chat upsert failed")
			failed++
		} else {
			processed++
		}

		m.registry.Update(id, func(c *Command) {
			c.Details.Processed = processed
			c.Details.Failed = failed
			if len(chatList) > 0 {
				if p := (processed + failed) * 100 / len(chatList); p < 100 {
					c.Progress = p
				} else {
					c.Progress = 99
				}
			}
			c.Message = fmt.Sprintf("synced %d of %d chats", processed, len(chatList))
		})
		m.emit(ch, Event{Type: EventUpdate, Command: m.snapshot(id)})
	}

	m.succeed(id, ch, fmt.Sprintf("synced %d chats (%d failed)", processed, failed))
}
