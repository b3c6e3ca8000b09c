package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/apperr"
)

// ImportRequest describes one import run replaying a json export file.
type ImportRequest struct {
	ChatID   int64  `json:"chat_id"`
	FilePath string `json:"file_path"`
}

// StartImport begins an import run reading a previously exported json file
// back through the store's idempotent upsert path.
func (m *Manager) StartImport(req ImportRequest) (Command, <-chan Event, error) {
	if req.FilePath == "" {
		return Command{}, nil, apperr.New(apperr.KindValidation, "file path is required")
	}

	cmd, err := m.acquire(TypeImport, req.ChatID)
	if err != nil {
		return Command{}, nil, err
	}

	ch := make(chan Event, eventBufferSize)
	go m.runImport(context.Background(), cmd.ID, req, ch)

	return cmd, ch, nil
}

func (m *Manager) runImport(ctx context.Context, id uuid.UUID, req ImportRequest, ch chan Event) {
	defer m.release(id)
	defer close(ch)

	m.emit(ch, Event{Type: EventInfo, Message: fmt.Sprintf("importing %s", req.FilePath)})

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		m.fail(id, ch, apperr.Wrap(apperr.KindValidation, "read import file", err))
		return
	}

	var file jsonExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		m.fail(id, ch, apperr.Wrap(apperr.KindValidation, "parse import file", err))
		return
	}

	chatID := req.ChatID
	if chatID == 0 {
		chatID = file.ChatID
	}
	if chatID == 0 {
		m.fail(id, ch, apperr.New(apperr.KindValidation, "import file carries no chat id"))
		return
	}

	total := len(file.Messages)
	totalBatches := (total + m.batchSize - 1) / m.batchSize
	start := time.Now()
	m.registry.Update(id, func(c *Command) {
		c.ChatID = chatID
		c.Message = fmt.Sprintf("importing %d messages", total)
		c.Details.TotalMessages = total
		c.Details.TotalBatches = totalBatches
		c.Details.StartTime = start
	})
	m.emit(ch, Event{Type: EventInit, Command: m.snapshot(id)})

	if err := m.store.EnsurePartition(ctx, chatID); err != nil {
		m.fail(id, ch, err)
		return
	}

	processed, failed := 0, 0
	for batch := 1; (batch-1)*m.batchSize < total; batch++ {
		lo := (batch - 1) * m.batchSize
		hi := lo + m.batchSize
		if hi > total {
			hi = total
		}
		chunk := file.Messages[lo:hi]
		for i := range chunk {
			chunk[i].ChatID = chatID
		}

		if _, err := m.store.Upsert(ctx, chatID, chunk); err != nil {
			m.log.Error().Err(err).Int("batch", batch).Msg("import: batch persist failed")
			failed += len(chunk)
		} else {
			processed += len(chunk)
		}

		speed, eta := speedAndETA(processed, total, start)
		m.registry.Update(id, func(c *Command) {
			c.Details.Processed = processed
			c.Details.Failed = failed
			c.Details.CurrentBatch = batch
			c.Details.Speed = speed
			c.Details.ETASeconds = eta
			if p := (processed + failed) * 100 / total; p < 100 {
				c.Progress = p
			} else {
				c.Progress = 99
			}
			c.Message = fmt.Sprintf("imported %d messages", processed)
		})
		m.emit(ch, Event{Type: EventUpdate, Command: m.snapshot(id)})
	}

	if _, err := m.store.RefreshStats(ctx, chatID); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("import: stats refresh failed")
	}

	m.succeed(id, ch, fmt.Sprintf("imported %d messages (%d failed)", processed, failed))
}
