package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/source"
)

// Export formats.
const (
	FormatDatabase = "database"
	FormatJSON     = "json"
)

// ExportRequest describes one export run.
type ExportRequest struct {
	ChatID       int64                `json:"chat_id"`
	Format       string               `json:"format,omitempty"`
	MessageTypes []models.MessageType `json:"message_types,omitempty"`
	StartTime    *time.Time           `json:"start_time,omitempty"`
	EndTime      *time.Time           `json:"end_time,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	SkipMedia    bool                 `json:"skip_media,omitempty"`
	// Embed drives the embedding pipeline on each persisted batch.
	Embed bool `json:"embed,omitempty"`
	// OutputPath overrides the default json export file location.
	OutputPath string `json:"output_path,omitempty"`
}

func (r ExportRequest) validate() error {
	switch r.Format {
	case "", FormatDatabase, FormatJSON:
	default:
		return apperr.Newf(apperr.KindValidation, "unknown export format %q", r.Format)
	}
	if r.Limit < 0 {
		return apperr.New(apperr.KindValidation, "limit must not be negative")
	}
	if r.StartTime != nil && r.EndTime != nil && r.EndTime.Before(*r.StartTime) {
		return apperr.New(apperr.KindValidation, "end time before start time")
	}
	for _, t := range r.MessageTypes {
		if !models.ValidMessageType(t) {
			return apperr.Newf(apperr.KindValidation, "unknown message type %q", t)
		}
	}
	return nil
}

func (r ExportRequest) filter() source.MessageFilter {
	return source.MessageFilter{
		SkipMedia: r.SkipMedia,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Types:     r.MessageTypes,
	}
}

// StartExport begins an export run and returns the created command plus its
// progress stream. The stream is closed after the terminal event. A second
// start while any run is active is rejected with a concurrency error and the
// running command is left untouched.
func (m *Manager) StartExport(req ExportRequest) (Command, <-chan Event, error) {
	if err := req.validate(); err != nil {
		return Command{}, nil, err
	}

	cmd, err := m.acquire(TypeExport, req.ChatID)
	if err != nil {
		return Command{}, nil, err
	}

	ch := make(chan Event, eventBufferSize)

	// The run must survive the initiating HTTP request, so it gets its own
	// context derived from Background rather than the request context.
	go m.runExport(context.Background(), cmd.ID, req, ch)

	return cmd, ch, nil
}

func (m *Manager) runExport(ctx context.Context, id uuid.UUID, req ExportRequest, ch chan Event) {
	defer m.release(id)
	defer close(ch)

	m.emit(ch, Event{Type: EventInfo, Message: fmt.Sprintf("starting export for chat %d", req.ChatID)})

	chat, err := m.chats.Get(ctx, req.ChatID)
	if err != nil {
		m.fail(id, ch, err)
		return
	}

	total := req.Limit
	if total <= 0 {
		total = int(chat.MessageCount)
	}
	totalBatches := 0
	if total > 0 {
		totalBatches = (total + m.batchSize - 1) / m.batchSize
	}

	start := time.Now()
	m.registry.Update(id, func(c *Command) {
		c.Message = fmt.Sprintf("exporting %q", chat.Title)
		c.Details.TotalMessages = total
		c.Details.TotalBatches = totalBatches
		c.Details.StartTime = start
	})
	m.emit(ch, Event{Type: EventInit, Command: m.snapshot(id)})

	format := req.Format
	if format == "" {
		format = FormatDatabase
	}

	if format == FormatDatabase {
		if err := m.store.EnsurePartition(ctx, req.ChatID); err != nil {
			m.fail(id, ch, err)
			return
		}
	}

	var exported []models.Message
	filter := req.filter()
	cursor := source.Cursor{}
	processed, failed := 0, 0

	for batch := 1; ; batch++ {
		limit := m.batchSize
		if total > 0 {
			if remaining := total - processed - failed; remaining < limit {
				limit = remaining
			}
		}
		if limit <= 0 {
			break
		}

		page, err := m.src.NextMessages(ctx, req.ChatID, cursor, limit, filter)
		if err != nil {
			// a dead source fails the whole run
			m.fail(id, ch, err)
			return
		}
		cursor = page.Next

		if len(page.Messages) > 0 {
			switch format {
			case FormatJSON:
				exported = append(exported, page.Messages...)
				processed += len(page.Messages)
			default:
				if _, err := m.store.Upsert(ctx, req.ChatID, page.Messages); err != nil {
					// batch-level failure is counted, not fatal; no retry
					m.log.Error().Err(err).Int("batch", batch).Msg("export: batch persist failed")
					failed += len(page.Messages)
				} else {
					processed += len(page.Messages)
					if m.embedder != nil && req.Embed {
						failed += m.embedder.EmbedMessages(ctx, req.ChatID, page.Messages)
					}
				}
			}
		}

		speed, eta := speedAndETA(processed, total, start)
		m.registry.Update(id, func(c *Command) {
			c.Details.Processed = processed
			c.Details.Failed = failed
			c.Details.CurrentBatch = batch
			c.Details.Speed = speed
			c.Details.ETASeconds = eta
			if total > 0 {
				if p := (processed + failed) * 100 / total; p < 100 {
					c.Progress = p
				} else {
					c.Progress = 99
				}
			}
			c.Message = fmt.Sprintf("processed %d messages", processed)
		})
		m.emit(ch, Event{Type: EventUpdate, Command: m.snapshot(id)})

		if page.Done || (total > 0 && processed+failed >= total) {
			break
		}
	}

	switch format {
	case FormatJSON:
		path, err := m.writeJSONExport(req, exported)
		if err != nil {
			m.fail(id, ch, err)
			return
		}
		m.succeed(id, ch, fmt.Sprintf("exported %d messages to %s", processed, path))
	default:
		if _, err := m.store.RefreshStats(ctx, req.ChatID); err != nil {
			m.log.Warn().Err(err).Int64("chat_id", req.ChatID).Msg("export: stats refresh failed")
		}
		now := time.Now()
		chat.LastSyncTime = &now
		if err := m.chats.Upsert(ctx, chat); err != nil {
			m.log.Warn().Err(err).Int64("chat_id", req.ChatID).Msg("export: last sync update failed")
		}
		m.succeed(id, ch, fmt.Sprintf("exported %d messages (%d failed)", processed, failed))
	}
}

// jsonExportFile is the on-disk layout of a json export.
type jsonExportFile struct {
	ChatID     int64            `json:"chat_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Count      int              `json:"count"`
	Messages   []models.Message `json:"messages"`
}

func (m *Manager) writeJSONExport(req ExportRequest, messages []models.Message) (string, error) {
	path := req.OutputPath
	if path == "" {
		path = filepath.Join("exports", fmt.Sprintf("chat_%d_%d.json", req.ChatID, time.Now().Unix()))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", apperr.Wrap(apperr.KindPersistence, "create export directory", err)
		}
	}

	file := jsonExportFile{
		ChatID:     req.ChatID,
		ExportedAt: time.Now(),
		Count:      len(messages),
		Messages:   messages,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", apperr.Wrap(apperr.KindPersistence, "encode export", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", apperr.Wrap(apperr.KindPersistence, "write export file", err)
	}
	return path, nil
}
