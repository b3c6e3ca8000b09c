// Package source defines the chat-source boundary: an untrusted,
// possibly-slow upstream that hands out chats, folders and message history.
package source

import (
	"context"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// Cursor marks a resumable position inside a chat's history. The zero value
// starts from the newest message. Callers hold the cursor, so an interrupted
// export can restart from where it stopped.
type Cursor struct {
	OffsetID int64 `json:"offset_id"`
}

// MessagePage is one page of history plus the cursor for the next one.
type MessagePage struct {
	Messages []models.Message
	Next     Cursor
	Done     bool
}

// MessageFilter narrows a history pull.
type MessageFilter struct {
	SkipMedia bool
	StartTime *time.Time
	EndTime   *time.Time
	Types     []models.MessageType
}

// Match reports whether a message passes the filter.
func (f MessageFilter) Match(m *models.Message) bool {
	if f.SkipMedia && m.MediaInfo != nil {
		return false
	}
	if f.StartTime != nil && m.CreatedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && m.CreatedAt.After(*f.EndTime) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if m.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// MessageHandler receives live-pushed messages in watch mode.
type MessageHandler func(ctx context.Context, msg models.Message)

// ChatSource is the remote chat/message source capability.
// Implementations must return ordered pages (newest to oldest) and tolerate
// being asked for the same cursor twice (at-least-once pulls).
type ChatSource interface {
	Connect(ctx context.Context) error
	Disconnect() error

	GetChats(ctx context.Context) ([]models.Chat, error)
	GetFolders(ctx context.Context) ([]models.Folder, error)

	// NextMessages returns up to limit messages at the cursor position.
	// Done is set on the page that exhausts the history.
	NextMessages(ctx context.Context, chatID int64, cursor Cursor, limit int, filter MessageFilter) (*MessagePage, error)

	// OnMessage registers a live-push handler; used by watch mode.
	OnMessage(handler MessageHandler)
}
