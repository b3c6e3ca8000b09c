package source

import (
	"context"
	"sync"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
)

// Fake is an in-memory ChatSource for tests and offline development.
type Fake struct {
	mu       sync.Mutex
	chats    []models.Chat
	folders  []models.Folder
	messages map[int64][]models.Message // newest first
	handlers []MessageHandler

	// FailNextPage makes the next NextMessages call fail once.
	FailNextPage bool
}

// NewFake creates an empty fake source.
func NewFake() *Fake {
	return &Fake{messages: make(map[int64][]models.Message)}
}

// AddChat registers a chat and its history (newest first).
func (f *Fake) AddChat(chat models.Chat, history []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chat)
	f.messages[chat.ID] = history
}

// SetFolders replaces the folder list.
func (f *Fake) SetFolders(folders []models.Folder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = folders
}

// Connect is a no-op.
func (f *Fake) Connect(context.Context) error { return nil }

// Disconnect is a no-op.
func (f *Fake) Disconnect() error { return nil }

// GetChats returns the registered chats.
func (f *Fake) GetChats(context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Chat, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

// GetFolders returns the registered folders.
func (f *Fake) GetFolders(context.Context) ([]models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Folder, len(f.folders))
	copy(out, f.folders)
	return out, nil
}

// NextMessages pages through the chat's history using the message id as the
// cursor, mirroring how offset-id pagination behaves upstream.
func (f *Fake) NextMessages(_ context.Context, chatID int64, cursor Cursor, limit int, filter MessageFilter) (*MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNextPage {
		f.FailNextPage = false
		return nil, apperr.New(apperr.KindSource, "fake source failure")
	}

	history, ok := f.messages[chatID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "chat %d unknown to source", chatID)
	}

	start := 0
	if cursor.OffsetID != 0 {
		for i, m := range history {
			if m.ID < cursor.OffsetID {
				start = i
				break
			}
			start = len(history)
		}
	}

	end := start + limit
	if limit <= 0 || end > len(history) {
		end = len(history)
	}

	page := &MessagePage{}
	for _, m := range history[start:end] {
		if filter.Match(&m) {
			page.Messages = append(page.Messages, m)
		}
	}
	if end > start && end <= len(history) {
		page.Next = Cursor{OffsetID: history[end-1].ID}
	}
	page.Done = end >= len(history)
	return page, nil
}

// OnMessage registers a live handler.
func (f *Fake) OnMessage(handler MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Push delivers a live message to all registered handlers.
func (f *Fake) Push(ctx context.Context, msg models.Message) {
	f.mu.Lock()
	handlers := make([]MessageHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		h(ctx, msg)
	}
}
