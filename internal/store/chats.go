package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
)

// Chats is the registry repository for chats and folders, backed by GORM.
type Chats struct {
	db *gorm.DB
}

// NewChats creates a chat registry repository.
func NewChats(db *gorm.DB) *Chats {
	return &Chats{db: db}
}

// Upsert creates or updates a chat registry row. Derived caches
// (message_count, last_message*) are left untouched on conflict; only the
// stats refresh writes those.
func (c *Chats) Upsert(ctx context.Context, chat *models.Chat) error {
	now := time.Now()
	chat.UpdatedAt = now
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}

	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "title", "username", "folder_id", "last_sync_time", "updated_at",
		}),
	}).Create(chat).Error
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "upsert chat", err)
	}
	return nil
}

// Get returns a chat by id.
func (c *Chats) Get(ctx context.Context, id int64) (*models.Chat, error) {
	var chat models.Chat
	err := c.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "chat %d not registered", id)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "get chat", err)
	}
	return &chat, nil
}

// List returns registry chats ordered by last message date, newest first.
// A non-nil folderID narrows the listing to one folder; folder 0 means all.
func (c *Chats) List(ctx context.Context, folderID *int64) ([]models.Chat, error) {
	q := c.db.WithContext(ctx).Model(&models.Chat{})
	if folderID != nil && *folderID != models.AllChatsFolderID {
		q = q.Where("folder_id = ?", *folderID)
	}

	var chats []models.Chat
	if err := q.Order("last_message_date DESC NULLS LAST").Find(&chats).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list chats", err)
	}
	return chats, nil
}

// UpsertFolders replaces folder metadata from the source.
func (c *Chats) UpsertFolders(ctx context.Context, folders []models.Folder) error {
	if len(folders) == 0 {
		return nil
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "emoji"}),
	}).Create(&folders).Error
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "upsert folders", err)
	}
	return nil
}

// ListFolders returns all known folders.
func (c *Chats) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	if err := c.db.WithContext(ctx).Order("id").Find(&folders).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list folders", err)
	}
	return folders, nil
}
