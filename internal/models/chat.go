package models

import (
	"time"
)

// ChatType classifies a chat by its source kind.
type ChatType string

// ChatType constants define the possible kinds of chats.
const (
	ChatTypeUser    ChatType = "user"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
	ChatTypeSaved   ChatType = "saved"
)

// AllChatsFolderID is the implicit folder holding every chat.
const AllChatsFolderID int64 = 0

// Chat is a registry row for one archived conversation.
// MessageCount, LastMessage and LastMessageDate are caches derived from the
// chat's partition stats and are only written by a stats refresh.
type Chat struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Type            ChatType   `json:"type" gorm:"type:text;not null;default:'user'"`
	Title           string     `json:"title" gorm:"not null"`
	Username        *string    `json:"username,omitempty"`
	FolderID        int64      `json:"folder_id" gorm:"not null;default:0;index"`
	LastMessage     *string    `json:"last_message,omitempty"`
	LastMessageDate *time.Time `json:"last_message_date,omitempty"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	MessageCount    int64      `json:"message_count" gorm:"not null;default:0"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName pins the GORM table name.
func (Chat) TableName() string { return "chats" }

// Folder groups chats; folder 0 is the implicit "all chats" bucket.
type Folder struct {
	ID    int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Title string `json:"title" gorm:"not null"`
	Emoji string `json:"emoji"`
}

// TableName pins the GORM table name.
func (Folder) TableName() string { return "folders" }

// ChatStats is the derived per-chat aggregate read from the partition's
// materialized view.
type ChatStats struct {
	ChatID          int64      `json:"chat_id"`
	MessageCount    int64      `json:"message_count"`
	TextCount       int64      `json:"text_count"`
	PhotoCount      int64      `json:"photo_count"`
	VideoCount      int64      `json:"video_count"`
	DocumentCount   int64      `json:"document_count"`
	StickerCount    int64      `json:"sticker_count"`
	OtherCount      int64      `json:"other_count"`
	LastMessage     *string    `json:"last_message,omitempty"`
	LastMessageDate *time.Time `json:"last_message_date,omitempty"`
}
