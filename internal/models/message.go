package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// MessageType classifies message content.
type MessageType string

// MessageType constants define the possible content types.
const (
	MessageTypeText     MessageType = "text"
	MessageTypePhoto    MessageType = "photo"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeOther    MessageType = "other"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypePhoto, MessageTypeVideo,
		MessageTypeDocument, MessageTypeSticker, MessageTypeOther:
		return true
	}
	return false
}

// MediaInfo describes an attached media object.
type MediaInfo struct {
	Type     string `json:"type"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Message is one archived message inside a chat partition.
// Identity is (ChatID, ID); UUID is the internal surrogate key that survives
// external id reassignment. Embedding stays nil until the embedding pipeline
// fills it in.
type Message struct {
	UUID                 uuid.UUID        `json:"uuid"`
	ID                   int64            `json:"id"`
	ChatID               int64            `json:"chat_id"`
	Type                 MessageType      `json:"type"`
	Content              *string          `json:"content,omitempty"`
	Embedding            *pgvector.Vector `json:"-"`
	MediaInfo            *MediaInfo       `json:"media_info,omitempty"`
	FromID               *int64           `json:"from_id,omitempty"`
	FromName             *string          `json:"from_name,omitempty"`
	ReplyToID            *int64           `json:"reply_to_id,omitempty"`
	ForwardFromChatID    *int64           `json:"forward_from_chat_id,omitempty"`
	ForwardFromChatName  *string          `json:"forward_from_chat_name,omitempty"`
	ForwardFromMessageID *int64           `json:"forward_from_message_id,omitempty"`
	Views                *int             `json:"views,omitempty"`
	Forwards             *int             `json:"forwards,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Text returns the message content or an empty string.
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SearchResult is one ranked hit from text or vector search.
type SearchResult struct {
	Message
	// Similarity is 1 - cosine distance for vector hits, ts_rank for text hits.
	Similarity float64 `json:"similarity"`
}
