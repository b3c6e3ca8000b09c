package api

import (
	"github.com/chatvault/chatvault/internal/command"
	"github.com/chatvault/chatvault/internal/models"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error" description:"Error message"`
	Kind    string `json:"kind,omitempty" description:"Machine-readable error kind"`
	Details string `json:"details,omitempty" description:"Additional error details"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status" example:"ok" description:"Health status"`
	Version string `json:"version" example:"dev" description:"Application version"`
}

// ChatsListResponse contains the chat registry listing.
type ChatsListResponse struct {
	Chats []models.Chat `json:"chats" description:"Chats ordered by last message date"`
	Total int           `json:"total" description:"Number of chats returned"`
}

// FoldersListResponse contains all known folders.
type FoldersListResponse struct {
	Folders []models.Folder `json:"folders" description:"Folders including the implicit folder 0"`
}

// MessagesListResponse contains one page of a chat's history.
type MessagesListResponse struct {
	Messages []models.Message `json:"messages" description:"Messages, newest first"`
	Total    int64            `json:"total" description:"Total messages in the chat"`
	Limit    int              `json:"limit" description:"Page size"`
	Offset   int              `json:"offset" description:"Page offset"`
}

// SearchRequest is the hybrid search query.
type SearchRequest struct {
	Query           string `json:"query" validate:"required" description:"Search text"`
	ChatID          *int64 `json:"chat_id,omitempty" description:"Restrict to one chat"`
	FolderID        *int64 `json:"folder_id,omitempty" description:"Restrict to chats in one folder"`
	Limit           int    `json:"limit,omitempty" default:"50" description:"Max results (default 50)"`
	Offset          int    `json:"offset,omitempty" description:"Result offset"`
	UseVectorSearch bool   `json:"use_vector_search,omitempty" description:"Rank by vector similarity instead of text relevance"`
}

// SearchResponse contains ranked search hits.
type SearchResponse struct {
	Results []models.SearchResult `json:"results" description:"Hits ordered by similarity"`
	Total   int                   `json:"total" description:"Number of hits returned"`
	Mode    string                `json:"mode" description:"Ranking mode used: text or vector"`
}

// CommandsListResponse contains snapshots of all commands, used by clients to
// reconcile after a dropped progress stream.
type CommandsListResponse struct {
	Commands []command.Command `json:"commands" description:"Commands in creation order"`
}
