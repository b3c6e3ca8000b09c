package api

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/chatvault/chatvault/internal/command"
	"github.com/chatvault/chatvault/internal/embedding"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/store"
)

// MessageReader defines the interface for partition reads and search.
type MessageReader interface {
	MessagesByChat(ctx context.Context, chatID int64, page store.Page) ([]models.Message, int64, error)
	TextSearch(ctx context.Context, chatID *int64, query string, page store.Page) ([]models.SearchResult, error)
	VectorSearch(ctx context.Context, chatID *int64, query pgvector.Vector, page store.Page) ([]models.SearchResult, error)
}

// ChatReader defines the interface for chat/folder registry reads.
type ChatReader interface {
	List(ctx context.Context, folderID *int64) ([]models.Chat, error)
	ListFolders(ctx context.Context) ([]models.Folder, error)
}

// CommandService defines the interface for starting and inspecting commands.
type CommandService interface {
	StartExport(req command.ExportRequest) (command.Command, <-chan command.Event, error)
	StartSync() (command.Command, <-chan command.Event, error)
	StartImport(req command.ImportRequest) (command.Command, <-chan command.Event, error)
	Commands() []command.Command
}

// QueryEmbedder defines the interface for embedding search queries.
type QueryEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error)
}
