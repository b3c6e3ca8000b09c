// Package api provides HTTP handlers for the archive API.
package api

import (
	"context"
	"strconv"

	"github.com/go-fuego/fuego"
	"github.com/pgvector/pgvector-go"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/store"
)

func (s *Server) healthCheck(c fuego.ContextNoBody) (HealthResponse, error) {
	return HealthResponse{
		Status:  "ok",
		Version: "dev",
	}, nil
}

func (s *Server) listChats(c fuego.ContextNoBody) (ChatsListResponse, error) {
	var folderID *int64
	if raw := c.QueryParam("folder_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ChatsListResponse{}, fuego.BadRequestError{Detail: "Invalid folder id"}
		}
		folderID = &id
	}

	chats, err := s.deps.Chats.List(c.Context(), folderID)
	if err != nil {
		return ChatsListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}

	return ChatsListResponse{Chats: chats, Total: len(chats)}, nil
}

func (s *Server) listFolders(c fuego.ContextNoBody) (FoldersListResponse, error) {
	folders, err := s.deps.Chats.ListFolders(c.Context())
	if err != nil {
		return FoldersListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return FoldersListResponse{Folders: folders}, nil
}

func (s *Server) listMessages(c fuego.ContextNoBody) (MessagesListResponse, error) {
	chatID, err := strconv.ParseInt(c.PathParam("id"), 10, 64)
	if err != nil {
		return MessagesListResponse{}, fuego.BadRequestError{Detail: "Invalid chat id"}
	}

	page := store.Page{
		Limit:  parseIntWithDefault(c.QueryParam("limit"), 50),
		Offset: parseIntWithDefault(c.QueryParam("offset"), 0),
	}

	messages, total, err := s.deps.Messages.MessagesByChat(c.Context(), chatID, page)
	if err != nil {
		return MessagesListResponse{}, mapError(err)
	}

	return MessagesListResponse{
		Messages: messages,
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}, nil
}

func (s *Server) listCommands(c fuego.ContextNoBody) (CommandsListResponse, error) {
	return CommandsListResponse{Commands: s.deps.Commands.Commands()}, nil
}

func (s *Server) search(c fuego.ContextWithBody[SearchRequest]) (SearchResponse, error) {
	req, err := c.Body()
	if err != nil {
		return SearchResponse{}, fuego.BadRequestError{Detail: err.Error()}
	}
	if req.Query == "" {
		return SearchResponse{}, fuego.BadRequestError{Detail: "Query is required"}
	}

	page := store.Page{Limit: req.Limit, Offset: req.Offset}

	var (
		results []models.SearchResult
		mode    = "text"
	)
	if req.UseVectorSearch && s.deps.Embedder != nil {
		batch, err := s.deps.Embedder.EmbedBatch(c.Context(), []string{req.Query})
		if err != nil {
			return SearchResponse{}, mapError(err)
		}
		if len(batch.Vectors) != 1 {
			return SearchResponse{}, fuego.InternalServerError{Detail: "Query embedding missing"}
		}
		results, err = s.deps.Messages.VectorSearch(c.Context(), req.ChatID, pgvector.NewVector(batch.Vectors[0]), page)
		if err != nil {
			return SearchResponse{}, mapError(err)
		}
		mode = "vector"
	} else {
		results, err = s.deps.Messages.TextSearch(c.Context(), req.ChatID, req.Query, page)
		if err != nil {
			return SearchResponse{}, mapError(err)
		}
	}

	if req.FolderID != nil && req.ChatID == nil {
		results, err = s.filterByFolder(c.Context(), results, *req.FolderID)
		if err != nil {
			return SearchResponse{}, mapError(err)
		}
	}

	return SearchResponse{Results: results, Total: len(results), Mode: mode}, nil
}

// filterByFolder keeps hits whose chat belongs to the folder.
func (s *Server) filterByFolder(ctx context.Context, results []models.SearchResult, folderID int64) ([]models.SearchResult, error) {
	chats, err := s.deps.Chats.List(ctx, &folderID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]bool, len(chats))
	for _, chat := range chats {
		allowed[chat.ID] = true
	}

	filtered := results[:0]
	for _, hit := range results {
		if allowed[hit.ChatID] {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// mapError translates taxonomy kinds into fuego HTTP errors.
func mapError(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return fuego.NotFoundError{Detail: err.Error()}
	case apperr.KindValidation:
		return fuego.BadRequestError{Detail: err.Error()}
	case apperr.KindConcurrency:
		return fuego.ConflictError{Detail: err.Error()}
	default:
		return fuego.InternalServerError{Detail: err.Error()}
	}
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
