// Package api exposes the archive over HTTP: typed read endpoints plus the
// streaming command endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-fuego/fuego"
	"github.com/go-fuego/fuego/option"
)

// Server represents the Fuego API server.
type Server struct {
	fuego *fuego.Server
	deps  *Dependencies
	port  int
}

// Dependencies contains all service dependencies. Embedder may be nil when no
// provider is configured; vector search then falls back to text search.
type Dependencies struct {
	Messages MessageReader
	Chats    ChatReader
	Commands CommandService
	Embedder QueryEmbedder
}

// Config holds API server configuration.
type Config struct {
	Port        int
	Title       string
	Description string
	Version     string
}

// NewServer creates a new Fuego API server.
func NewServer(cfg *Config, deps *Dependencies) *Server {
	s := fuego.NewServer(
		fuego.WithAddr(fmt.Sprintf(":%d", cfg.Port)),
		fuego.WithEngineOptions(
			fuego.WithOpenAPIConfig(fuego.OpenAPIConfig{
				PrettyFormatJSON: true,
				JSONFilePath:     "openapi.json",
				SwaggerURL:       "/docs",
				SpecURL:          "/openapi.json",
				UIHandler: func(specURL string) http.Handler {
					return ScalarHandler(specURL, cfg.Title, cfg.Description)
				},
			}),
		),
	)

	s.OpenAPI.Description().Info.Title = cfg.Title
	s.OpenAPI.Description().Info.Description = cfg.Description
	s.OpenAPI.Description().Info.Version = cfg.Version

	// chi middleware, fuego is net/http compatible
	fuego.Use(s, middleware.RequestID)
	fuego.Use(s, middleware.RealIP)
	fuego.Use(s, middleware.Logger)
	fuego.Use(s, middleware.Recoverer)
	fuego.Use(s, cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	srv := &Server{
		fuego: s,
		deps:  deps,
		port:  cfg.Port,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) registerRoutes() {
	fuego.Get(s.fuego, "/health", s.healthCheck,
		option.Summary("Health Check"),
		option.Description("Returns the health status of the API"),
		option.Tags("System"),
	)

	chatsGroup := fuego.Group(s.fuego, "/chats",
		option.Tags("Chats"),
	)

	fuego.Get(chatsGroup, "/", s.listChats,
		option.Summary("List Chats"),
		option.Description("Returns registry chats ordered by last message date"),
		option.Query("folder_id", "Filter by folder id"),
	)

	fuego.Get(chatsGroup, "/{id}/messages", s.listMessages,
		option.Summary("List Messages"),
		option.Description("Returns one page of a chat's archived history, newest first"),
		option.Query("limit", "Page size (default: 50, max: 500)"),
		option.Query("offset", "Page offset"),
	)

	fuego.Get(s.fuego, "/folders", s.listFolders,
		option.Summary("List Folders"),
		option.Description("Returns all known folders"),
		option.Tags("Chats"),
	)

	fuego.Post(s.fuego, "/search", s.search,
		option.Summary("Search Messages"),
		option.Description("Hybrid search: full-text relevance or vector similarity over archived messages"),
		option.Tags("Search"),
	)

	fuego.Get(s.fuego, "/commands", s.listCommands,
		option.Summary("List Commands"),
		option.Description("Returns snapshots of all commands; used to reconcile after a dropped stream"),
		option.Tags("Commands"),
	)

	// streaming endpoints bypass fuego's typed layer and mount on the raw mux
	s.fuego.Mux.HandleFunc("POST /commands/export", s.handleExport)
	s.fuego.Mux.HandleFunc("POST /commands/sync", s.handleSync)
	s.fuego.Mux.HandleFunc("POST /commands/import", s.handleImport)
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.fuego.Run()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return nil
}

// Mux returns the underlying ServeMux for mounting additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.fuego.Mux
}
