package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	natsio "github.com/nats-io/nats.go"

	"github.com/chatvault/chatvault/internal/api"
	"github.com/chatvault/chatvault/internal/command"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/database"
	"github.com/chatvault/chatvault/internal/embedding"
	"github.com/chatvault/chatvault/internal/folders"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/migrator"
	"github.com/chatvault/chatvault/internal/publisher"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/telegram"
	"github.com/chatvault/chatvault/migrations"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting archiver service")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to database and run migrations
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	mig, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	if err := mig.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	// 5. Connect to NATS
	var pub command.EventPublisher
	nc, err := natsio.Connect(cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
	} else {
		defer nc.Close()
		pub = publisher.NewNATSPublisher(nc)
		log.Info().Msg("connected to nats")
	}

	// 6. Initialize stores
	messageStore := store.New(db.Pool, cfg.EmbeddingDimension)
	chatStore := store.NewChats(db.GORM)

	// 7. Initialize embedding pipeline
	var pipeline *embedding.Pipeline
	provider := newProvider(cfg)
	if provider != nil {
		pipeline = embedding.NewPipeline(provider, messageStore, cfg.WriteConcurrency)
		log.Info().Str("provider", provider.Name()).Str("model", cfg.EmbeddingModel).Msg("embedding pipeline initialized")
	} else {
		log.Warn().Msg("no embedding provider configured, vector search disabled")
	}

	// 8. Initialize telegram source
	if cfg.TGApiID == 0 || cfg.TGApiHash == "" {
		log.Fatal().Msg("TG_API_ID and TG_API_HASH are required")
	}

	src := telegram.NewSource(cfg, db.GORM)
	if err := src.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("telegram connect failed, commands will error until restart")
	}
	defer src.Disconnect()

	// 9. Folder routing rules
	router, err := folders.Load(cfg.FolderRulesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.FolderRulesPath).Msg("failed to load folder rules")
	}

	// 10. Command manager
	var embedder command.Embedder
	if pipeline != nil {
		embedder = pipeline
	}
	manager := command.NewManager(command.Options{
		Store:     messageStore,
		Chats:     chatStore,
		Source:    src,
		Embedder:  embedder,
		Publisher: pub,
		Router:    router,
		BatchSize: cfg.ExportBatchSize,
	})

	watch := manager.StartWatch()
	log.Info().Str("command_id", watch.ID.String()).Msg("live watch started")

	// 11. API server
	deps := &api.Dependencies{
		Messages: messageStore,
		Chats:    chatStore,
		Commands: manager,
	}
	if pipeline != nil {
		deps.Embedder = pipeline
	}

	server := api.NewServer(&api.Config{
		Port:        cfg.HTTPPort,
		Title:       "ChatVault API",
		Description: "Chat archive and search service",
		Version:     "1.0.0",
	}, deps)

	log.Info().Int("port", cfg.HTTPPort).Msg("starting api server")
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 12. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Stop(shutdownCtx)

	log.Info().Msg("shutdown complete")
}

// newProvider picks the embedding backend from config. A missing API key for
// the openai provider means embeddings are disabled rather than failing fast,
// archiving works without them.
func newProvider(cfg *config.Config) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
	case "openai":
		if cfg.EmbeddingAPIKey == "" {
			return nil
		}
		provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL: cfg.EmbeddingBaseURL,
			APIKey:  cfg.EmbeddingAPIKey,
			Model:   cfg.EmbeddingModel,
		})
		if err != nil {
			return nil
		}
		return provider
	default:
		return nil
	}
}
