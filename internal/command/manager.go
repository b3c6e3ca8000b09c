package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/folders"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/publisher"
	"github.com/chatvault/chatvault/internal/source"
)

// MessageStore is the partition write/read surface the pipeline needs.
type MessageStore interface {
	EnsurePartition(ctx context.Context, chatID int64) error
	Upsert(ctx context.Context, chatID int64, messages []models.Message) (int64, error)
	RefreshStats(ctx context.Context, chatID int64) (*models.ChatStats, error)
}

// ChatRegistry is the chat/folder metadata surface the pipeline needs.
type ChatRegistry interface {
	Get(ctx context.Context, id int64) (*models.Chat, error)
	Upsert(ctx context.Context, chat *models.Chat) error
	UpsertFolders(ctx context.Context, folders []models.Folder) error
}

// Embedder vectorizes a persisted batch, returning the count of texts that
// failed embedding.
type Embedder interface {
	EmbedMessages(ctx context.Context, chatID int64, messages []models.Message) int
}

// EventPublisher emits archive events for live messages.
type EventPublisher interface {
	PublishMessageNew(ctx context.Context, event publisher.MessageNewEvent) error
}

// eventBufferSize bounds a run's progress channel. Intermediate updates may
// be dropped for a slow consumer; the channel close itself marks the end of
// the stream, so consumers reconcile against the command snapshot.
const eventBufferSize = 256

// Manager owns the command registry and runs export, import, sync and watch
// commands. Only one history-pulling run (export, import, sync) may be
// active at a time per process; the guard is check-then-act under a mutex,
// acceptable under the single-process deployment assumption.
type Manager struct {
	registry  *Registry
	store     MessageStore
	chats     ChatRegistry
	src       source.ChatSource
	embedder  Embedder
	publisher EventPublisher
	router    *folders.Router
	batchSize int
	log       *logger.Logger

	mu       sync.Mutex
	active   bool
	activeID uuid.UUID
	watchID  uuid.UUID
}

// Options configures a Manager. Embedder, Publisher and Router are optional.
type Options struct {
	Store     MessageStore
	Chats     ChatRegistry
	Source    source.ChatSource
	Embedder  Embedder
	Publisher EventPublisher
	Router    *folders.Router
	BatchSize int
}

// NewManager creates a command manager.
func NewManager(opts Options) *Manager {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	router := opts.Router
	if router == nil {
		router = folders.NewRouter(nil)
	}
	return &Manager{
		registry:  NewRegistry(),
		store:     opts.Store,
		chats:     opts.Chats,
		src:       opts.Source,
		embedder:  opts.Embedder,
		publisher: opts.Publisher,
		router:    router,
		batchSize: batchSize,
		log:       logger.Get(),
	}
}

// Registry exposes command snapshots for the read API.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Commands returns snapshots of all commands in creation order.
func (m *Manager) Commands() []Command {
	return m.registry.List()
}

// acquire reserves the single run slot. The currently running command is
// left untouched when acquisition fails.
func (m *Manager) acquire(typ Type, chatID int64) (Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return Command{}, apperr.Newf(apperr.KindConcurrency,
			"a command is already running (%s)", m.activeID)
	}

	cmd := m.registry.Create(typ, chatID)
	m.active = true
	m.activeID = cmd.ID
	return cmd, nil
}

func (m *Manager) release(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active && m.activeID == id {
		m.active = false
	}
}

// emit sends an event without ever blocking the run. The terminal state is
// always observable through the registry even if the event is dropped.
func (m *Manager) emit(ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

// emitTerminal guarantees the stream ends with a terminal frame. When the
// buffer is full of droppable updates the oldest one is evicted to make room;
// the run goroutine is the only sender, so the loop is bounded by the buffer
// size and never blocks on an abandoned consumer.
func (m *Manager) emitTerminal(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Manager) snapshot(id uuid.UUID) *Command {
	cmd, ok := m.registry.Get(id)
	if !ok {
		return nil
	}
	return &cmd
}

// fail records a terminal error on the command and emits the error event.
func (m *Manager) fail(id uuid.UUID, ch chan Event, err error) {
	m.log.Error().Err(err).Str("command_id", id.String()).Msg("command failed")

	detail := apperr.DetailOf(err)
	m.registry.Update(id, func(c *Command) {
		c.Status = StatusError
		c.Message = err.Error()
		c.Details.Error = &detail
	})
	m.emitTerminal(ch, Event{Type: EventError, Command: m.snapshot(id)})
}

// succeed records terminal success and emits the completion event.
func (m *Manager) succeed(id uuid.UUID, ch chan Event, message string) {
	m.registry.Update(id, func(c *Command) {
		c.Status = StatusSuccess
		c.Progress = 100
		c.Message = message
	})
	m.emitTerminal(ch, Event{Type: EventComplete, Command: m.snapshot(id)})
}

// speedAndETA computes instantaneous throughput and remaining time.
func speedAndETA(processed, total int, start time.Time) (float64, float64) {
	elapsedMs := float64(time.Since(start).Milliseconds())
	if elapsedMs <= 0 || processed <= 0 {
		return 0, 0
	}
	speed := float64(processed) * 1000 / elapsedMs
	if total <= processed {
		return speed, 0
	}
	return speed, float64(total-processed) / speed
}
