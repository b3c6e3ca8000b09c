package command

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide in-memory command store. Commands live for the
// life of the process; a restart loses history, which is acceptable since
// commands are operational telemetry, not the data of record.
type Registry struct {
	mu    sync.RWMutex
	order []uuid.UUID
	byID  map[uuid.UUID]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]*Command)}
}

// Create registers a new running command and returns a snapshot.
func (r *Registry) Create(typ Type, chatID int64) Command {
	now := time.Now()
	cmd := &Command{
		ID:        uuid.New(),
		Type:      typ,
		Status:    StatusRunning,
		ChatID:    chatID,
		Message:   "starting",
		CreatedAt: now,
		UpdatedAt: now,
	}
	cmd.Details.StartTime = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[cmd.ID] = cmd
	r.order = append(r.order, cmd.ID)
	return *cmd
}

// Get returns a snapshot of one command.
func (r *Registry) Get(id uuid.UUID) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byID[id]
	if !ok {
		return Command{}, false
	}
	return *cmd, true
}

// List returns snapshots of all commands in creation order.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Update mutates a command under the registry lock and returns the resulting
// snapshot. Progress never decreases while the command is running, and
// terminal commands are not mutated further.
func (r *Registry) Update(id uuid.UUID, fn func(*Command)) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.byID[id]
	if !ok {
		return Command{}, false
	}
	if cmd.Terminal() {
		return *cmd, true
	}

	prevProgress := cmd.Progress
	fn(cmd)
	if cmd.Status == StatusRunning && cmd.Progress < prevProgress {
		cmd.Progress = prevProgress
	}
	cmd.UpdatedAt = time.Now()
	return *cmd, true
}
