// Package command tracks asynchronous export, import, sync and watch runs.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/apperr"
)

// Type identifies the kind of run a command tracks.
type Type string

// Command types.
const (
	TypeExport Type = "export"
	TypeImport Type = "import"
	TypeSync   Type = "sync"
	TypeWatch  Type = "watch"
)

// Status is the command lifecycle state. Success and error are terminal.
type Status string

// Command statuses.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Details carries the run's counters and throughput figures.
type Details struct {
	TotalMessages int `json:"total_messages"`
	Processed     int `json:"processed_messages"`
	Failed        int `json:"failed_messages"`
	CurrentBatch  int `json:"current_batch"`
	TotalBatches  int `json:"total_batches"`

	StartTime time.Time `json:"start_time"`
	// Speed is messages per second, computed as processed*1000/elapsedMs.
	Speed      float64 `json:"current_speed"`
	ETASeconds float64 `json:"eta_seconds"`

	Error *apperr.Detail `json:"error,omitempty"`
}

// Command is one tracked run. It is created at run start, mutated only by its
// own handler, and terminal once success or error.
type Command struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Status    Status    `json:"status"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Details   Details   `json:"details"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the command reached a final state.
func (c *Command) Terminal() bool {
	return c.Status == StatusSuccess || c.Status == StatusError
}

// EventType mirrors the progress channel framing types.
type EventType string

// Progress event types, in the order a run emits them.
const (
	EventInfo     EventType = "info"
	EventInit     EventType = "init"
	EventUpdate   EventType = "update"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one progress notification for a run's stream.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Command *Command  `json:"command,omitempty"`
}
