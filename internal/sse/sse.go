// Package sse frames server-sent events for the command progress channel.
// One stream is opened per run; exactly one terminal event ends it and the
// server closes the stream afterwards. There is no replay: reconnecting
// clients reconcile against command snapshots instead.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chatvault/chatvault/internal/apperr"
)

// EventType identifies one kind of progress event.
type EventType string

// Event types, emitted in generation order per run.
const (
	EventInfo     EventType = "info"
	EventInit     EventType = "init"
	EventUpdate   EventType = "update"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Terminal reports whether t ends a stream.
func (t EventType) Terminal() bool {
	return t == EventError || t == EventComplete
}

// Writer frames events onto an HTTP response, flushing after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewWriter prepares w for event streaming and writes the stream headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one framed event and flushes it to the client.
// Events after a terminal one are dropped.
func (s *Writer) Send(event EventType, payload any) error {
	if s.closed {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	s.flusher.Flush()

	if event.Terminal() {
		s.closed = true
	}
	return nil
}

// Info emits a free-text status event.
func (s *Writer) Info(message string) error {
	return s.Send(EventInfo, map[string]string{"message": message})
}

// Closed reports whether a terminal event has been sent.
func (s *Writer) Closed() bool { return s.closed }
