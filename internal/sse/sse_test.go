package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriter_Send(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	if err := w.Send(EventInit, map[string]int{"progress": 0}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: init\n") {
		t.Errorf("missing event line: %q", body)
	}
	if !strings.Contains(body, `data: {"progress":0}`) {
		t.Errorf("missing data line: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("frame not terminated by blank line: %q", body)
	}
}

func TestWriter_TerminalClosesStream(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Send(EventComplete, map[string]int{"progress": 100}); err != nil {
		t.Fatalf("Send complete: %v", err)
	}
	if !w.Closed() {
		t.Error("stream not closed after terminal event")
	}

	before := rec.Body.Len()
	if err := w.Send(EventUpdate, map[string]int{"progress": 100}); err != nil {
		t.Fatalf("Send after terminal: %v", err)
	}
	if rec.Body.Len() != before {
		t.Error("event written after terminal event")
	}
}

func TestEventType_Terminal(t *testing.T) {
	tests := []struct {
		event EventType
		want  bool
	}{
		{EventInfo, false},
		{EventInit, false},
		{EventUpdate, false},
		{EventError, true},
		{EventComplete, true},
	}
	for _, tt := range tests {
		if got := tt.event.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.event, got, tt.want)
		}
	}
}
