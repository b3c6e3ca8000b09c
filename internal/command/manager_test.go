package command

import (
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/source"
)

func TestEmitDropsWhenBufferFull(t *testing.T) {
	m := &Manager{}
	ch := make(chan Event, 1)

	m.emit(ch, Event{Type: EventUpdate, Message: "first"})
	m.emit(ch, Event{Type: EventUpdate, Message: "second"})

	if got := len(ch); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
	if ev := <-ch; ev.Message != "first" {
		t.Errorf("kept event = %q, want the first one", ev.Message)
	}
}

func TestEmitTerminalEvictsUpdatesWhenFull(t *testing.T) {
	m := &Manager{}
	ch := make(chan Event, 2)
	ch <- Event{Type: EventUpdate}
	ch <- Event{Type: EventUpdate}

	done := make(chan struct{})
	go func() {
		m.emitTerminal(ch, Event{Type: EventComplete})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitTerminal blocked on a full buffer with no consumer")
	}

	close(ch)
	var last Event
	for ev := range ch {
		last = ev
	}
	if last.Type != EventComplete {
		t.Errorf("last buffered event = %q, want %q", last.Type, EventComplete)
	}
}

func TestExport_TerminalEventReachesSlowConsumer(t *testing.T) {
	chatID := int64(42)
	total := eventBufferSize + 50

	store := &mockStore{}
	chats := &mockChats{chats: map[int64]*models.Chat{
		chatID: {ID: chatID, Title: "busy chat", MessageCount: int64(total)},
	}}
	fake := source.NewFake()
	fake.AddChat(*chats.chats[chatID], testHistory(chatID, total))

	// one message per batch overflows the event buffer before anyone reads
	m := NewManager(Options{
		Store:     store,
		Chats:     chats,
		Source:    fake,
		BatchSize: 1,
	})

	cmd, ch, err := m.StartExport(ExportRequest{ChatID: chatID})
	if err != nil {
		t.Fatalf("StartExport: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		snapshot := finalCommand(t, m, cmd.ID)
		if snapshot.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export did not finish; run is blocked on the unread stream")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := drain(ch)
	if len(events) == 0 {
		t.Fatal("no events buffered")
	}
	last := events[len(events)-1]
	if last.Type != EventComplete {
		t.Errorf("stream ended with %q, want %q", last.Type, EventComplete)
	}
	if last.Command == nil || last.Command.Status != StatusSuccess {
		t.Errorf("terminal frame missing success snapshot: %+v", last.Command)
	}
}
