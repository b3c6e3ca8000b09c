package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/source"
)

func writeImportFile(t *testing.T, chatID int64, n int) string {
	t.Helper()
	file := jsonExportFile{
		ChatID:     chatID,
		ExportedAt: time.Now(),
		Count:      n,
		Messages:   testHistory(chatID, n),
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImport_ReplaysFileThroughStore(t *testing.T) {
	store := &mockStore{}
	m := newTestManager(store, &mockChats{}, source.NewFake())

	path := writeImportFile(t, 42, 250)
	cmd, ch, err := m.StartImport(ImportRequest{FilePath: path})
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	drain(ch)

	final := finalCommand(t, m, cmd.ID)
	if final.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", final.Status)
	}
	if final.ChatID != 42 {
		t.Errorf("chat id = %d, want 42 (from file)", final.ChatID)
	}
	if final.Details.Processed != 250 {
		t.Errorf("processed = %d, want 250", final.Details.Processed)
	}
	if store.upsertCalls != 3 {
		t.Errorf("upsert calls = %d, want 3", store.upsertCalls)
	}
	if store.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", store.refreshCalls)
	}
}

func TestImport_ChatIDOverride(t *testing.T) {
	store := &mockStore{}
	m := newTestManager(store, &mockChats{}, source.NewFake())

	path := writeImportFile(t, 42, 5)
	cmd, ch, err := m.StartImport(ImportRequest{ChatID: -99, FilePath: path})
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	drain(ch)

	final := finalCommand(t, m, cmd.ID)
	if final.ChatID != -99 {
		t.Errorf("chat id = %d, want -99", final.ChatID)
	}
	for _, batch := range store.upserted {
		for _, msg := range batch {
			if msg.ChatID != -99 {
				t.Fatalf("message chat id = %d, want -99", msg.ChatID)
			}
		}
	}
}

func TestImport_Validation(t *testing.T) {
	m := newTestManager(&mockStore{}, &mockChats{}, source.NewFake())

	if _, _, err := m.StartImport(ImportRequest{}); !apperr.Validation(err) {
		t.Errorf("missing path err = %v, want validation", err)
	}

	cmd, ch, err := m.StartImport(ImportRequest{FilePath: "/does/not/exist.json"})
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	drain(ch)
	if final := finalCommand(t, m, cmd.ID); final.Status != StatusError {
		t.Errorf("status = %s, want error", final.Status)
	}
}

func TestRegistry_ListOrderAndSnapshots(t *testing.T) {
	r := NewRegistry()
	first := r.Create(TypeExport, 1)
	second := r.Create(TypeSync, 0)

	list := r.List()
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("list order wrong: %+v", list)
	}

	// mutating a snapshot must not leak into the registry
	list[0].Status = StatusError
	if got, _ := r.Get(first.ID); got.Status != StatusRunning {
		t.Errorf("registry mutated through snapshot: %s", got.Status)
	}
}

func TestRegistry_TerminalCommandsAreFrozen(t *testing.T) {
	r := NewRegistry()
	cmd := r.Create(TypeExport, 1)

	r.Update(cmd.ID, func(c *Command) {
		c.Status = StatusSuccess
		c.Progress = 100
	})
	r.Update(cmd.ID, func(c *Command) {
		c.Status = StatusRunning
		c.Progress = 10
	})

	got, _ := r.Get(cmd.ID)
	if got.Status != StatusSuccess || got.Progress != 100 {
		t.Errorf("terminal command mutated: %s/%d", got.Status, got.Progress)
	}
}
