package command

import (
	"context"
	"testing"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/folders"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/source"
)

func TestSync_RoutesChatsIntoFolders(t *testing.T) {
	store := &mockStore{}
	chats := &mockChats{chats: map[int64]*models.Chat{}}

	fake := source.NewFake()
	fake.SetFolders([]models.Folder{
		{ID: 0, Title: "All Chats"},
		{ID: 2, Title: "Work"},
	})
	fake.AddChat(models.Chat{ID: 1, Title: "work updates", Type: models.ChatTypeChannel}, nil)
	fake.AddChat(models.Chat{ID: 2, Title: "family", Type: models.ChatTypeGroup}, nil)

	router := folders.NewRouter([]folders.Rule{
		{FolderID: 2, TitleContains: "work"},
	})

	m := NewManager(Options{
		Store:     store,
		Chats:     chats,
		Source:    fake,
		Router:    router,
		BatchSize: 100,
	})

	cmd, ch, err := m.StartSync()
	if err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	drain(ch)

	final := finalCommand(t, m, cmd.ID)
	if final.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", final.Status)
	}
	if final.Details.Processed != 2 {
		t.Errorf("processed = %d, want 2", final.Details.Processed)
	}

	if len(chats.folders) != 2 {
		t.Fatalf("folders upserted = %d, want 2", len(chats.folders))
	}
	if len(chats.upserted) != 2 {
		t.Fatalf("chats upserted = %d, want 2", len(chats.upserted))
	}

	byID := map[int64]models.Chat{}
	for _, c := range chats.upserted {
		byID[c.ID] = c
	}
	if byID[1].FolderID != 2 {
		t.Errorf("work chat folder = %d, want 2", byID[1].FolderID)
	}
	if byID[2].FolderID != models.AllChatsFolderID {
		t.Errorf("unmatched chat folder = %d, want 0", byID[2].FolderID)
	}
}

func TestSync_SourceFailure(t *testing.T) {
	chats := &mockChats{chats: map[int64]*models.Chat{}}

	fake := source.NewFake()
	m := newTestManager(&mockStore{}, chats, &failingFolderSource{Fake: fake})

	cmd, ch, err := m.StartSync()
	if err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	drain(ch)

	final := finalCommand(t, m, cmd.ID)
	if final.Status != StatusError {
		t.Errorf("status = %s, want error", final.Status)
	}
}

type failingFolderSource struct {
	*source.Fake
}

func (f *failingFolderSource) GetFolders(ctx context.Context) ([]models.Folder, error) {
	return nil, apperr.New(apperr.KindSource, "source is down")
}
