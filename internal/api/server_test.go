package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/command"
	"github.com/chatvault/chatvault/internal/embedding"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/store"
)

// Mock implementations for testing

type mockMessages struct {
	messages []models.Message
	total    int64

	textResults   []models.SearchResult
	vectorResults []models.SearchResult

	lastTextQuery   string
	lastVectorDims  int
	messagesErr     error
	vectorSearchErr error
}

func (m *mockMessages) MessagesByChat(ctx context.Context, chatID int64, page store.Page) ([]models.Message, int64, error) {
	if m.messagesErr != nil {
		return nil, 0, m.messagesErr
	}
	return m.messages, m.total, nil
}

func (m *mockMessages) TextSearch(ctx context.Context, chatID *int64, query string, page store.Page) ([]models.SearchResult, error) {
	m.lastTextQuery = query
	return m.textResults, nil
}

func (m *mockMessages) VectorSearch(ctx context.Context, chatID *int64, query pgvector.Vector, page store.Page) ([]models.SearchResult, error) {
	if m.vectorSearchErr != nil {
		return nil, m.vectorSearchErr
	}
	m.lastVectorDims = len(query.Slice())
	return m.vectorResults, nil
}

type mockChatReader struct {
	chats        []models.Chat
	folders      []models.Folder
	lastFolderID *int64
}

func (m *mockChatReader) List(ctx context.Context, folderID *int64) ([]models.Chat, error) {
	m.lastFolderID = folderID
	if folderID == nil {
		return m.chats, nil
	}
	var out []models.Chat
	for _, c := range m.chats {
		if c.FolderID == *folderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChatReader) ListFolders(ctx context.Context) ([]models.Folder, error) {
	return m.folders, nil
}

type mockCommands struct {
	commands []command.Command
	events   []command.Event
	startErr error

	exportReq *command.ExportRequest
}

func (m *mockCommands) channel() <-chan command.Event {
	ch := make(chan command.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (m *mockCommands) StartExport(req command.ExportRequest) (command.Command, <-chan command.Event, error) {
	if m.startErr != nil {
		return command.Command{}, nil, m.startErr
	}
	m.exportReq = &req
	return command.Command{Type: command.TypeExport}, m.channel(), nil
}

func (m *mockCommands) StartSync() (command.Command, <-chan command.Event, error) {
	if m.startErr != nil {
		return command.Command{}, nil, m.startErr
	}
	return command.Command{Type: command.TypeSync}, m.channel(), nil
}

func (m *mockCommands) StartImport(req command.ImportRequest) (command.Command, <-chan command.Event, error) {
	if m.startErr != nil {
		return command.Command{}, nil, m.startErr
	}
	return command.Command{Type: command.TypeImport}, m.channel(), nil
}

func (m *mockCommands) Commands() []command.Command {
	return m.commands
}

type mockEmbedder struct {
	vectors [][]float32
	err     error
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &embedding.BatchResult{Vectors: m.vectors}, nil
}

func newTestServer(deps *Dependencies) *Server {
	cfg := &Config{
		Port:        3100,
		Title:       "Test API",
		Description: "Test",
		Version:     "1.0.0",
	}
	return NewServer(cfg, deps)
}

func defaultDeps() (*Dependencies, *mockMessages, *mockChatReader, *mockCommands) {
	messages := &mockMessages{}
	chats := &mockChatReader{}
	commands := &mockCommands{}
	return &Dependencies{
		Messages: messages,
		Chats:    chats,
		Commands: commands,
	}, messages, chats, commands
}

func TestHealthEndpoint(t *testing.T) {
	deps, _, _, _ := defaultDeps()
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestListChatsEndpoint(t *testing.T) {
	deps, _, chats, _ := defaultDeps()
	chats.chats = []models.Chat{
		{ID: 1, Title: "one", FolderID: 0},
		{ID: 2, Title: "two", FolderID: 3},
	}
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/chats/?folder_id=3", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatsListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 || resp.Chats[0].ID != 2 {
		t.Errorf("unexpected chats: %+v", resp)
	}
	if chats.lastFolderID == nil || *chats.lastFolderID != 3 {
		t.Errorf("folder filter not forwarded: %v", chats.lastFolderID)
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	deps, messages, _, _ := defaultDeps()
	content := "hello"
	messages.messages = []models.Message{{ID: 1, ChatID: 42, Content: &content}}
	messages.total = 1
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/chats/42/messages?limit=10&offset=5", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp MessagesListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 || resp.Limit != 10 || resp.Offset != 5 {
		t.Errorf("unexpected page meta: %+v", resp)
	}
}

func TestListMessagesEndpoint_BadChatID(t *testing.T) {
	deps, _, _, _ := defaultDeps()
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/chats/abc/messages", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestListMessagesEndpoint_NotFound(t *testing.T) {
	deps, messages, _, _ := defaultDeps()
	messages.messagesErr = apperr.New(apperr.KindNotFound, "no partition")
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/chats/42/messages", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func searchRequest(t *testing.T, srv *Server, body SearchRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)
	return w
}

func TestSearchEndpoint_TextMode(t *testing.T) {
	deps, messages, _, _ := defaultDeps()
	messages.textResults = []models.SearchResult{
		{Message: models.Message{ID: 1, ChatID: 42}, Similarity: 0.9},
	}
	srv := newTestServer(deps)

	w := searchRequest(t, srv, SearchRequest{Query: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "text" || resp.Total != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if messages.lastTextQuery != "hello" {
		t.Errorf("query not forwarded: %q", messages.lastTextQuery)
	}
}

func TestSearchEndpoint_VectorMode(t *testing.T) {
	deps, messages, _, _ := defaultDeps()
	messages.vectorResults = []models.SearchResult{
		{Message: models.Message{ID: 2, ChatID: 42}, Similarity: 0.8},
	}
	deps.Embedder = &mockEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	srv := newTestServer(deps)

	w := searchRequest(t, srv, SearchRequest{Query: "hello", UseVectorSearch: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "vector" {
		t.Errorf("mode = %s, want vector", resp.Mode)
	}
	if messages.lastVectorDims != 3 {
		t.Errorf("query vector dims = %d, want 3", messages.lastVectorDims)
	}
}

func TestSearchEndpoint_VectorFallsBackWithoutEmbedder(t *testing.T) {
	deps, messages, _, _ := defaultDeps()
	messages.textResults = []models.SearchResult{}
	srv := newTestServer(deps)

	w := searchRequest(t, srv, SearchRequest{Query: "hello", UseVectorSearch: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "text" {
		t.Errorf("mode = %s, want text fallback", resp.Mode)
	}
}

func TestSearchEndpoint_FolderFilter(t *testing.T) {
	deps, messages, chats, _ := defaultDeps()
	chats.chats = []models.Chat{
		{ID: 42, FolderID: 7},
		{ID: 43, FolderID: 0},
	}
	messages.textResults = []models.SearchResult{
		{Message: models.Message{ID: 1, ChatID: 42}, Similarity: 0.9},
		{Message: models.Message{ID: 2, ChatID: 43}, Similarity: 0.8},
	}
	srv := newTestServer(deps)

	folderID := int64(7)
	w := searchRequest(t, srv, SearchRequest{Query: "hello", FolderID: &folderID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].ChatID != 42 {
		t.Errorf("folder filter failed: %+v", resp)
	}
}

func TestCommandsEndpoint(t *testing.T) {
	deps, _, _, commands := defaultDeps()
	commands.commands = []command.Command{
		{Type: command.TypeExport, Status: command.StatusSuccess, Progress: 100},
	}
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodGet, "/commands", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CommandsListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].Progress != 100 {
		t.Errorf("unexpected commands: %+v", resp)
	}
}

func TestExportEndpoint_Streams(t *testing.T) {
	deps, _, _, commands := defaultDeps()
	cmd := command.Command{Type: command.TypeExport, Status: command.StatusSuccess, Progress: 100}
	commands.events = []command.Event{
		{Type: command.EventInfo, Message: "starting"},
		{Type: command.EventInit, Command: &cmd},
		{Type: command.EventComplete, Command: &cmd},
	}
	srv := newTestServer(deps)

	body := bytes.NewReader([]byte(`{"chat_id": 42, "limit": 10}`))
	req := httptest.NewRequest(http.MethodPost, "/commands/export", body)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	out := w.Body.String()
	for _, want := range []string{"event: info\n", "event: init\n", "event: complete\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q in %q", want, out)
		}
	}
	if commands.exportReq == nil || commands.exportReq.ChatID != 42 {
		t.Errorf("export request not forwarded: %+v", commands.exportReq)
	}
}

func TestExportEndpoint_Conflict(t *testing.T) {
	deps, _, _, commands := defaultDeps()
	commands.startErr = apperr.New(apperr.KindConcurrency, "a command is already running")
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodPost, "/commands/export", bytes.NewReader([]byte(`{"chat_id": 1}`)))
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Kind != string(apperr.KindConcurrency) {
		t.Errorf("kind = %q", resp.Kind)
	}
}

func TestExportEndpoint_BadBody(t *testing.T) {
	deps, _, _, _ := defaultDeps()
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodPost, "/commands/export", bytes.NewReader([]byte(`{not json`)))
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestSyncEndpoint_Streams(t *testing.T) {
	deps, _, _, commands := defaultDeps()
	cmd := command.Command{Type: command.TypeSync, Status: command.StatusSuccess, Progress: 100}
	commands.events = []command.Event{
		{Type: command.EventComplete, Command: &cmd},
	}
	srv := newTestServer(deps)

	req := httptest.NewRequest(http.MethodPost, "/commands/sync", nil)
	w := httptest.NewRecorder()
	srv.fuego.Mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "event: complete\n") {
		t.Errorf("stream missing completion: %q", w.Body.String())
	}
}
