package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docbrain/internal/chat"
	"docbrain/internal/config"
	"docbrain/internal/models"
	"docbrain/internal/providers"
	"docbrain/internal/storage"
	"docbrain/internal/vector"
)

// testServer wires the handlers over the in-memory index and fallback
// providers so no Postgres or Temporal is needed.
func testServer(t *testing.T) (*Server, *vector.MemoryIndex) {
	t.Helper()
	cfg := config.Config{
		EmbedDim:            8,
		TopK:                5,
		SimilarityThreshold: 0.1,
		MaxContextChunks:    3,
		HistoryLimit:        5,
		MaxUploadBytes:      1 << 20,
	}
	embedder := providers.NewEmbedSwitcher(nil, providers.NewFallback(cfg.EmbedDim))
	answerer := providers.NewAnswerSwitcher(nil, providers.NewFallback(cfg.EmbedDim))
	idx := vector.NewMemoryIndex()
	chatSvc := chat.NewService(embedder, answerer, idx, nil, chat.Options{
		TopK:             cfg.TopK,
		Threshold:        cfg.SimilarityThreshold,
		MaxContextChunks: cfg.MaxContextChunks,
		EmbedDim:         cfg.EmbedDim,
	})
	return &Server{
		cfg:      cfg,
		searcher: idx,
		embedder: embedder,
		answerer: answerer,
		chatSvc:  chatSvc,
	}, idx
}

func seedIndex(t *testing.T, s *Server, idx *vector.MemoryIndex, docID, docName string, texts ...string) {
	t.Helper()
	vecs, _, err := s.embedder.Embed(context.Background(), providers.EmbedRequest{Inputs: texts, Dimension: s.cfg.EmbedDim})
	if err != nil {
		t.Fatalf("seed embed: %v", err)
	}
	for i, text := range texts {
		idx.Add(vector.Entry{
			ChunkID:      docID + ":" + string(rune('0'+i)),
			DocumentID:   docID,
			DocumentName: docName,
			Content:      text,
			Vector:       vecs[i],
		})
	}
}

func TestHandleChatAnswersWithSources(t *testing.T) {
	s, idx := testServer(t)
	seedIndex(t, s, idx, "doc-a", "handbook.pdf", "vacation policy allows 20 days", "sick leave is unlimited")

	body := strings.NewReader(`{"query":"vacation policy allows 20 days"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	w := httptest.NewRecorder()
	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Answer  string        `json:"answer"`
		Sources []chat.Source `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("empty answer")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentName != "handbook.pdf" {
		t.Fatalf("unexpected sources %+v", resp.Sources)
	}
}

func TestHandleChatEmptyQuery(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query":"  "}`))
	w := httptest.NewRecorder()
	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "DB-API-4001" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}
}

func TestHandleChatMethodNotAllowed(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", w.Code)
	}
}

func TestHandleChatNoResults(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query":"anything at all"}`))
	w := httptest.NewRecorder()
	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Answer  string        `json:"answer"`
		Sources []chat.Source `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Answer, "could not find relevant information") {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(resp.Sources))
	}
}

func TestHandleSearchReturnsRankedResults(t *testing.T) {
	s, idx := testServer(t)
	seedIndex(t, s, idx, "doc-a", "handbook.pdf", "expense reports are due friday")

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"expense reports are due friday"}`))
	w := httptest.NewRecorder()
	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []struct {
			ChunkID string  `json:"chunk_id"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Score < 0.99 {
		t.Fatalf("expected the identical text to score ~1, got %+v", resp.Results)
	}
}

func TestHandleChatStreamEventOrder(t *testing.T) {
	s, idx := testServer(t)
	seedIndex(t, s, idx, "doc-a", "handbook.pdf", "remote work is allowed twice a week")

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"query":"remote work is allowed twice a week"}`))
	w := httptest.NewRecorder()
	s.handleChatStream(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var types []string
	var answer strings.Builder
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		types = append(types, ev.Type)
		if ev.Type == "token" {
			answer.WriteString(ev.Token)
		}
	}
	if len(types) < 3 || types[0] != "sources" || types[len(types)-1] != "done" {
		t.Fatalf("unexpected event order %v", types)
	}
	if answer.Len() == 0 {
		t.Fatal("no tokens streamed")
	}
}

func TestHealthzOK(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.handleHealthz(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestToAPIErrorMapsDatabaseFailures(t *testing.T) {
	e := toAPIError(http.StatusInternalServerError, errString(`relation "chunks" does not exist`))
	if e.Code != "DB-DB-5001" {
		t.Fatalf("unexpected code %q", e.Code)
	}
	e = toAPIError(http.StatusInternalServerError, errString("dial tcp 127.0.0.1:5432: connection refused"))
	if e.Code != "DB-DB-5002" {
		t.Fatalf("unexpected code %q", e.Code)
	}
	e = toAPIError(http.StatusUnsupportedMediaType, errString("unsupported content type"))
	if e.Code != "DB-API-4015" {
		t.Fatalf("unexpected code %q", e.Code)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

type fakeDocumentStore struct {
	created []models.Document
}

func (f *fakeDocumentStore) Create(_ context.Context, d models.Document) error {
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDocumentStore) GetByID(context.Context, string) (models.Document, error) {
	return models.Document{}, nil
}

func (f *fakeDocumentStore) List(context.Context, string, int, int) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDocumentStore) Delete(context.Context, string) error { return nil }

type fakeChunkStore struct {
	failedID     string
	failedReason string
}

func (f *fakeChunkStore) DeleteDocumentChunks(_ context.Context, documentID, errorMessage string) error {
	f.failedID = documentID
	f.failedReason = errorMessage
	return nil
}

func (f *fakeChunkStore) ListByDocument(context.Context, string) ([]models.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) Stats(context.Context) (storage.StoreStats, error) {
	return storage.StoreStats{}, nil
}

type failingObjectStore struct{}

func (failingObjectStore) Put(string, []byte) error   { return fmt.Errorf("disk full") }
func (failingObjectStore) Get(string) ([]byte, error) { return nil, fmt.Errorf("disk full") }
func (failingObjectStore) Delete(string) error        { return fmt.Errorf("disk full") }
func (failingObjectStore) Check() error               { return fmt.Errorf("disk full") }

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUploadStoreFailureMarksDocumentFailed(t *testing.T) {
	s, _ := testServer(t)
	docs := &fakeDocumentStore{}
	chunks := &fakeChunkStore{}
	s.docRepo = docs
	s.chunkRepo = chunks
	s.objects = failingObjectStore{}

	w := httptest.NewRecorder()
	s.handleUpload(w, uploadRequest(t, "notes.txt", "quarterly budget review"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(docs.created) != 1 {
		t.Fatalf("expected one document record, got %d", len(docs.created))
	}
	if chunks.failedID != docs.created[0].DocumentID {
		t.Fatalf("document %q not marked failed (got %q)", docs.created[0].DocumentID, chunks.failedID)
	}
	if !strings.Contains(chunks.failedReason, "disk full") {
		t.Fatalf("failure reason %q does not carry the storage error", chunks.failedReason)
	}
}
