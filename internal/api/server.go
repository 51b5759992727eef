package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docbrain/internal/chat"
	"docbrain/internal/config"
	"docbrain/internal/extract"
	"docbrain/internal/models"
	"docbrain/internal/objectstore"
	"docbrain/internal/providers"
	"docbrain/internal/storage"
	"docbrain/internal/util"
	"docbrain/internal/vector"
	"docbrain/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

// documentStore, chunkStore, auditStore and objectStore are the slices of the
// storage layer the handlers touch. The pgx repos satisfy them in production.
type documentStore interface {
	Create(ctx context.Context, d models.Document) error
	GetByID(ctx context.Context, documentID string) (models.Document, error)
	List(ctx context.Context, userID string, limit, offset int) ([]models.Document, error)
	Delete(ctx context.Context, documentID string) error
}

type chunkStore interface {
	DeleteDocumentChunks(ctx context.Context, documentID, errorMessage string) error
	ListByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
	Stats(ctx context.Context) (storage.StoreStats, error)
}

type auditStore interface {
	Insert(ctx context.Context, e models.AuditEntry) error
}

type objectStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Check() error
}

type Server struct {
	cfg       config.Config
	db        *storage.DB
	docRepo   documentStore
	chunkRepo chunkStore
	auditRepo auditStore
	objects   objectStore
	searcher  vector.Searcher
	embedder  *providers.EmbedSwitcher
	answerer  *providers.AnswerSwitcher
	chatSvc   *chat.Service
	temporal  tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL, storage.PoolOptions{MaxConns: int32(cfg.PostgresMaxConns)})
	if err != nil {
		panic(err)
	}
	objects, err := objectstore.New(cfg.StorageRoot)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	embedder, answerer := providers.Build(cfg.EmbedProvider, cfg.AnswerProvider, cfg.OpenAIBaseURL, float64(cfg.ProviderRPS), cfg.EmbedDim)
	searcher := vector.NewPgSearcher(db.Pool)
	auditRepo := storage.NewAuditRepo(db)
	chatSvc := chat.NewService(embedder, answerer, searcher, auditRepo, chat.Options{
		TopK:             cfg.TopK,
		Threshold:        cfg.SimilarityThreshold,
		MaxContextChunks: cfg.MaxContextChunks,
		EmbedDim:         cfg.EmbedDim,
	})
	return &Server{
		cfg:       cfg,
		db:        db,
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		auditRepo: auditRepo,
		objects:   objects,
		searcher:  searcher,
		embedder:  embedder,
		answerer:  answerer,
		chatSvc:   chatSvc,
		temporal:  tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/chat/stream", s.handleChatStream)
	mux.HandleFunc("/search", s.handleSearch)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleHealth reports component status, including whether the providers
// are running remote or have dropped to fallback.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := s.db.Pool.Ping(r.Context()); err != nil {
		dbStatus = "unavailable: " + err.Error()
	}
	storeStatus := "ok"
	if err := s.objects.Check(); err != nil {
		storeStatus = "unavailable: " + err.Error()
	}
	stats, err := s.chunkRepo.Stats(r.Context())
	if err != nil {
		stats = storage.StoreStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           dbStatus == "ok" && storeStatus == "ok",
		"database":     dbStatus,
		"object_store": storeStatus,
		"providers": map[string]any{
			"embed":  string(s.embedder.Mode()),
			"answer": string(s.answerer.Mode()),
		},
		"documents": stats.DocumentCount,
		"chunks":    stats.ChunkCount,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pageParams(r)
		docs, err := s.docRepo.List(r.Context(), r.URL.Query().Get("user_id"), limit, offset)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErr(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	defer file.Close()

	if fh.Size > s.cfg.MaxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("file of %d bytes exceeds limit", fh.Size))
		return
	}

	contentType := fh.Header.Get("Content-Type")
	// Type is validated before anything is stored.
	if _, err := extract.Detect(fh.Filename, contentType); err != nil {
		writeErr(w, http.StatusUnsupportedMediaType, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}

	documentID := uuid.NewString()
	userID := r.FormValue("user_id")
	storageKey := objectstore.ObjectKey(documentID, fh.Filename)

	doc := models.Document{
		DocumentID:  documentID,
		Filename:    filepath.Base(fh.Filename),
		ContentType: contentType,
		SizeBytes:   fh.Size,
		Status:      models.StatusPending,
		StorageKey:  storageKey,
		UserID:      userID,
	}
	if err := s.docRepo.Create(r.Context(), doc); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.objects.Put(storageKey, data); err != nil {
		_ = s.chunkRepo.DeleteDocumentChunks(r.Context(), documentID, "file could not be stored: "+err.Error())
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("store file: %w", err))
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "ingest-" + documentID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentID:   documentID,
		Filename:     doc.Filename,
		ContentType:  contentType,
		StorageKey:   storageKey,
		UserID:       userID,
		ChunkSize:    s.cfg.ChunkSize,
		ChunkOverlap: s.cfg.ChunkOverlap,
	})
	if err != nil {
		_ = s.chunkRepo.DeleteDocumentChunks(r.Context(), documentID, "ingestion could not be started: "+err.Error())
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("start ingestion: %w", err))
		return
	}

	s.audit(r.Context(), userID, "document.uploaded", documentID, map[string]any{
		"filename":   doc.Filename,
		"size_bytes": fh.Size,
		"sha256":     util.SHA256Hex(data),
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": documentID,
		"status":      models.StatusPending,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	documentID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetDocument(w, r, documentID)
		case http.MethodDelete:
			s.handleDeleteDocument(w, r, documentID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		switch parts[1] {
		case "download":
			s.handleDownload(w, r, documentID)
			return
		case "status":
			s.handleIngestStatus(w, r, documentID)
			return
		case "chunks":
			s.handleListChunks(w, r, documentID)
			return
		}
	}
	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := s.docRepo.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := s.docRepo.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	// Chunks go with the document through the FK cascade.
	if err := s.docRepo.Delete(r.Context(), documentID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if doc.StorageKey != "" {
		if err := s.objects.Delete(doc.StorageKey); err != nil && !errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.audit(r.Context(), r.URL.Query().Get("user_id"), "document.deleted", documentID, map[string]any{
		"filename": doc.Filename,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": documentID})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request, documentID string) {
	if _, err := s.docRepo.GetByID(r.Context(), documentID); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	chunks, err := s.chunkRepo.ListByDocument(r.Context(), documentID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := s.docRepo.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	data, err := s.objects.Get(doc.StorageKey)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleIngestStatus prefers the live workflow view and falls back to the
// persisted document record once the workflow is gone.
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request, documentID string) {
	resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+documentID, "", workflows.QueryGetIngestProgress)
	if err == nil {
		var prog workflows.DocumentIngestProgress
		if qErr := resp.Get(&prog); qErr == nil {
			writeJSON(w, http.StatusOK, prog)
			return
		}
	}
	doc, err := s.docRepo.GetByID(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows.DocumentIngestProgress{
		DocumentID: doc.DocumentID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		FailReason: doc.ErrorMessage,
	})
}

type chatRequest struct {
	Query      string              `json:"query"`
	UserID     string              `json:"user_id,omitempty"`
	DocumentID string              `json:"document_id,omitempty"`
	TopK       int                 `json:"top_k,omitempty"`
	Threshold  *float64            `json:"threshold,omitempty"`
	History    []providers.Message `json:"history,omitempty"`
}

func (s *Server) decodeChatRequest(r *http.Request) (chat.Request, error) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return chat.Request{}, fmt.Errorf("invalid json: %w", err)
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return chat.Request{}, fmt.Errorf("query is required")
	}
	history := req.History
	if len(history) > s.cfg.HistoryLimit*2 {
		history = history[len(history)-s.cfg.HistoryLimit*2:]
	}
	return chat.Request{
		Query:      req.Query,
		UserID:     req.UserID,
		DocumentID: req.DocumentID,
		TopK:       req.TopK,
		Threshold:  req.Threshold,
		History:    history,
	}, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	req, err := s.decodeChatRequest(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	answer, err := s.chatSvc.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, util.ErrValidation) {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// searchRequest's Threshold is a pointer so an explicit zero (accept every
// match) is distinguishable from an absent field.
type searchRequest struct {
	Query      string   `json:"query"`
	UserID     string   `json:"user_id,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// handleSearch exposes raw retrieval without answer synthesis.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	vecs, _, err := s.embedder.Embed(r.Context(), providers.EmbedRequest{
		Inputs:    []string{req.Query},
		Dimension: s.cfg.EmbedDim,
	})
	if err != nil || len(vecs) != 1 {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("embedding unavailable: %w", err))
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	threshold := s.cfg.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	results, err := s.searcher.Search(r.Context(), vector.Query{
		Vector:     vecs[0],
		TopK:       topK,
		Threshold:  threshold,
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) audit(ctx context.Context, userID, action, documentID string, details map[string]any) {
	_ = s.auditRepo.Insert(ctx, models.AuditEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: "document",
		ResourceID:   documentID,
		Details:      details,
	})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
