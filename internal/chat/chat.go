package chat

import (
	"context"
	"fmt"
	"log"

	"docbrain/internal/models"
	"docbrain/internal/providers"
	"docbrain/internal/util"
	"docbrain/internal/vector"
)

const noInfoAnswer = "I could not find relevant information in the ingested documents to answer that question."

// Embedder is the embedding side of the provider stack.
type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

// Answerer is the generation side of the provider stack.
type Answerer interface {
	Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error)
	GenerateStream(ctx context.Context, req providers.GenerateRequest, emit func(token string) error) (providers.ProviderInfo, error)
}

// Auditor records who asked what. Audit failures are logged, not surfaced;
// a lost audit row must not break an otherwise good answer.
type Auditor interface {
	Insert(ctx context.Context, e models.AuditEntry) error
}

// Options tune retrieval. Zero values fall back to the defaults used by
// NewService.
type Options struct {
	TopK             int
	Threshold        float64
	MaxContextChunks int
	EmbedDim         int
}

// Source is a cited document in an answer. One entry per document, carrying
// the best-scoring chunk's score and an excerpt from it.
type Source struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Score        float64 `json:"score"`
	Excerpt      string  `json:"excerpt"`
}

// Answer is the full response to a question. Degraded is true when the
// fallback provider produced it.
type Answer struct {
	Text           string                 `json:"answer"`
	Sources        []Source               `json:"sources"`
	Provider       providers.ProviderInfo `json:"provider"`
	Degraded       bool                   `json:"degraded"`
	RetrievedCount int                    `json:"retrieved_count"`
}

// Request is one question, optionally scoped to a single document and
// carrying prior conversation turns. TopK overrides the service default when
// positive. Threshold overrides it when set, and an explicit zero means
// accept every match.
type Request struct {
	Query      string
	UserID     string
	DocumentID string
	TopK       int
	Threshold  *float64
	History    []providers.Message
}

type Service struct {
	embedder Embedder
	answerer Answerer
	searcher vector.Searcher
	audit    Auditor
	opts     Options
}

func NewService(embedder Embedder, answerer Answerer, searcher vector.Searcher, audit Auditor, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxContextChunks <= 0 {
		opts.MaxContextChunks = opts.TopK
	}
	if opts.EmbedDim <= 0 {
		opts.EmbedDim = 1536
	}
	return &Service{embedder: embedder, answerer: answerer, searcher: searcher, audit: audit, opts: opts}
}

// retrieve embeds the query and returns the matching chunks in descending
// score order.
func (s *Service) retrieve(ctx context.Context, req Request) ([]models.ChunkResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", util.ErrValidation)
	}
	vecs, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Inputs:    []string{req.Query},
		Dimension: s.opts.EmbedDim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	threshold := s.opts.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	results, err := s.searcher.Search(ctx, vector.Query{
		Vector:     vecs[0],
		TopK:       topK,
		Threshold:  threshold,
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return results, nil
}

func (s *Service) buildContext(results []models.ChunkResult) []providers.ContextChunk {
	n := len(results)
	if n > s.opts.MaxContextChunks {
		n = s.opts.MaxContextChunks
	}
	ctxChunks := make([]providers.ContextChunk, 0, n)
	for _, r := range results[:n] {
		ctxChunks = append(ctxChunks, providers.ContextChunk{
			DocumentName: r.DocumentName,
			Text:         r.Content,
		})
	}
	return ctxChunks
}

// dedupSources collapses chunk results into one source per document.
// Results arrive in descending score order, so the first hit per document
// carries that document's best score and excerpt.
func dedupSources(results []models.ChunkResult) []Source {
	seen := make(map[string]bool)
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		sources = append(sources, Source{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Score:        r.Score,
			Excerpt:      util.Snippet(r.Content, 280),
		})
	}
	return sources
}

func (s *Service) writeAudit(ctx context.Context, req Request, results []models.ChunkResult, info providers.ProviderInfo) {
	if s.audit == nil {
		return
	}
	chunkIDs := make([]string, 0, len(results))
	for _, r := range results {
		chunkIDs = append(chunkIDs, r.ChunkID)
	}
	entry := models.AuditEntry{
		UserID:       req.UserID,
		Action:       "chat.ask",
		ResourceType: "document",
		ResourceID:   req.DocumentID,
		Details: map[string]any{
			"query_length": len(req.Query),
			"chunk_ids":    chunkIDs,
			"provider":     info.Name,
			"model":        info.Model,
		},
	}
	if err := s.audit.Insert(ctx, entry); err != nil {
		log.Printf("audit insert failed: %v", err)
	}
}

// Ask answers a question against the ingested documents. When retrieval
// finds nothing above the threshold, the answer says so without calling the
// answer provider at all.
func (s *Service) Ask(ctx context.Context, req Request) (Answer, error) {
	results, err := s.retrieve(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		s.writeAudit(ctx, req, nil, providers.ProviderInfo{Name: "none"})
		return Answer{Text: noInfoAnswer, Sources: []Source{}}, nil
	}

	resp, info, err := s.answerer.Generate(ctx, providers.GenerateRequest{
		Query:   req.Query,
		Context: s.buildContext(results),
		History: req.History,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	s.writeAudit(ctx, req, results, info)
	return Answer{
		Text:           resp.Text,
		Sources:        dedupSources(results),
		Provider:       info,
		Degraded:       info.Name == "fallback",
		RetrievedCount: len(results),
	}, nil
}

// AskStream is Ask with incremental delivery. Sources are emitted before
// the first token so clients can render citations while the answer streams.
func (s *Service) AskStream(ctx context.Context, req Request, onSources func([]Source) error, onToken func(token string) error) (providers.ProviderInfo, error) {
	results, err := s.retrieve(ctx, req)
	if err != nil {
		return providers.ProviderInfo{}, err
	}
	if len(results) == 0 {
		s.writeAudit(ctx, req, nil, providers.ProviderInfo{Name: "none"})
		if err := onSources([]Source{}); err != nil {
			return providers.ProviderInfo{}, err
		}
		if err := onToken(noInfoAnswer); err != nil {
			return providers.ProviderInfo{}, err
		}
		return providers.ProviderInfo{}, nil
	}

	if err := onSources(dedupSources(results)); err != nil {
		return providers.ProviderInfo{}, err
	}
	info, err := s.answerer.GenerateStream(ctx, providers.GenerateRequest{
		Query:   req.Query,
		Context: s.buildContext(results),
		History: req.History,
	}, onToken)
	if err != nil {
		return info, fmt.Errorf("stream answer: %w", err)
	}
	s.writeAudit(ctx, req, results, info)
	return info, nil
}
