package activities

import (
	"context"
	"fmt"

	"docbrain/internal/chunker"
	"docbrain/internal/config"
	"docbrain/internal/extract"
	"docbrain/internal/models"
	"docbrain/internal/objectstore"
	"docbrain/internal/providers"
	"docbrain/internal/redact"
	"docbrain/internal/storage"
	"docbrain/internal/util"
	"docbrain/internal/vector"
)

type Activities struct {
	cfg       config.Config
	docRepo   *storage.DocumentRepo
	chunkRepo *storage.ChunkRepo
	auditRepo *storage.AuditRepo
	objects   *objectstore.Store
	redactor  *redact.Client
	embedder  *providers.EmbedSwitcher
}

func New(cfg config.Config, db *storage.DB, objects *objectstore.Store, redactor *redact.Client, embedder *providers.EmbedSwitcher) *Activities {
	return &Activities{
		cfg:       cfg,
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		auditRepo: storage.NewAuditRepo(db),
		objects:   objects,
		redactor:  redactor,
		embedder:  embedder,
	}
}

func (a *Activities) FetchObjectActivity(ctx context.Context, in FetchObjectInput) (FetchObjectOutput, error) {
	_ = ctx
	data, err := a.objects.Get(in.StorageKey)
	if err != nil {
		return FetchObjectOutput{}, fmt.Errorf("fetch stored object: %w", err)
	}
	return FetchObjectOutput{Data: data}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	kind, err := extract.Detect(in.Filename, in.ContentType)
	if err != nil {
		return ExtractTextOutput{}, err
	}
	text, err := extract.Text(in.Data, kind)
	if err != nil {
		return ExtractTextOutput{}, err
	}
	return ExtractTextOutput{Text: text}, nil
}

func (a *Activities) RedactTextActivity(ctx context.Context, in RedactTextInput) (RedactTextOutput, error) {
	text, note, err := a.redactor.Redact(ctx, in.Text)
	if err != nil {
		return RedactTextOutput{}, err
	}
	return RedactTextOutput{Text: text, Note: note}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	pieces := chunker.Split(in.Text, in.ChunkSize, in.ChunkOverlap)
	chunks := make([]ChunkItem, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, ChunkItem{
			// Deterministic id keeps re-ingestion idempotent.
			ChunkID:    fmt.Sprintf("%s:%04d", in.DocumentID, i),
			ChunkIndex: i,
			Content:    p,
		})
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	inputs := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		inputs = append(inputs, c.Content)
	}
	vecs, info, err := a.embedder.Embed(ctx, providers.EmbedRequest{
		Inputs:    inputs,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(in.Chunks) {
		return EmbedChunksOutput{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(in.Chunks))
	}
	for i, v := range vecs {
		if len(v) != a.cfg.EmbedDim {
			return EmbedChunksOutput{}, fmt.Errorf("embed chunks: vector %d has dimension %d, want %d", i, len(v), a.cfg.EmbedDim)
		}
	}
	return EmbedChunksOutput{Vectors: vecs, ProviderName: info.Name, Model: info.Model}, nil
}

// PersistChunksActivity writes all chunks and marks the document completed
// in one transaction. Either everything lands or the document stays
// processing for the failure path to clean up.
func (a *Activities) PersistChunksActivity(ctx context.Context, in PersistChunksInput) error {
	if len(in.Chunks) != len(in.Vectors) {
		return fmt.Errorf("%w: %d chunks with %d vectors", util.ErrValidation, len(in.Chunks), len(in.Vectors))
	}
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		records = append(records, storage.ChunkRecord{
			ChunkID:    c.ChunkID,
			DocumentID: in.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Embedding:  vector.ToLiteral(in.Vectors[i]),
		})
	}
	return a.chunkRepo.InsertDocumentChunks(ctx, in.DocumentID, in.Note, records)
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	return a.docRepo.UpdateStatus(ctx, in.DocumentID, in.Status, in.ErrorMessage)
}

// MarkDocumentFailedActivity removes any chunks written so far and marks
// the document failed, so a failed ingestion never leaves partial chunks
// behind.
func (a *Activities) MarkDocumentFailedActivity(ctx context.Context, in MarkDocumentFailedInput) error {
	return a.chunkRepo.DeleteDocumentChunks(ctx, in.DocumentID, in.Reason)
}

func (a *Activities) WriteAuditActivity(ctx context.Context, in WriteAuditInput) error {
	return a.auditRepo.Insert(ctx, models.AuditEntry{
		UserID:       in.UserID,
		Action:       in.Action,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Details:      in.Details,
	})
}
