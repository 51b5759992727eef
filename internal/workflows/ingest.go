package workflows

import (
	"strings"
	"time"

	"docbrain/internal/activities"
	"docbrain/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestProgress = "GetIngestProgress"

// DocumentIngestWorkflow drives one document from stored bytes to searchable
// chunks: fetch, extract, redact, chunk, embed, persist. The document is
// marked processing at the start; any terminal failure routes through
// MarkDocumentFailedActivity so no partial chunks survive.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	progress := DocumentIngestProgress{
		DocumentID:  input.DocumentID,
		CurrentStep: "init",
		Status:      models.StatusProcessing,
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestProgress, func() (DocumentIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	fail := func(reason string) (string, error) {
		progress.Status = models.StatusFailed
		progress.FailReason = reason
		progress.Steps[progress.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "MarkDocumentFailedActivity", activities.MarkDocumentFailedInput{
			DocumentID: input.DocumentID,
			Reason:     reason,
		}).Get(ctx, nil)
		_ = workflow.ExecuteActivity(ctx, "WriteAuditActivity", activities.WriteAuditInput{
			UserID:       input.UserID,
			Action:       "document.ingest_failed",
			ResourceType: "document",
			ResourceID:   input.DocumentID,
			Details:      map[string]any{"reason": reason, "step": progress.CurrentStep},
		}).Get(ctx, nil)
		return models.StatusFailed, nil
	}

	step := func(name string) {
		progress.CurrentStep = name
		progress.Steps[name] = "processing"
	}
	done := func() { progress.Steps[progress.CurrentStep] = "done" }

	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: input.DocumentID,
		Status:     models.StatusProcessing,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	step("fetch_object")
	var fetched activities.FetchObjectOutput
	if err := workflow.ExecuteActivity(ctx, "FetchObjectActivity", activities.FetchObjectInput{
		StorageKey: input.StorageKey,
	}).Get(ctx, &fetched); err != nil {
		return fail("stored object unavailable: " + err.Error())
	}
	done()

	step("extract_text")
	var extracted activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Data:        fetched.Data,
	}).Get(ctx, &extracted); err != nil {
		if isNoTextError(err) {
			return fail("no extractable text found")
		}
		return fail("text extraction failed: " + err.Error())
	}
	done()

	step("redact")
	var redacted activities.RedactTextOutput
	if err := workflow.ExecuteActivity(ctx, "RedactTextActivity", activities.RedactTextInput{
		Text: extracted.Text,
	}).Get(ctx, &redacted); err != nil {
		// Only fail-closed mode surfaces redaction errors.
		return fail("redaction failed: " + err.Error())
	}
	progress.Note = redacted.Note
	done()

	step("chunk")
	var chunked activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{
		DocumentID:   input.DocumentID,
		Text:         redacted.Text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunked); err != nil {
		return fail("chunking failed: " + err.Error())
	}
	if len(chunked.Chunks) == 0 {
		return fail("no extractable text found")
	}
	progress.ChunkCount = len(chunked.Chunks)
	done()

	step("embed")
	var embedded activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{
		Chunks: chunked.Chunks,
	}).Get(ctx, &embedded); err != nil {
		return fail("embedding failed: " + err.Error())
	}
	done()

	step("persist")
	if err := workflow.ExecuteActivity(ctx, "PersistChunksActivity", activities.PersistChunksInput{
		DocumentID: input.DocumentID,
		Note:       redacted.Note,
		Chunks:     chunked.Chunks,
		Vectors:    embedded.Vectors,
	}).Get(ctx, nil); err != nil {
		return fail("persisting chunks failed: " + err.Error())
	}
	done()

	progress.Status = models.StatusCompleted
	_ = workflow.ExecuteActivity(ctx, "WriteAuditActivity", activities.WriteAuditInput{
		UserID:       input.UserID,
		Action:       "document.ingest_completed",
		ResourceType: "document",
		ResourceID:   input.DocumentID,
		Details: map[string]any{
			"chunk_count": len(chunked.Chunks),
			"provider":    embedded.ProviderName,
			"model":       embedded.Model,
		},
	}).Get(ctx, nil)

	return models.StatusCompleted, nil
}

func isNoTextError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no extractable text")
}
