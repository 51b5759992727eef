package workflows

import (
	"context"
	"errors"
	"testing"

	"docbrain/internal/activities"
	"docbrain/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerIngestActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "FetchObjectActivity", func(context.Context, activities.FetchObjectInput) (activities.FetchObjectOutput, error) {
		return activities.FetchObjectOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "RedactTextActivity", func(context.Context, activities.RedactTextInput) (activities.RedactTextOutput, error) {
		return activities.RedactTextOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "PersistChunksActivity", func(context.Context, activities.PersistChunksInput) error { return nil })
	registerActivityName(env, "MarkDocumentFailedActivity", func(context.Context, activities.MarkDocumentFailedInput) error { return nil })
	registerActivityName(env, "WriteAuditActivity", func(context.Context, activities.WriteAuditInput) error { return nil })
}

func ingestInput() DocumentIngestInput {
	return DocumentIngestInput{
		DocumentID:   "doc-1",
		Filename:     "report.pdf",
		ContentType:  "application/pdf",
		StorageKey:   "documents/doc-1/original.pdf",
		UserID:       "u1",
		ChunkSize:    100,
		ChunkOverlap: 10,
	}
}

func threeChunks() []activities.ChunkItem {
	return []activities.ChunkItem{
		{ChunkID: "doc-1:0000", ChunkIndex: 0, Content: "first"},
		{ChunkID: "doc-1:0001", ChunkIndex: 1, Content: "second"},
		{ChunkID: "doc-1:0002", ChunkIndex: 2, Content: "third"},
	}
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, activities.UpdateDocumentStatusInput{DocumentID: "doc-1", Status: models.StatusProcessing}).Return(nil)
	env.OnActivity("FetchObjectActivity", mock.Anything, activities.FetchObjectInput{StorageKey: "documents/doc-1/original.pdf"}).Return(activities.FetchObjectOutput{Data: []byte("%PDF")}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "extracted body"}, nil)
	env.OnActivity("RedactTextActivity", mock.Anything, activities.RedactTextInput{Text: "extracted body"}).Return(activities.RedactTextOutput{Text: "redacted body"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, activities.ChunkTextInput{DocumentID: "doc-1", Text: "redacted body", ChunkSize: 100, ChunkOverlap: 10}).Return(activities.ChunkTextOutput{Chunks: threeChunks()}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, activities.EmbedChunksInput{Chunks: threeChunks()}).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}, {0.2}, {0.3}}, ProviderName: "fallback", Model: "deterministic-hash"}, nil)
	var persisted activities.PersistChunksInput
	env.OnActivity("PersistChunksActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(activities.PersistChunksInput)
	}).Return(nil)
	env.OnActivity("WriteAuditActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, ingestInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusCompleted, out)

	require.Len(t, persisted.Chunks, 3)
	for i, c := range persisted.Chunks {
		require.Equal(t, i, c.ChunkIndex)
	}
	require.Len(t, persisted.Vectors, 3)
}

func TestDocumentIngestWorkflowRedactionFallbackCompletesWithNote(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchObjectActivity", mock.Anything, mock.Anything).Return(activities.FetchObjectOutput{Data: []byte("x")}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "body"}, nil)
	env.OnActivity("RedactTextActivity", mock.Anything, mock.Anything).Return(activities.RedactTextOutput{Text: "body", Note: "redaction unavailable, stored original text: connection refused"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).Return(activities.ChunkTextOutput{Chunks: threeChunks()[:1]}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}}}, nil)
	var persisted activities.PersistChunksInput
	env.OnActivity("PersistChunksActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(activities.PersistChunksInput)
	}).Return(nil)
	env.OnActivity("WriteAuditActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, ingestInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusCompleted, out)
	require.Contains(t, persisted.Note, "redaction unavailable")
}

func TestDocumentIngestWorkflowNoTextFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchObjectActivity", mock.Anything, mock.Anything).Return(activities.FetchObjectOutput{Data: []byte("x")}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{}, errors.New("no extractable text found"))
	var failed activities.MarkDocumentFailedInput
	env.OnActivity("MarkDocumentFailedActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		failed = args.Get(1).(activities.MarkDocumentFailedInput)
	}).Return(nil)
	env.OnActivity("WriteAuditActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, ingestInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusFailed, out)
	require.Equal(t, "doc-1", failed.DocumentID)
	require.Contains(t, failed.Reason, "no extractable text")
}

func TestDocumentIngestWorkflowEmbedFailureCleansUp(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchObjectActivity", mock.Anything, mock.Anything).Return(activities.FetchObjectOutput{Data: []byte("x")}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "body"}, nil)
	env.OnActivity("RedactTextActivity", mock.Anything, mock.Anything).Return(activities.RedactTextOutput{Text: "body"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).Return(activities.ChunkTextOutput{Chunks: threeChunks()}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{}, errors.New("embedding backend down"))
	markCalled := false
	env.OnActivity("MarkDocumentFailedActivity", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		markCalled = true
	}).Return(nil)
	env.OnActivity("WriteAuditActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, ingestInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusFailed, out)
	require.True(t, markCalled, "failed ingestion must clean up through MarkDocumentFailedActivity")
	env.AssertNotCalled(t, "PersistChunksActivity", mock.Anything, mock.Anything)
}

func TestDocumentIngestWorkflowEmptyChunksFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("FetchObjectActivity", mock.Anything, mock.Anything).Return(activities.FetchObjectOutput{Data: []byte("x")}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{Text: "   "}, nil)
	env.OnActivity("RedactTextActivity", mock.Anything, mock.Anything).Return(activities.RedactTextOutput{Text: "   "}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).Return(activities.ChunkTextOutput{}, nil)
	env.OnActivity("MarkDocumentFailedActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteAuditActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, ingestInput())
	require.True(t, env.IsWorkflowCompleted())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusFailed, out)
}
