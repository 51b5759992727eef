package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.FetchObjectActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.RedactTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.PersistChunksActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.MarkDocumentFailedActivity)
	w.RegisterActivity(a.WriteAuditActivity)
}
