package workflows

// DocumentIngestInput carries everything the ingestion workflow needs; the
// raw bytes stay in the object store and are fetched by activity.
type DocumentIngestInput struct {
	DocumentID   string `json:"document_id"`
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	StorageKey   string `json:"storage_key"`
	UserID       string `json:"user_id,omitempty"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// DocumentIngestProgress is served through the workflow query handler.
type DocumentIngestProgress struct {
	DocumentID  string            `json:"document_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	ChunkCount  int               `json:"chunk_count"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Note        string            `json:"note,omitempty"`
	Steps       map[string]string `json:"steps"`
}
