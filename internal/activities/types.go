package activities

type FetchObjectInput struct {
	StorageKey string `json:"storage_key"`
}

type FetchObjectOutput struct {
	Data []byte `json:"data"`
}

type ExtractTextInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type RedactTextInput struct {
	Text string `json:"text"`
}

// Note is non-empty when redaction was skipped or failed open; it is
// recorded on the document so operators can see unredacted content paths.
type RedactTextOutput struct {
	Text string `json:"text"`
	Note string `json:"note,omitempty"`
}

type ChunkTextInput struct {
	DocumentID   string `json:"document_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type ChunkItem struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

type ChunkTextOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksInput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type PersistChunksInput struct {
	DocumentID string      `json:"document_id"`
	Note       string      `json:"note,omitempty"`
	Chunks     []ChunkItem `json:"chunks"`
	Vectors    [][]float32 `json:"vectors"`
}

type UpdateDocumentStatusInput struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type MarkDocumentFailedInput struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

type WriteAuditInput struct {
	UserID       string         `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
}
