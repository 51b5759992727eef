package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type EmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextChunk is one retrieved chunk handed to the answer provider, tagged
// with the document it came from so answers can cite sources.
type ContextChunk struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
}

type GenerateRequest struct {
	Query   string         `json:"query"`
	Context []ContextChunk `json:"context"`
	History []Message      `json:"history"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// EmbeddingProvider converts a batch of texts into fixed-dimension vectors.
// Output order matches input order and every vector has the requested
// dimension.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// AnswerProvider synthesizes an answer grounded in the supplied context.
// GenerateStream emits the same content as Generate in incremental pieces;
// the accumulated stream equals the non-streaming result for the fallback
// variant (the remote model is not deterministic across calls).
type AnswerProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
	GenerateStream(ctx context.Context, req GenerateRequest, emit func(token string) error) (ProviderInfo, error)
}
