package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"docbrain/internal/util"
)

// Fallback is the local provider used when no remote provider is configured
// or the remote one has been demoted. Embeddings are derived from a hash of
// the input so the same text always maps to the same vector, and answers
// are extractive summaries of the retrieved context.
type Fallback struct {
	dim int
}

func NewFallback(dim int) *Fallback {
	if dim <= 0 {
		dim = 1536
	}
	return &Fallback{dim: dim}
}

func (f *Fallback) info() ProviderInfo {
	return ProviderInfo{Name: "fallback", Model: "deterministic-hash"}
}

func (f *Fallback) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.info(), err
	}
	dim := req.Dimension
	if dim <= 0 {
		dim = f.dim
	}
	out := make([][]float32, len(req.Inputs))
	for i, text := range req.Inputs {
		out[i] = deterministicVector(text, dim)
	}
	return out, f.info(), nil
}

// deterministicVector expands a text hash into a unit vector. Each block of
// the vector is seeded from sha256(text, blockIndex) so distinct texts land
// far apart while identical texts always coincide.
func deterministicVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))

	var sum float64
	for i := 0; i < dim; i += 8 {
		h := sha256.New()
		h.Write([]byte(normalized))
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		h.Write(idx[:])
		digest := h.Sum(nil)
		for j := 0; j < 8 && i+j < dim; j++ {
			bits := binary.BigEndian.Uint32(digest[j*4 : j*4+4])
			v := float64(bits)/float64(math.MaxUint32)*2 - 1
			vec[i+j] = float32(v)
			sum += v * v
		}
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (f *Fallback) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, f.info(), err
	}
	return GenerateResponse{Text: extractiveAnswer(req)}, f.info(), nil
}

// GenerateStream emits the extractive answer in fixed-size pieces so the
// accumulated stream equals the Generate output for the same request.
func (f *Fallback) GenerateStream(ctx context.Context, req GenerateRequest, emit func(token string) error) (ProviderInfo, error) {
	text := extractiveAnswer(req)
	const pieceRunes = 24
	runes := []rune(text)
	for start := 0; start < len(runes); start += pieceRunes {
		if err := ctx.Err(); err != nil {
			return f.info(), err
		}
		end := start + pieceRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := emit(string(runes[start:end])); err != nil {
			return f.info(), err
		}
	}
	return f.info(), nil
}

// extractiveAnswer builds a templated answer from the highest-ranked
// context chunks. No model is involved, so the wording is deliberately
// plain and always names its sources.
func extractiveAnswer(req GenerateRequest) string {
	if len(req.Context) == 0 {
		return "I could not find relevant information in the ingested documents to answer that question."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the ingested documents, here is what relates to %q:\n\n", util.Snippet(req.Query, 120))

	seen := make(map[string]bool)
	var names []string
	for i, c := range req.Context {
		fmt.Fprintf(&b, "%d. %s (from %s)\n", i+1, util.Snippet(c.Text, 300), c.DocumentName)
		if !seen[c.DocumentName] {
			seen[c.DocumentName] = true
			names = append(names, c.DocumentName)
		}
	}
	fmt.Fprintf(&b, "\nSources: %s", strings.Join(names, ", "))
	return b.String()
}
