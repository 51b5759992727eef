package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"docbrain/internal/models"
)

// Entry is one chunk held by the in-memory index.
type Entry struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	UserID       string
	Content      string
	Vector       []float32
}

// MemoryIndex is a brute-force cosine similarity index. It backs tests and
// single-process development runs where Postgres is not available.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Add(entries ...Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
}

// RemoveDocument drops every entry for the given document.
func (m *MemoryIndex) RemoveDocument(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]models.ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]models.ChunkResult, 0, topK)
	for _, e := range m.entries {
		if q.DocumentID != "" && e.DocumentID != q.DocumentID {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		score := cosine(q.Vector, e.Vector)
		if score < q.Threshold {
			continue
		}
		results = append(results, models.ChunkResult{
			ChunkID:      e.ChunkID,
			DocumentID:   e.DocumentID,
			DocumentName: e.DocumentName,
			Content:      e.Content,
			Score:        score,
		})
	}
	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
