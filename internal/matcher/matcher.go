// Package matcher indexes templates by embedding and finds the candidates
// closest to a natural-language query.
package matcher

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/domainmodel"
	"intent-gateway/internal/llm"
	"intent-gateway/internal/template"
)

var ErrEmptyIndex = errors.New("EMPTY_TEMPLATE_INDEX")

// Candidate is one template scored against a query. Similarity is in [0, 1].
type Candidate struct {
	TemplateID string
	Similarity float64
	Lexical    bool // true when the score came from the lexical fallback
}

// Matcher holds the in-memory vector index over the template store. Safe for
// concurrent FindCandidates; BuildIndex swaps the index under a lock.
type Matcher struct {
	embedder llm.Embedder
	store    *template.Store
	domain   *domainmodel.Model
	cache    *VectorCache
	logger   logger.Logger

	mu      sync.RWMutex
	vectors map[string][]float64
	texts   map[string]string
}

// NewMatcher creates a matcher. cache may be nil when redis is disabled.
func NewMatcher(embedder llm.Embedder, store *template.Store, domain *domainmodel.Model, cache *VectorCache, log logger.Logger) *Matcher {
	return &Matcher{
		embedder: embedder,
		store:    store,
		domain:   domain,
		cache:    cache,
		logger:   log.WithFields(map[string]interface{}{"component": "matcher"}),
		vectors:  map[string][]float64{},
		texts:    map[string]string{},
	}
}

// BuildIndex embeds every template in the current store snapshot. Vectors
// found in the cache are reused. A single embedding failure fails the build;
// a partially indexed library would silently hide templates from matching.
func (m *Matcher) BuildIndex(ctx context.Context) error {
	templates := m.store.All()

	vectors := make(map[string][]float64, len(templates))
	texts := make(map[string]string, len(templates))

	for i := range templates {
		t := &templates[i]
		text := BuildEmbeddingText(t, m.domain)
		texts[t.ID] = text

		if m.cache != nil {
			key := m.cache.Key(t.ID, text)
			if vec := m.cache.Get(ctx, key); vec != nil {
				vectors[t.ID] = vec
				continue
			}
		}

		vec, err := m.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vectors[t.ID] = vec

		if m.cache != nil {
			m.cache.Put(ctx, m.cache.Key(t.ID, text), vec)
		}
	}

	m.mu.Lock()
	m.vectors = vectors
	m.texts = texts
	m.mu.Unlock()

	m.logger.Info("Template index built", map[string]interface{}{
		"templates": len(vectors),
	})
	return nil
}

// FindCandidates embeds the query once and returns the top k templates by
// similarity, descending, ties broken by template id ascending. When the
// embedding service fails the lexical fallback keeps matching alive at
// reduced quality.
func (m *Matcher) FindCandidates(ctx context.Context, query string, k int) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 && len(m.texts) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		k = 5
	}

	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("Embedding failed, using lexical fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return m.lexicalCandidates(query, k), nil
	}

	candidates := make([]Candidate, 0, len(m.vectors))
	for id, vec := range m.vectors {
		candidates = append(candidates, Candidate{
			TemplateID: id,
			Similarity: CosineSimilarity(queryVec, vec),
		})
	}
	sortCandidates(candidates)

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].TemplateID < candidates[j].TemplateID
	})
}

// CosineSimilarity maps the cosine of two vectors into [0, 1]. Mismatched or
// zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	score := (cos + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
