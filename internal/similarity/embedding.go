package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/shadowscore/internal/cache"
	"github.com/ppiankov/shadowscore/internal/worker"
)

// Embedder turns texts into vectors, one per input, in input order
type Embedder interface {
	Name() string
	Model() string
	Endpoint() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	embedBatchSize = 64
	embedCacheTTL  = 30 * 24 * time.Hour
)

// Embedding scores summaries by cosine similarity of their embeddings.
// Vectors are fetched in Prepare; texts without a vector fall back to Jaccard.
type Embedding struct {
	embedder Embedder
	cache    cache.Cache
	limiter  *worker.Limiter
	fallback Similarity

	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewEmbedding wraps an embedder; c and limiter may be nil
func NewEmbedding(embedder Embedder, c cache.Cache, limiter *worker.Limiter) *Embedding {
	return &Embedding{
		embedder: embedder,
		cache:    c,
		limiter:  limiter,
		fallback: Jaccard{},
		vectors:  make(map[string][]float32),
	}
}

// Name returns "<backend>:<model>"
func (e *Embedding) Name() string {
	return e.embedder.Name() + ":" + e.embedder.Model()
}

// Prepare fetches vectors for every distinct non-empty text not yet known
func (e *Embedding) Prepare(ctx context.Context, texts []string) error {
	missing := e.missing(texts)
	if len(missing) == 0 {
		return nil
	}

	var toFetch []string
	for _, text := range missing {
		var vec []float32
		if cache.GetJSON(e.cache, e.cacheKey(text), &vec) && len(vec) > 0 {
			e.store(text, vec)
			continue
		}
		toFetch = append(toFetch, text)
	}

	for start := 0; start < len(toFetch); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		batch := toFetch[start:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, e.embedder.Endpoint()); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
		}

		vecs, err := e.embedder.Embed(ctx, batch)
		if err != nil {
			return fmt.Errorf("%s embeddings: %w", e.embedder.Name(), err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("%s embeddings: got %d vectors for %d texts", e.embedder.Name(), len(vecs), len(batch))
		}

		for i, text := range batch {
			e.store(text, vecs[i])
			if err := cache.SetJSON(e.cache, e.cacheKey(text), vecs[i], embedCacheTTL); err != nil {
				slog.Debug("embedding cache write failed", "error", err)
			}
		}
	}

	slog.Debug("embeddings prepared", "backend", e.Name(), "fetched", len(toFetch), "cached", len(missing)-len(toFetch))
	return nil
}

// Score returns cosine similarity clamped to [0,1]
func (e *Embedding) Score(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	e.mu.RLock()
	va, okA := e.vectors[a]
	vb, okB := e.vectors[b]
	e.mu.RUnlock()

	if !okA || !okB {
		return e.fallback.Score(a, b)
	}
	return cosine(va, vb)
}

func (e *Embedding) missing(texts []string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if _, ok := e.vectors[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Embedding) store(text string, vec []float32) {
	e.mu.Lock()
	e.vectors[text] = vec
	e.mu.Unlock()
}

func (e *Embedding) cacheKey(text string) string {
	return cache.Key("embedding", e.embedder.Name(), e.embedder.Model(), text)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}
