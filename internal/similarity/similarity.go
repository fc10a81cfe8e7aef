package similarity

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/shadowscore/internal/cache"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/taxonomy"
	"github.com/ppiankov/shadowscore/internal/worker"
)

// Similarity scores two root-cause summaries.
// Implementations must be deterministic and symmetric, returning a value in [0,1].
type Similarity interface {
	// Name identifies the backend in the audit run policy
	Name() string

	// Score compares two normalized summaries
	Score(a, b string) float64
}

// Preparer is implemented by backends that must fetch state (embeddings)
// before Score can be called. Score itself never performs I/O.
type Preparer interface {
	Prepare(ctx context.Context, texts []string) error
}

// Prepare calls s.Prepare when the backend needs it
func Prepare(ctx context.Context, s Similarity, texts []string) error {
	if p, ok := s.(Preparer); ok {
		return p.Prepare(ctx, texts)
	}
	return nil
}

// New builds the configured backend. Embedding backends share c for vectors
// and limiter for request pacing; both may be nil.
func New(cfg model.SimilarityConfig, c cache.Cache, limiter *worker.Limiter) (Similarity, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "jaccard":
		return Jaccard{}, nil

	case "edit", "levenshtein":
		return NewEditDistance(), nil

	case "openai":
		embedder, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return NewEmbedding(embedder, c, limiter), nil

	case "ollama":
		embedder, err := NewOllamaEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return NewEmbedding(embedder, c, limiter), nil

	default:
		return nil, fmt.Errorf("unknown similarity backend: %s (supported: jaccard, edit, openai, ollama)", cfg.Backend)
	}
}

// Jaccard is token-set overlap |A∩B| / |A∪B|. Two empty summaries score 0.
type Jaccard struct{}

// Name returns the backend name
func (Jaccard) Name() string {
	return "jaccard"
}

// Score computes token Jaccard
func (Jaccard) Score(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range taxonomy.Tokenize(s) {
		set[tok] = true
	}
	return set
}
