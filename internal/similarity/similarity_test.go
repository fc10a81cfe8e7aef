package similarity

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/shadowscore/internal/cache"
	"github.com/ppiankov/shadowscore/internal/model"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJaccard(t *testing.T) {
	j := Jaccard{}

	if got := j.Score("reentrancy withdraw before balance update", "reentrancy withdraw before balance update"); got != 1 {
		t.Errorf("Expected 1 for identical summaries, got %f", got)
	}
	if got := j.Score("", ""); got != 0 {
		t.Errorf("Expected 0 for two empty summaries, got %f", got)
	}
	if got := j.Score("stale price", ""); got != 0 {
		t.Errorf("Expected 0 against empty, got %f", got)
	}

	// {a,b,c} vs {b,c,d}: 2/4
	if got := j.Score("a b c", "b c d"); !almost(got, 0.5) {
		t.Errorf("Expected 0.5, got %f", got)
	}
	if j.Score("oracle stale price", "price oracle manipulation") != j.Score("price oracle manipulation", "oracle stale price") {
		t.Error("Expected Jaccard to be symmetric")
	}
}

func TestEditDistance(t *testing.T) {
	e := NewEditDistance()

	if got := e.Score("kitten", "kitten"); got != 1 {
		t.Errorf("Expected 1 for identical, got %f", got)
	}
	if got := e.Score("", "x"); got != 0 {
		t.Errorf("Expected 0 against empty, got %f", got)
	}

	// kitten -> sitting is 3 edits over 7 runes
	got := e.Score("kitten", "sitting")
	if !almost(got, 1-3.0/7.0) {
		t.Errorf("Expected %f, got %f", 1-3.0/7.0, got)
	}
	if e.Score("sitting", "kitten") != got {
		t.Error("Expected edit similarity to be symmetric")
	}
	if got := e.Score("abc", "xyz"); got != 0 {
		t.Errorf("Expected 0 for disjoint strings, got %f", got)
	}
}

func TestNew_Backends(t *testing.T) {
	s, err := New(model.SimilarityConfig{}, nil, nil)
	if err != nil || s.Name() != "jaccard" {
		t.Errorf("Expected default jaccard, got %v, %v", s, err)
	}

	s, err = New(model.SimilarityConfig{Backend: "edit"}, nil, nil)
	if err != nil || s.Name() != "edit" {
		t.Errorf("Expected edit backend, got %v, %v", s, err)
	}

	if _, err := New(model.SimilarityConfig{Backend: "openai"}, nil, nil); err == nil {
		t.Error("Expected error for openai without API key")
	}

	s, err = New(model.SimilarityConfig{Backend: "ollama", Model: "nomic-embed-text"}, nil, nil)
	if err != nil || s.Name() != "ollama:nomic-embed-text" {
		t.Errorf("Expected ollama backend, got %v, %v", s, err)
	}

	if _, err := New(model.SimilarityConfig{Backend: "telepathy"}, nil, nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); !almost(got, 1) {
		t.Errorf("Expected 1, got %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("Expected 0, got %f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("Expected negative cosine clamped to 0, got %f", got)
	}
	if got := cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("Expected 0 for mismatched dimensions, got %f", got)
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("Expected path /api/embed, got %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("Expected model nomic-embed-text, got %s", req.Model)
		}

		resp := ollamaEmbedResponse{Model: req.Model}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i + 1), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(model.SimilarityConfig{BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}

	vecs, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 2 {
		t.Errorf("Unexpected vectors: %v", vecs)
	}
}

func TestOllamaEmbedder_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaError{Error: "model not found"})
	}))
	defer server.Close()

	embedder, _ := NewOllamaEmbedder(model.SimilarityConfig{BaseURL: server.URL, Model: "missing"})
	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "API error (404): model not found" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		// Out of order on purpose: the embedder must honor Index
		resp := openai.EmbeddingResponse{
			Object: "list",
			Data: []openai.Embedding{
				{Object: "embedding", Index: 1, Embedding: []float32{0, 1}},
				{Object: "embedding", Index: 0, Embedding: []float32{1, 0}},
			},
			Model: openai.SmallEmbedding3,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(model.SimilarityConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}

	vecs, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("Expected vectors in input order, got %v", vecs)
	}
}

type fakeEmbedder struct {
	calls   int32
	vectors map[string][]float32
}

func (f *fakeEmbedder) Name() string     { return "fake" }
func (f *fakeEmbedder) Model() string    { return "v1" }
func (f *fakeEmbedder) Endpoint() string { return "http://fake.local" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestEmbedding_PrepareAndScore(t *testing.T) {
	fake := &fakeEmbedder{vectors: map[string][]float32{
		"reentrancy withdraw": {1, 0},
		"reentrant withdraw":  {0.9, 0.1},
		"rounding error":      {0, 1},
	}}
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	e := NewEmbedding(fake, c, nil)

	texts := []string{"reentrancy withdraw", "reentrant withdraw", "rounding error", "", "reentrancy withdraw"}
	if err := Prepare(context.Background(), e, texts); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected a single batched call, got %d", fake.calls)
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 cached vectors, got %d", c.Len())
	}

	near := e.Score("reentrancy withdraw", "reentrant withdraw")
	far := e.Score("reentrancy withdraw", "rounding error")
	if near <= far {
		t.Errorf("Expected related summaries to score higher: %f <= %f", near, far)
	}
	if near != e.Score("reentrant withdraw", "reentrancy withdraw") {
		t.Error("Expected symmetric score")
	}

	// Unknown texts fall back to Jaccard
	if got := e.Score("stale price", "stale oracle price"); !almost(got, 2.0/3.0) {
		t.Errorf("Expected Jaccard fallback 0.667, got %f", got)
	}

	// Second prepare is served from memory
	if err := e.Prepare(context.Background(), texts); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected no new calls, got %d", fake.calls)
	}

	// A fresh backend over the same cache needs no API calls
	fresh := NewEmbedding(fake, c, nil)
	if err := fresh.Prepare(context.Background(), texts); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected cache hits, got %d calls", fake.calls)
	}
}

func TestPrepare_NoopForLexicalBackends(t *testing.T) {
	if err := Prepare(context.Background(), Jaccard{}, []string{"a"}); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
