package similarity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/util"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder fetches embeddings from the OpenAI API (or a compatible endpoint)
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	baseURL string
	timeout time.Duration
}

// NewOpenAIEmbedder creates an OpenAI embedder
func NewOpenAIEmbedder(cfg model.SimilarityConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
		},
	}

	embedModel := cfg.Model
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   embedModel,
		baseURL: clientConfig.BaseURL,
		timeout: timeout,
	}, nil
}

// Name returns the backend name
func (p *OpenAIEmbedder) Name() string {
	return "openai"
}

// Model returns the embedding model
func (p *OpenAIEmbedder) Model() string {
	return p.model
}

// Endpoint returns the API base URL, used as the rate-limit key
func (p *OpenAIEmbedder) Endpoint() string {
	return p.baseURL
}

// Embed calls the embeddings endpoint once for the whole batch
func (p *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d for %d inputs", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return out, nil
}
