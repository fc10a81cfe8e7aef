package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/shadowscore/internal/cache"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/normalize"
	"github.com/ppiankov/shadowscore/internal/pipeline"
	"github.com/ppiankov/shadowscore/internal/similarity"
	"github.com/ppiankov/shadowscore/internal/taxonomy"
	"github.com/ppiankov/shadowscore/internal/worker"
)

// newEngine wires taxonomy, cache, similarity backend and policy from cfg
func newEngine(cfg *model.Config) (*pipeline.Engine, error) {
	tax, err := taxonomy.LoadOrDefault(cfg.Taxonomy.Path)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	var c cache.Cache
	if cfg.Cache.Enabled {
		c = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}

	limiter := newLimiter(cfg.Similarity)
	sim, err := similarity.New(cfg.Similarity, c, limiter)
	if err != nil {
		return nil, fmt.Errorf("similarity backend: %w", err)
	}

	return pipeline.NewEngine(cfg.Matching,
		pipeline.WithNormalizer(normalize.NewNormalizer(tax, normalize.WithCache(c, cfg.Cache.MemoryTTL))),
		pipeline.WithSimilarity(sim),
		pipeline.WithLogger(slog.Default()),
	)
}

// newLimiter builds the embedding rate limiter with per-host overrides
func newLimiter(cfg model.SimilarityConfig) *worker.Limiter {
	limiter := worker.NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	for _, hl := range cfg.HostLimits {
		if hl.Host == "" {
			continue
		}
		limiter.SetHostRate(hl.Host, hl.RequestsPerSecond, hl.BurstSize)
	}
	return limiter
}

// engineScorer adapts the engine to the batch processor
type engineScorer struct {
	engine *pipeline.Engine
}

func (s engineScorer) ScoreJob(ctx context.Context, job worker.ScoreJob) (*model.AuditRun, error) {
	return s.engine.ScoreRequest(ctx, pipeline.Request{
		ContestID:  job.ContestID,
		AgentID:    job.AgentID,
		Predicted:  job.Predicted,
		Actual:     job.Actual,
		Supersedes: job.Supersedes,
	})
}
