package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/shadowscore/internal/input"
	"github.com/ppiankov/shadowscore/internal/model"
)

// Scorer scores one job into an audit run
type Scorer interface {
	ScoreJob(ctx context.Context, job ScoreJob) (*model.AuditRun, error)
}

// Appender records a scored run in the performance ledger
type Appender interface {
	Append(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)
}

// ScoreJob is one (contest, agent) scoring request
type ScoreJob struct {
	ContestID  string
	AgentID    string
	Predicted  []model.RawFinding
	Actual     []model.RawFinding
	Supersedes string
	Scorer     Scorer
}

// Execute executes the score job
func (j *ScoreJob) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &ScoreResult{Job: j, Error: err}
	}
	run, err := j.Scorer.ScoreJob(ctx, *j)
	if err != nil {
		return &ScoreResult{Job: j, Error: err}
	}
	return &ScoreResult{Job: j, Run: run}
}

// ScoreResult represents the result of a score job
type ScoreResult struct {
	Job   *ScoreJob
	Run   *model.AuditRun
	Entry *model.LedgerEntry // Set once the run is recorded
	Error error
}

// GetError returns the error from the score result
func (r *ScoreResult) GetError() error {
	return r.Error
}

// BatchProcessor scores independent jobs concurrently and records them in order
type BatchProcessor struct {
	scorer      Scorer
	ledger      Appender // nil disables recording
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(scorer Scorer, ledger Appender, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		scorer:      scorer,
		ledger:      ledger,
		concurrency: concurrency,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// Process scores jobs in parallel, then appends successful runs to the ledger
// in job order so sequence numbers do not depend on scheduling.
func (b *BatchProcessor) Process(ctx context.Context, jobs []ScoreJob) []*ScoreResult {
	if len(jobs) == 0 {
		return []*ScoreResult{}
	}

	poolJobs := make([]Job, len(jobs))
	for i := range jobs {
		job := jobs[i]
		job.Scorer = b.scorer
		poolJobs[i] = &job
	}

	results := NewPool(b.concurrency).Run(ctx, poolJobs)

	scoreResults := make([]*ScoreResult, len(results))
	for i, result := range results {
		scoreResults[i] = result.(*ScoreResult)
	}

	if b.ledger == nil {
		return scoreResults
	}
	for _, res := range scoreResults {
		if res.Error != nil {
			continue
		}
		entry, err := b.ledger.Append(ctx, model.EntryFromRun(res.Run, b.now()))
		if err != nil {
			res.Error = fmt.Errorf("record run %s: %w", res.Run.ID, err)
			b.logger.Warn("ledger append failed", "contest", res.Job.ContestID, "agent", res.Job.AgentID, "error", err)
			continue
		}
		res.Entry = &entry
	}

	return scoreResults
}

// ProcessFile reads a batch manifest and processes its jobs concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, manifestPath string) ([]*ScoreResult, error) {
	jobs, err := ReadJobsFromManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return b.Process(ctx, jobs), nil
}

// ReadJobsFromManifest loads a manifest and the finding files it references
func ReadJobsFromManifest(manifestPath string) ([]ScoreJob, error) {
	m, err := input.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	// Several jobs usually share one contest's ground truth
	loaded := make(map[string][]model.RawFinding)
	load := func(path string) ([]model.RawFinding, error) {
		if f, ok := loaded[path]; ok {
			return f, nil
		}
		f, err := input.LoadFindings(path)
		if err != nil {
			return nil, err
		}
		loaded[path] = f
		return f, nil
	}

	jobs := make([]ScoreJob, 0, len(m.Jobs))
	for i, mj := range m.Jobs {
		predicted, err := load(mj.Predicted)
		if err != nil {
			return nil, fmt.Errorf("job %d predicted: %w", i+1, err)
		}
		actual, err := load(mj.Actual)
		if err != nil {
			return nil, fmt.Errorf("job %d actual: %w", i+1, err)
		}
		jobs = append(jobs, ScoreJob{
			ContestID:  mj.ContestID,
			AgentID:    mj.AgentID,
			Predicted:  predicted,
			Actual:     actual,
			Supersedes: mj.Supersedes,
		})
	}
	return jobs, nil
}
