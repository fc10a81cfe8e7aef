package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/shadowscore/internal/classify"
	"github.com/ppiankov/shadowscore/internal/match"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/normalize"
	"github.com/ppiankov/shadowscore/internal/score"
	"github.com/ppiankov/shadowscore/internal/similarity"
)

const instrumentationName = "github.com/ppiankov/shadowscore/internal/pipeline"

// Engine scores one persona's findings against a contest's published findings.
// Scoring is pure given the clock and id generator; only embedding backends do I/O.
type Engine struct {
	policy     model.Policy
	normalizer *normalize.Normalizer
	sim        similarity.Similarity
	classifier *classify.Classifier
	calculator *score.Calculator

	now    func() time.Time
	newID  func() string
	meter  metric.Meter
	tracer trace.Tracer
	tel    *telemetry
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the run timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides audit run id generation
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithNormalizer sets the normalizer (and with it the taxonomy)
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) { e.normalizer = n }
}

// WithSimilarity sets the root-cause text similarity backend
func WithSimilarity(s similarity.Similarity) Option {
	return func(e *Engine) { e.sim = s }
}

// WithMeter records run metrics on meter instead of the global provider
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithTracer records scoring spans on tracer instead of the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a scoring engine for policy
func NewEngine(policy model.Policy, opts ...Option) (*Engine, error) {
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}

	e := &Engine{
		policy:     policy,
		classifier: classify.NewClassifier(policy),
		calculator: score.NewCalculator(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.normalizer == nil {
		e.normalizer = normalize.NewNormalizer(nil)
	}
	if e.sim == nil {
		e.sim = similarity.Jaccard{}
	}
	if e.meter == nil {
		e.meter = otel.Meter(instrumentationName)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	tel, err := newTelemetry(e.meter)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	e.tel = tel

	e.policy.Similarity = e.sim.Name()
	e.policy.TaxonomyVersion = e.normalizer.Taxonomy().Version

	return e, nil
}

// Policy returns the effective policy, including backend name and taxonomy version
func (e *Engine) Policy() model.Policy {
	return e.policy
}

// Request is one scoring job
type Request struct {
	ContestID  string
	AgentID    string
	Predicted  []model.RawFinding
	Actual     []model.RawFinding
	Supersedes string // Id of the run this one corrects, if any
}

// Score builds an AuditRun for one agent on one contest
func (e *Engine) Score(contestID, agentID string, predicted, actual []model.RawFinding) (*model.AuditRun, error) {
	return e.ScoreRequest(context.Background(), Request{
		ContestID: contestID,
		AgentID:   agentID,
		Predicted: predicted,
		Actual:    actual,
	})
}

// ScoreRequest scores req. ctx bounds only embedding lookups.
func (e *Engine) ScoreRequest(ctx context.Context, req Request) (*model.AuditRun, error) {
	ctx, span := e.tracer.Start(ctx, "shadowscore.score", trace.WithAttributes(
		attribute.String("contest.id", req.ContestID),
		attribute.String("agent.id", req.AgentID),
		attribute.Int("findings.predicted", len(req.Predicted)),
		attribute.Int("findings.actual", len(req.Actual)),
	))
	defer span.End()

	run, err := e.score(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if p := run.Metrics.Precision; p != nil {
		span.SetAttributes(attribute.Float64("score.precision", *p))
	}
	if r := run.Metrics.Recall; r != nil {
		span.SetAttributes(attribute.Float64("score.recall", *r))
	}
	span.SetAttributes(attribute.String("audit_run.id", run.ID))
	span.SetStatus(codes.Ok, "")

	e.tel.record(ctx, run)
	return run, nil
}

func (e *Engine) score(ctx context.Context, req Request) (*model.AuditRun, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	predicted, predWarnings := e.normalizer.NormalizeAll(assignIDs(req.Predicted, "P"), model.OriginPredicted)
	actual, actWarnings := e.normalizer.NormalizeAll(assignIDs(req.Actual, "A"), model.OriginActual)
	warnings := append(predWarnings, actWarnings...)
	for _, w := range warnings {
		e.logger.Debug("normalizer warning", "contest", req.ContestID, "agent", req.AgentID, "warning", w)
	}

	if err := similarity.Prepare(ctx, e.sim, summaries(predicted, actual)); err != nil {
		return nil, fmt.Errorf("prepare similarity: %w", err)
	}

	matched := match.NewMatcher(e.policy, e.sim).Match(predicted, actual)
	results := e.classifier.Classify(matched)
	metrics := e.calculator.Calculate(predicted, actual, results)

	fingerprint, err := Fingerprint(req.ContestID, req.AgentID, predicted, actual, e.policy)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	run := &model.AuditRun{
		ID:          e.newID(),
		ContestID:   req.ContestID,
		AgentID:     req.AgentID,
		Date:        e.now().UTC(),
		Fingerprint: fingerprint,
		Supersedes:  req.Supersedes,
		Predicted:   predicted,
		Actual:      actual,
		Matches:     results,
		Metrics:     metrics,
		Policy:      e.policy,
		Warnings:    warnings,
	}

	e.logger.Debug("scored run",
		"run", run.ID,
		"contest", run.ContestID,
		"agent", run.AgentID,
		"candidates", matched.CandidateCount,
		"pairs", len(matched.Pairs),
	)
	return run, nil
}

// summaries collects the non-empty root-cause texts of both sides
func summaries(predicted, actual []model.FindingRecord) []string {
	out := make([]string, 0, len(predicted)+len(actual))
	for _, sides := range [][]model.FindingRecord{predicted, actual} {
		for _, r := range sides {
			if r.RootCauseSummary != "" {
				out = append(out, r.RootCauseSummary)
			}
		}
	}
	return out
}

// fingerprintInput is the canonical form hashed into a run fingerprint.
// Run id and date are excluded so re-scoring identical input reproduces it.
type fingerprintInput struct {
	ContestID string                `json:"contest_id"`
	AgentID   string                `json:"agent_id"`
	Predicted []model.FindingRecord `json:"predicted"`
	Actual    []model.FindingRecord `json:"actual"`
	Policy    model.Policy          `json:"policy"`
}

// Fingerprint returns the hex sha256 of the canonical scoring input
func Fingerprint(contestID, agentID string, predicted, actual []model.FindingRecord, policy model.Policy) (string, error) {
	data, err := json.Marshal(fingerprintInput{
		ContestID: contestID,
		AgentID:   agentID,
		Predicted: predicted,
		Actual:    actual,
		Policy:    policy,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ValidatePolicy rejects weights and thresholds outside their ranges
func ValidatePolicy(p model.Policy) error {
	var problems []string
	for name, v := range map[string]float64{
		"category_weight":      p.CategoryWeight,
		"location_weight":      p.LocationWeight,
		"text_weight":          p.TextWeight,
		"candidate_floor":      p.CandidateFloor,
		"exact_text_threshold": p.ExactTextThreshold,
		"exact_credit":         p.ExactCredit,
		"partial_credit":       p.PartialCredit,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be within [0,1], got %g", name, v))
		}
	}
	if p.CategoryWeight+p.LocationWeight+p.TextWeight == 0 {
		problems = append(problems, "at least one similarity weight must be positive")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ValidationError{Problems: problems}
	}
	return nil
}
