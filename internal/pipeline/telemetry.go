package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ppiankov/shadowscore/internal/model"
)

// telemetry holds the metric instruments recorded for every scored run
type telemetry struct {
	runs      metric.Int64Counter
	findings  metric.Int64Counter
	precision metric.Float64Histogram
	recall    metric.Float64Histogram
}

func newTelemetry(meter metric.Meter) (*telemetry, error) {
	t := &telemetry{}
	var err error

	t.runs, err = meter.Int64Counter(
		"shadowscore.runs",
		metric.WithDescription("Number of audit runs scored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}

	t.findings, err = meter.Int64Counter(
		"shadowscore.findings",
		metric.WithDescription("Match results by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create findings counter: %w", err)
	}

	t.precision, err = meter.Float64Histogram(
		"shadowscore.precision",
		metric.WithDescription("Run precision from 0.0 to 1.0 (undefined runs are not recorded)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create precision histogram: %w", err)
	}

	t.recall, err = meter.Float64Histogram(
		"shadowscore.recall",
		metric.WithDescription("Run recall from 0.0 to 1.0 (undefined runs are not recorded)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall histogram: %w", err)
	}

	return t, nil
}

func (t *telemetry) record(ctx context.Context, run *model.AuditRun) {
	if t == nil {
		return
	}
	agent := metric.WithAttributes(attribute.String("agent.id", run.AgentID))

	t.runs.Add(ctx, 1, agent)
	if p := run.Metrics.Precision; p != nil {
		t.precision.Record(ctx, *p, agent)
	}
	if r := run.Metrics.Recall; r != nil {
		t.recall.Record(ctx, *r, agent)
	}

	counts := map[model.MatchKind]int64{}
	for _, m := range run.Matches {
		counts[m.Kind]++
	}
	for _, kind := range []model.MatchKind{model.MatchExact, model.MatchPartial, model.MatchFalsePositive, model.MatchFalseNegative} {
		if n := counts[kind]; n > 0 {
			t.findings.Add(ctx, n, metric.WithAttributes(
				attribute.String("agent.id", run.AgentID),
				attribute.String("match.kind", string(kind)),
			))
		}
	}
}
