package score

import (
	"fmt"
	"math"
	"testing"

	"github.com/ppiankov/shadowscore/internal/model"
)

func findings(origin model.Origin, cat model.Category, n int, prefix string) []model.FindingRecord {
	out := make([]model.FindingRecord, n)
	for i := range out {
		out[i] = model.FindingRecord{ID: fmt.Sprintf("%s%d", prefix, i+1), Origin: origin, Category: cat, Severity: model.SeverityHigh}
	}
	return out
}

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected %s = %.4f, got null", name, want)
		return
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("Expected %s = %.4f, got %.4f", name, want, *got)
	}
}

func TestCalculate_ScenarioA_ExactMatches(t *testing.T) {
	pred := findings(model.OriginPredicted, "reentrancy", 6, "p")
	act := findings(model.OriginActual, "reentrancy", 5, "a")

	var matches []model.MatchResult
	for i := 1; i <= 5; i++ {
		matches = append(matches, model.MatchResult{
			PredictedID:  fmt.Sprintf("p%d", i),
			ActualID:     fmt.Sprintf("a%d", i),
			Kind:         model.MatchExact,
			CreditWeight: 1,
		})
	}
	matches = append(matches, model.MatchResult{PredictedID: "p6", Kind: model.MatchFalsePositive})

	m := NewCalculator().Calculate(pred, act, matches)

	approx(t, "precision", m.Precision, 5.0/6.0)
	approx(t, "recall", m.Recall, 1.0)
	approx(t, "f1", m.F1, 2*(5.0/6.0)/(5.0/6.0+1))
	if m.Exact != 5 || m.FalsePositives != 1 || m.FalseNegatives != 0 {
		t.Errorf("Unexpected counts: %+v", m.MetricSet)
	}
}

func TestCalculate_ScenarioB_PartialCredit(t *testing.T) {
	pred := findings(model.OriginPredicted, "oracle-manipulation", 3, "p")
	act := findings(model.OriginActual, "oracle-manipulation", 4, "a")

	matches := []model.MatchResult{
		{PredictedID: "p1", ActualID: "a1", Kind: model.MatchPartial, CreditWeight: 0.5},
		{PredictedID: "p2", Kind: model.MatchFalsePositive},
		{PredictedID: "p3", Kind: model.MatchFalsePositive},
		{ActualID: "a2", Kind: model.MatchFalseNegative},
		{ActualID: "a3", Kind: model.MatchFalseNegative},
		{ActualID: "a4", Kind: model.MatchFalseNegative},
	}

	m := NewCalculator().Calculate(pred, act, matches)

	if m.PredictedCredit != 0.5 || m.ActualCredit != 0.5 {
		t.Errorf("Expected +0.5 on both numerators, got %f / %f", m.PredictedCredit, m.ActualCredit)
	}
	approx(t, "precision", m.Precision, 0.5/3)
	approx(t, "recall", m.Recall, 0.5/4)
	if m.Partial != 1 {
		t.Errorf("Expected 1 partial, got %d", m.Partial)
	}
}

func TestCalculate_ScenarioC_EmptyPredictions(t *testing.T) {
	act := findings(model.OriginActual, "arithmetic", 3, "a")
	matches := []model.MatchResult{
		{ActualID: "a1", Kind: model.MatchFalseNegative},
		{ActualID: "a2", Kind: model.MatchFalseNegative},
		{ActualID: "a3", Kind: model.MatchFalseNegative},
	}

	m := NewCalculator().Calculate(nil, act, matches)

	if m.Precision != nil {
		t.Errorf("Expected null precision, got %f", *m.Precision)
	}
	approx(t, "recall", m.Recall, 0)
	if m.F1 != nil {
		t.Errorf("Expected null f1, got %f", *m.F1)
	}
}

func TestCalculate_BothEmpty(t *testing.T) {
	m := NewCalculator().Calculate(nil, nil, nil)

	if m.Precision != nil || m.Recall != nil || m.F1 != nil {
		t.Errorf("Expected all null metrics, got %+v", m.MetricSet)
	}
	if m.PerCategory != nil {
		t.Errorf("Expected no per-category breakdown, got %v", m.PerCategory)
	}
}

func TestCalculate_ZeroCreditF1(t *testing.T) {
	pred := findings(model.OriginPredicted, "reentrancy", 1, "p")
	act := findings(model.OriginActual, "arithmetic", 1, "a")
	matches := []model.MatchResult{
		{PredictedID: "p1", Kind: model.MatchFalsePositive},
		{ActualID: "a1", Kind: model.MatchFalseNegative},
	}

	m := NewCalculator().Calculate(pred, act, matches)

	approx(t, "precision", m.Precision, 0)
	approx(t, "recall", m.Recall, 0)
	approx(t, "f1", m.F1, 0)
}

func TestCalculate_PerCategory(t *testing.T) {
	pred := []model.FindingRecord{
		{ID: "p1", Category: "reentrancy"},
		{ID: "p2", Category: "reentrancy"},
		{ID: "p3", Category: "access-control"},
	}
	act := []model.FindingRecord{
		{ID: "a1", Category: "reentrancy"},
		{ID: "a2", Category: "arithmetic"},
	}
	matches := []model.MatchResult{
		{PredictedID: "p1", ActualID: "a1", Kind: model.MatchExact, CreditWeight: 1},
		{PredictedID: "p2", Kind: model.MatchFalsePositive},
		{PredictedID: "p3", Kind: model.MatchFalsePositive},
		{ActualID: "a2", Kind: model.MatchFalseNegative},
	}

	m := NewCalculator().Calculate(pred, act, matches)

	re := m.PerCategory["reentrancy"]
	approx(t, "reentrancy precision", re.Precision, 0.5)
	approx(t, "reentrancy recall", re.Recall, 1)
	if re.FalsePositives != 1 || re.Exact != 1 {
		t.Errorf("Unexpected reentrancy counts: %+v", re)
	}

	ac := m.PerCategory["access-control"]
	approx(t, "access-control precision", ac.Precision, 0)
	if ac.Recall != nil {
		t.Errorf("Expected null recall for category without actual findings")
	}

	ar := m.PerCategory["arithmetic"]
	if ar.Precision != nil {
		t.Errorf("Expected null precision for category without predictions")
	}
	approx(t, "arithmetic recall", ar.Recall, 0)
	if ar.FalseNegatives != 1 {
		t.Errorf("Expected 1 false negative for arithmetic, got %d", ar.FalseNegatives)
	}

	if len(m.PerCategory) != 3 {
		t.Errorf("Expected 3 categories, got %d", len(m.PerCategory))
	}
}

func TestCalculate_Bounds(t *testing.T) {
	pred := findings(model.OriginPredicted, "logic-error", 2, "p")
	act := findings(model.OriginActual, "logic-error", 2, "a")

	// Credits above 1 never push ratios outside [0,1]
	matches := []model.MatchResult{
		{PredictedID: "p1", ActualID: "a1", Kind: model.MatchExact, CreditWeight: 1},
		{PredictedID: "p2", ActualID: "a2", Kind: model.MatchExact, CreditWeight: 1.5},
	}

	m := NewCalculator().Calculate(pred, act, matches)
	for name, v := range map[string]*float64{"precision": m.Precision, "recall": m.Recall, "f1": m.F1} {
		if v == nil || *v < 0 || *v > 1 {
			t.Errorf("Expected %s in [0,1], got %v", name, v)
		}
	}
}

func TestF1(t *testing.T) {
	if F1(nil, model.Float(1)) != nil {
		t.Error("Expected nil F1 when precision is undefined")
	}
	approx(t, "f1", F1(model.Float(0.5), model.Float(0.5)), 0.5)
	approx(t, "f1", F1(model.Float(0), model.Float(0)), 0)
}
