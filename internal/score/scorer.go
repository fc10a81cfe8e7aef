package score

import (
	"math"

	"github.com/ppiankov/shadowscore/internal/model"
)

// Calculator aggregates credited match results into precision, recall and F1
type Calculator struct{}

// NewCalculator creates a new metrics calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate computes overall and per-category metrics for one run.
// Precision is undefined (nil) for an empty prediction set, recall for an
// empty ground truth.
func (c *Calculator) Calculate(predicted, actual []model.FindingRecord, matches []model.MatchResult) model.Metrics {
	predCat := make(map[string]model.Category, len(predicted))
	actCat := make(map[string]model.Category, len(actual))

	overall := tally{predicted: len(predicted), actual: len(actual)}
	perCat := make(map[model.Category]*tally)
	bucket := func(cat model.Category) *tally {
		t, ok := perCat[cat]
		if !ok {
			t = &tally{}
			perCat[cat] = t
		}
		return t
	}

	for _, r := range predicted {
		predCat[r.ID] = r.Category
		bucket(r.Category).predicted++
	}
	for _, r := range actual {
		actCat[r.ID] = r.Category
		bucket(r.Category).actual++
	}

	for _, m := range matches {
		switch m.Kind {
		case model.MatchExact, model.MatchPartial:
			overall.addPair(m)
			// Credit lands on each side's own category
			p := bucket(predCat[m.PredictedID])
			p.predCredit += m.CreditWeight
			p.countKind(m.Kind)
			bucket(actCat[m.ActualID]).actCredit += m.CreditWeight
		case model.MatchFalsePositive:
			overall.fp++
			bucket(predCat[m.PredictedID]).fp++
		case model.MatchFalseNegative:
			overall.fn++
			bucket(actCat[m.ActualID]).fn++
		}
	}

	metrics := model.Metrics{MetricSet: overall.metricSet()}
	if len(perCat) > 0 {
		metrics.PerCategory = make(map[model.Category]model.MetricSet, len(perCat))
		for cat, t := range perCat {
			metrics.PerCategory[cat] = t.metricSet()
		}
	}
	return metrics
}

// F1 returns the harmonic mean; 0 when both inputs are 0, nil when either is undefined
func F1(precision, recall *float64) *float64 {
	if precision == nil || recall == nil {
		return nil
	}
	p, r := *precision, *recall
	if p+r == 0 {
		return model.Float(0)
	}
	return model.Float(2 * p * r / (p + r))
}

// Ratio returns num/den bounded to [0,1], or nil when den is 0
func Ratio(num float64, den int) *float64 {
	if den == 0 {
		return nil
	}
	return model.Float(math.Max(0, math.Min(1, num/float64(den))))
}

type tally struct {
	predicted, actual     int
	predCredit, actCredit float64
	exact, partial        int
	fp, fn                int
}

func (t *tally) addPair(m model.MatchResult) {
	t.predCredit += m.CreditWeight
	t.actCredit += m.CreditWeight
	t.countKind(m.Kind)
}

func (t *tally) countKind(kind model.MatchKind) {
	if kind == model.MatchExact {
		t.exact++
	} else {
		t.partial++
	}
}

func (t *tally) metricSet() model.MetricSet {
	precision := Ratio(t.predCredit, t.predicted)
	recall := Ratio(t.actCredit, t.actual)
	return model.MetricSet{
		Precision:       precision,
		Recall:          recall,
		F1:              F1(precision, recall),
		PredictedCount:  t.predicted,
		ActualCount:     t.actual,
		PredictedCredit: t.predCredit,
		ActualCredit:    t.actCredit,
		Exact:           t.exact,
		Partial:         t.partial,
		FalsePositives:  t.fp,
		FalseNegatives:  t.fn,
	}
}
