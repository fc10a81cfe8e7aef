package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/shadowscore/internal/match"
	"github.com/ppiankov/shadowscore/internal/model"
)

// Classifier turns a matching into credited results. It is a total function:
// every predicted id ends up exactly once as a pair or a false positive, and
// every actual id exactly once as a pair or a false negative.
type Classifier struct {
	policy model.Policy
}

// NewClassifier creates a classifier using the policy's thresholds and credits
func NewClassifier(policy model.Policy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify grades each matched pair and passes unmatched ids through.
// Results are ordered by predicted id, with false negatives last by actual id.
func (c *Classifier) Classify(res match.Result) []model.MatchResult {
	out := make([]model.MatchResult, 0, len(res.Pairs)*2+len(res.UnmatchedPredicted)+len(res.UnmatchedActual))

	for _, pair := range res.Pairs {
		out = append(out, c.grade(pair)...)
	}
	for _, id := range res.UnmatchedPredicted {
		out = append(out, model.MatchResult{
			PredictedID: id,
			Kind:        model.MatchFalsePositive,
			Reason:      "no matching actual finding",
		})
	}
	for _, id := range res.UnmatchedActual {
		out = append(out, model.MatchResult{
			ActualID: id,
			Kind:     model.MatchFalseNegative,
			Reason:   "not found by any prediction",
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aFN := a.Kind == model.MatchFalseNegative
		bFN := b.Kind == model.MatchFalseNegative
		if aFN != bFN {
			return !aFN
		}
		if a.PredictedID != b.PredictedID {
			return a.PredictedID < b.PredictedID
		}
		return a.ActualID < b.ActualID
	})
	return out
}

// grade returns one credited result, or an FP plus FN when the pair earns nothing
func (c *Classifier) grade(pair model.MatchCandidate) []model.MatchResult {
	switch {
	case pair.CategoryMatch && pair.LocationOverlap && pair.TextSimilarity >= c.policy.ExactTextThreshold:
		return []model.MatchResult{{
			PredictedID:  pair.PredictedID,
			ActualID:     pair.ActualID,
			Kind:         model.MatchExact,
			CreditWeight: clampCredit(c.policy.ExactCredit),
			Similarity:   pair.Similarity,
			Reason:       "same category, location and mechanism",
		}}

	case pair.CategoryMatch:
		return []model.MatchResult{{
			PredictedID:  pair.PredictedID,
			ActualID:     pair.ActualID,
			Kind:         model.MatchPartial,
			CreditWeight: clampCredit(c.policy.PartialCredit),
			Similarity:   pair.Similarity,
			Reason:       partialReason(pair, c.policy.ExactTextThreshold),
		}}
	}

	return []model.MatchResult{
		{
			PredictedID: pair.PredictedID,
			Kind:        model.MatchFalsePositive,
			Similarity:  pair.Similarity,
			Reason:      fmt.Sprintf("paired with %s but category differs", pair.ActualID),
		},
		{
			ActualID:   pair.ActualID,
			Kind:       model.MatchFalseNegative,
			Similarity: pair.Similarity,
			Reason:     fmt.Sprintf("paired with %s but category differs", pair.PredictedID),
		},
	}
}

func partialReason(pair model.MatchCandidate, threshold float64) string {
	locationOff := !pair.LocationOverlap
	mechanismOff := pair.TextSimilarity < threshold
	switch {
	case locationOff && mechanismOff:
		return fmt.Sprintf("same category; location and mechanism differ (text %.2f)", pair.TextSimilarity)
	case locationOff:
		return "same category and mechanism; location differs"
	default:
		return fmt.Sprintf("same category and location; mechanism differs (text %.2f)", pair.TextSimilarity)
	}
}

func clampCredit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
