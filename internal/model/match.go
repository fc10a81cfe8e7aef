package model

// MatchCandidate is a scored pairing possibility between one predicted and one actual finding.
// Candidates only live for the duration of the matching step.
type MatchCandidate struct {
	PredictedID     string  `json:"predicted_id"`
	ActualID        string  `json:"actual_id"`
	Similarity      float64 `json:"similarity"`      // Combined weighted score in [0,1]
	CategoryMatch   bool    `json:"category_match"`
	LocationOverlap bool    `json:"location_overlap"`
	LocationScore   float64 `json:"location_score"`  // 1 same site, 0.5 partial, 0 none
	TextSimilarity  float64 `json:"text_similarity"` // Root-cause summary similarity
}

// MatchKind classifies a resolved match
type MatchKind string

const (
	MatchExact         MatchKind = "exact"
	MatchPartial       MatchKind = "partial"
	MatchFalsePositive MatchKind = "false_positive"
	MatchFalseNegative MatchKind = "false_negative"
)

// IsPair reports whether the kind represents a credited predicted/actual pair
func (k MatchKind) IsPair() bool {
	return k == MatchExact || k == MatchPartial
}

// MatchResult is the outcome of resolving candidates into a matching.
// For false positives ActualID is empty, for false negatives PredictedID is empty.
type MatchResult struct {
	PredictedID  string    `json:"predicted_id,omitempty"`
	ActualID     string    `json:"actual_id,omitempty"`
	Kind         MatchKind `json:"kind"`
	CreditWeight float64   `json:"credit_weight"`
	Similarity   float64   `json:"similarity,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}
