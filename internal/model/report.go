package model

import "time"

// AuditRun is one persona's scored audit of one contest.
// It is built once by the engine and never mutated; re-scoring produces a new run.
type AuditRun struct {
	ID          string    `json:"id"`
	ContestID   string    `json:"contest_id"`
	AgentID     string    `json:"agent_id"`
	Date        time.Time `json:"date"`
	Fingerprint string    `json:"fingerprint"`          // sha256 over canonical inputs and policy
	Supersedes  string    `json:"supersedes,omitempty"` // Run this one corrects, if any

	Predicted []FindingRecord `json:"predicted"`
	Actual    []FindingRecord `json:"actual"`
	Matches   []MatchResult   `json:"matches"`
	Metrics   Metrics         `json:"metrics"`

	Policy   Policy   `json:"policy"`
	Warnings []string `json:"warnings,omitempty"` // Normalizer warnings, prefixed with the finding id
}

// Metrics holds the derived precision/recall figures of one run
type Metrics struct {
	MetricSet
	PerCategory map[Category]MetricSet `json:"per_category,omitempty"`
}

// MetricSet is precision/recall/F1 with the counts they were derived from.
// Nil pointers encode undefined values (serialized as JSON null).
type MetricSet struct {
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	F1        *float64 `json:"f1"`

	PredictedCount  int     `json:"predicted_count"`
	ActualCount     int     `json:"actual_count"`
	PredictedCredit float64 `json:"predicted_credit"` // Precision numerator
	ActualCredit    float64 `json:"actual_credit"`    // Recall numerator
	Exact           int     `json:"exact"`
	Partial         int     `json:"partial"`
	FalsePositives  int     `json:"false_positives"`
	FalseNegatives  int     `json:"false_negatives"`
}

// Policy records the tunable scoring parameters a run was produced with
type Policy struct {
	CategoryWeight     float64 `json:"category_weight" yaml:"category_weight" mapstructure:"category_weight"`
	LocationWeight     float64 `json:"location_weight" yaml:"location_weight" mapstructure:"location_weight"`
	TextWeight         float64 `json:"text_weight" yaml:"text_weight" mapstructure:"text_weight"`
	CandidateFloor     float64 `json:"candidate_floor" yaml:"candidate_floor" mapstructure:"candidate_floor"`
	ExactTextThreshold float64 `json:"exact_text_threshold" yaml:"exact_text_threshold" mapstructure:"exact_text_threshold"`
	ExactCredit        float64 `json:"exact_credit" yaml:"exact_credit" mapstructure:"exact_credit"`
	PartialCredit      float64 `json:"partial_credit" yaml:"partial_credit" mapstructure:"partial_credit"`
	Similarity         string  `json:"similarity" yaml:"-" mapstructure:"-"`        // Backend name
	TaxonomyVersion    string  `json:"taxonomy_version" yaml:"-" mapstructure:"-"`
}

// DefaultPolicy returns the standard scoring policy
func DefaultPolicy() Policy {
	return Policy{
		CategoryWeight:     0.4,
		LocationWeight:     0.3,
		TextWeight:         0.3,
		CandidateFloor:     0.35,
		ExactTextThreshold: 0.7,
		ExactCredit:        1.0,
		PartialCredit:      0.5,
	}
}

// Float returns a pointer to v, for building optional metric values
func Float(v float64) *float64 {
	return &v
}
