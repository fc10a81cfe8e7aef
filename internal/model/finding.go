package model

import "strings"

// Origin marks which side of an audit run a finding belongs to
type Origin string

const (
	OriginPredicted Origin = "predicted" // Produced by a persona's independent review
	OriginActual    Origin = "actual"    // Published ground truth for the contest
)

// IsValid reports whether the origin is one of the two known sides
func (o Origin) IsValid() bool {
	return o == OriginPredicted || o == OriginActual
}

// Category is an identifier from the closed vulnerability taxonomy.
// Values are owned by the taxonomy package; the model only knows "unknown".
type Category string

// CategoryUnknown is assigned when no taxonomy entry matches
const CategoryUnknown Category = "unknown"

func (c Category) String() string {
	return string(c)
}

// Severity is the ordered severity enum: critical > high > medium > low > info > gas
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
	SeverityGas      Severity = "gas"
)

var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
	SeverityGas:      0,
}

// IsValid returns true if the severity is one of the defined levels
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the ordinal position of the severity (gas = 0, critical = 5).
// Invalid severities rank as info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityInfo]
}

func (s Severity) String() string {
	return string(s)
}

// CompareSeverity returns a negative number when a < b, zero when equal, positive when a > b
func CompareSeverity(a, b Severity) int {
	return a.Rank() - b.Rank()
}

// FindingRecord is the canonical form of one predicted or ground-truth finding
type FindingRecord struct {
	ID               string   `json:"id"`
	Origin           Origin   `json:"origin"`
	Category         Category `json:"category"`
	Severity         Severity `json:"severity"`
	LocationKey      string   `json:"location_key,omitempty"`       // component::entrypoint, empty when too vague
	RootCauseSummary string   `json:"root_cause_summary,omitempty"` // Used for similarity only, never shown as ground truth
	Title            string   `json:"title,omitempty"`
	SourceText       string   `json:"source_text,omitempty"` // Cleaned input text
}

// LocationParts splits a location key into its component and entry point.
// A key without "::" is a component-only key.
func (r FindingRecord) LocationParts() (component, entrypoint string) {
	if r.LocationKey == "" {
		return "", ""
	}
	component, entrypoint, _ = strings.Cut(r.LocationKey, "::")
	return component, entrypoint
}

// RawFinding is one input finding as it appears in a JSON/YAML collection.
// Every field except Text is an optional hint.
type RawFinding struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Text     string `json:"text" yaml:"text"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}
