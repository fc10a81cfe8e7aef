package normalize

import (
	"fmt"
	"time"

	"github.com/ppiankov/shadowscore/internal/cache"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/taxonomy"
)

// Normalizer maps raw findings onto canonical FindingRecords using a fixed taxonomy.
// It never fails: unparseable input yields default fields plus warnings.
type Normalizer struct {
	taxonomy *taxonomy.Taxonomy
	cache    cache.Cache
	ttl      time.Duration
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithCache memoizes normalization results
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(n *Normalizer) {
		n.cache = c
		n.ttl = ttl
	}
}

// NewNormalizer creates a normalizer over tax (nil = embedded default)
func NewNormalizer(tax *taxonomy.Taxonomy, opts ...Option) *Normalizer {
	if tax == nil {
		tax = taxonomy.Default()
	}
	n := &Normalizer{taxonomy: tax}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Taxonomy returns the taxonomy the normalizer classifies against
func (n *Normalizer) Taxonomy() *taxonomy.Taxonomy {
	return n.taxonomy
}

// Result is a normalized record plus any recovered problems
type Result struct {
	Record   model.FindingRecord `json:"record"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Normalize converts one raw finding. Pure apart from optional memoization.
func (n *Normalizer) Normalize(raw model.RawFinding, origin model.Origin) Result {
	key := cache.Key("normalize", n.taxonomy.Version, string(origin),
		raw.ID, raw.Title, raw.Text, raw.Category, raw.Severity, raw.Location)

	var cached Result
	if cache.GetJSON(n.cache, key, &cached) {
		return cached
	}

	res := n.normalize(raw, origin)
	_ = cache.SetJSON(n.cache, key, res, n.ttl)
	return res
}

// NormalizeAll converts a batch; one bad entry never aborts the batch.
// Warnings are prefixed with the finding id.
func (n *Normalizer) NormalizeAll(raws []model.RawFinding, origin model.Origin) ([]model.FindingRecord, []string) {
	records := make([]model.FindingRecord, 0, len(raws))
	var warnings []string
	for _, raw := range raws {
		res := n.Normalize(raw, origin)
		records = append(records, res.Record)
		for _, w := range res.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s %s: %s", origin, res.Record.ID, w))
		}
	}
	return records, warnings
}

func (n *Normalizer) normalize(raw model.RawFinding, origin model.Origin) Result {
	var warnings []string
	rec := model.FindingRecord{
		ID:       raw.ID,
		Origin:   origin,
		Category: model.CategoryUnknown,
		Severity: model.SeverityInfo,
	}

	visible := visibleText(raw.Text)
	titleVisible := visibleText(raw.Title)
	text := cleanText(visible)
	title := cleanText(titleVisible)

	if text == "" && title == "" {
		warnings = append(warnings, "empty finding text; all fields defaulted")
	}
	if title == "" {
		title = deriveTitle(text)
	}
	rec.Title = title
	rec.SourceText = text

	// Category: structured hint first, then free text
	if raw.Category != "" {
		if c, ok := n.taxonomy.Lookup(raw.Category); ok {
			rec.Category = c
		} else if c := n.taxonomy.Classify(raw.Category); c != model.CategoryUnknown {
			rec.Category = c
		} else {
			warnings = append(warnings, fmt.Sprintf("category hint %q not in taxonomy %s", raw.Category, n.taxonomy.Version))
		}
	}
	if rec.Category == model.CategoryUnknown {
		rec.Category = n.taxonomy.Classify(title + " " + text)
	}

	// Severity: hint, then contest label, then default
	switch {
	case raw.Severity != "":
		sev, ok := ParseSeverity(raw.Severity)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unrecognized severity %q; defaulted to info", raw.Severity))
		}
		rec.Severity = sev
	default:
		if sev, ok := severityFromLabel(raw.ID, titleVisible, visible); ok {
			rec.Severity = sev
		}
	}

	// Location: hint, then the text before markdown stripping (backticks carry signal)
	if raw.Location != "" {
		rec.LocationKey = parseLocationHint(raw.Location)
		if rec.LocationKey == "" {
			warnings = append(warnings, fmt.Sprintf("location hint %q could not be normalized", raw.Location))
		}
	}
	if rec.LocationKey == "" {
		rec.LocationKey = locationFromText(titleVisible + "\n" + visible)
	}

	summarySource := title
	if summarySource == "" {
		summarySource = text
	}
	rec.RootCauseSummary = summarize(stripLabel(summarySource))

	return Result{Record: rec, Warnings: warnings}
}

// stripLabel removes a leading contest label so "H-01" does not pollute similarity
func stripLabel(s string) string {
	if loc := contestLabel.FindStringIndex(s); loc != nil {
		rest := s[loc[1]:]
		for len(rest) > 0 && (rest[0] == ']' || rest[0] == ' ' || rest[0] == ':') {
			rest = rest[1:]
		}
		return rest
	}
	return s
}
