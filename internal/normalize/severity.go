package normalize

import (
	"regexp"
	"strings"

	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/taxonomy"
)

// severitySynonyms maps case-folded, token-joined severity strings onto the enum
var severitySynonyms = map[string]model.Severity{
	"critical":          model.SeverityCritical,
	"crit":              model.SeverityCritical,
	"c":                 model.SeverityCritical,
	"critical risk":     model.SeverityCritical,
	"critical severity": model.SeverityCritical,
	"severe":            model.SeverityCritical,

	"high":          model.SeverityHigh,
	"h":             model.SeverityHigh,
	"high risk":     model.SeverityHigh,
	"high severity": model.SeverityHigh,
	"critical high": model.SeverityHigh,
	"high critical": model.SeverityHigh,

	"medium":          model.SeverityMedium,
	"med":             model.SeverityMedium,
	"m":               model.SeverityMedium,
	"medium risk":     model.SeverityMedium,
	"medium severity": model.SeverityMedium,
	"moderate":        model.SeverityMedium,

	"low":               model.SeverityLow,
	"l":                 model.SeverityLow,
	"low risk":          model.SeverityLow,
	"low severity":      model.SeverityLow,
	"minor":             model.SeverityLow,
	"qa":                model.SeverityLow,
	"q":                 model.SeverityLow,
	"quality assurance": model.SeverityLow,

	"info":          model.SeverityInfo,
	"informational": model.SeverityInfo,
	"information":   model.SeverityInfo,
	"i":             model.SeverityInfo,
	"n":             model.SeverityInfo,
	"nc":            model.SeverityInfo,
	"non critical":  model.SeverityInfo,
	"note":          model.SeverityInfo,
	"none":          model.SeverityInfo,

	"gas":               model.SeverityGas,
	"g":                 model.SeverityGas,
	"gas optimization":  model.SeverityGas,
	"gas optimizations": model.SeverityGas,
	"gas saving":        model.SeverityGas,
	"gas savings":       model.SeverityGas,
}

// contestLabel matches issue labels such as "[H-01]", "M-2" or "QA-03" at the start of a title
var contestLabel = regexp.MustCompile(`(?i)^\s*\[?\s*(qa|nc|[chmlgiqn])\s*-\s*\d+`)

// ParseSeverity maps a free-form severity string onto the enum
func ParseSeverity(s string) (model.Severity, bool) {
	key := strings.Join(taxonomy.Tokenize(s), " ")
	if key == "" {
		return model.SeverityInfo, false
	}
	sev, ok := severitySynonyms[key]
	if !ok {
		return model.SeverityInfo, false
	}
	return sev, true
}

// severityFromLabel infers severity from a contest issue label in any of the candidates
func severityFromLabel(candidates ...string) (model.Severity, bool) {
	for _, c := range candidates {
		m := contestLabel.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		if sev, ok := ParseSeverity(m[1]); ok {
			return sev, true
		}
	}
	return "", false
}
