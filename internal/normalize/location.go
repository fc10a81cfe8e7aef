package normalize

import (
	"regexp"
	"strings"
)

var (
	solFile      = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\.(?:sol|vy|rs|move|cairo)\b(?:#L\d+(?:-L?\d+)?)?`)
	scopedFn     = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)::([A-Za-z_][A-Za-z0-9_]*)`)
	memberCall   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9_]*)\.([a-z_][A-Za-z0-9_]*)\s*\(`)
	tickedCall   = regexp.MustCompile("`([a-zA-Z_][A-Za-z0-9_]*)\\s*\\([^`]*\\)`")
	bareIdent    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	bareCallHint = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(.*\)$`)
)

// locationKey joins a component and entry point into the canonical key
func locationKey(component, entrypoint string) string {
	component = strings.ToLower(strings.TrimSpace(component))
	entrypoint = strings.ToLower(strings.TrimSpace(entrypoint))
	switch {
	case component == "" && entrypoint == "":
		return ""
	case entrypoint == "":
		return component
	default:
		return component + "::" + entrypoint
	}
}

// parseLocationHint normalizes a structured location hint such as
// "Vault.sol#L120", "Vault::withdraw", "Vault.withdraw()" or "withdraw()"
func parseLocationHint(hint string) string {
	hint = strings.TrimSpace(strings.Trim(hint, "`"))
	if hint == "" {
		return ""
	}

	if key := locationFromText(hint); key != "" {
		return key
	}

	// Vault.withdraw without parentheses
	if comp, fn, ok := strings.Cut(hint, "."); ok && bareIdent.MatchString(comp) && bareIdent.MatchString(fn) {
		return locationKey(comp, fn)
	}
	if m := bareCallHint.FindStringSubmatch(hint); m != nil {
		return locationKey("", m[1])
	}
	if bareIdent.MatchString(hint) {
		return locationKey(hint, "")
	}
	return ""
}

// locationFromText extracts the most specific location mentioned in text.
// Returns "" when the text is too vague to localize.
func locationFromText(text string) string {
	if m := scopedFn.FindStringSubmatch(stripFileExt(text)); m != nil {
		return locationKey(m[1], m[2])
	}
	if m := memberCall.FindStringSubmatch(text); m != nil {
		return locationKey(m[1], m[2])
	}

	var component, entrypoint string
	if m := solFile.FindStringSubmatch(text); m != nil {
		component = m[1]
	}
	if m := tickedCall.FindStringSubmatch(text); m != nil {
		entrypoint = m[1]
	}
	return locationKey(component, entrypoint)
}

// stripFileExt turns "Vault.sol::withdraw" into "Vault::withdraw"
func stripFileExt(text string) string {
	return solFile.ReplaceAllStringFunc(text, func(m string) string {
		return solFile.FindStringSubmatch(m)[1]
	})
}
