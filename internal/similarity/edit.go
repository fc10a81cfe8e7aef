package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// EditDistance is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes
type EditDistance struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEditDistance creates the edit-distance backend
func NewEditDistance() *EditDistance {
	dmp := diffmatchpatch.New()
	// A timeout would make long diffs depend on wall-clock speed
	dmp.DiffTimeout = 0
	return &EditDistance{dmp: dmp}
}

// Name returns the backend name
func (e *EditDistance) Name() string {
	return "edit"
}

// Score computes normalized edit similarity
func (e *EditDistance) Score(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// Fixed argument order keeps the score symmetric
	if a > b {
		a, b = b, a
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}

	diffs := e.dmp.DiffMain(a, b, false)
	dist := e.dmp.DiffLevenshtein(diffs)

	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}
