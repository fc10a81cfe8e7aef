package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/shadowscore/internal/model"
)

// ValidationError reports input that cannot be scored without corrupting the
// metrics, such as duplicate finding ids within one origin.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid scoring input: " + strings.Join(e.Problems, "; ")
}

// validateRequest checks identifiers and id uniqueness per origin
func validateRequest(req Request) error {
	var problems []string
	if strings.TrimSpace(req.ContestID) == "" {
		problems = append(problems, "contest id is required")
	}
	if strings.TrimSpace(req.AgentID) == "" {
		problems = append(problems, "agent id is required")
	}
	if dups := duplicateIDs(req.Predicted); len(dups) > 0 {
		problems = append(problems, fmt.Sprintf("duplicate predicted ids: %s", strings.Join(dups, ", ")))
	}
	if dups := duplicateIDs(req.Actual); len(dups) > 0 {
		problems = append(problems, fmt.Sprintf("duplicate actual ids: %s", strings.Join(dups, ", ")))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func duplicateIDs(raws []model.RawFinding) []string {
	seen := make(map[string]int)
	for _, r := range raws {
		if id := strings.TrimSpace(r.ID); id != "" {
			seen[id]++
		}
	}

	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// assignIDs trims ids and gives id-less findings a positional id ("P-003"),
// skipping any id already taken by an explicit one.
func assignIDs(raws []model.RawFinding, prefix string) []model.RawFinding {
	out := make([]model.RawFinding, len(raws))
	taken := make(map[string]bool, len(raws))
	for i, r := range raws {
		r.ID = strings.TrimSpace(r.ID)
		out[i] = r
		if r.ID != "" {
			taken[r.ID] = true
		}
	}

	next := len(raws) + 1
	for i := range out {
		if out[i].ID != "" {
			continue
		}
		id := fmt.Sprintf("%s-%03d", prefix, i+1)
		for taken[id] {
			id = fmt.Sprintf("%s-%03d", prefix, next)
			next++
		}
		out[i].ID = id
		taken[id] = true
	}
	return out
}
