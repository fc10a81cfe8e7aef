package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/shadowscore/internal/model"
)

// Average is the mean of precision, recall and F1 over a window of entries.
// Undefined values are excluded from their own mean; a mean with no defined
// values is nil.
type Average struct {
	AgentID   string    `json:"agent_id"`
	Entries   int       `json:"entries"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	Precision *float64  `json:"precision"`
	Recall    *float64  `json:"recall"`
	F1        *float64  `json:"f1"`
}

// Point is one entry of a rolling series with the average of the window ending at it
type Point struct {
	Seq        int64           `json:"seq"`
	AuditRunID string          `json:"audit_run_id"`
	ContestID  string          `json:"contest_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Run        model.MetricSet `json:"run"`
	Rolling    Average         `json:"rolling"`
}

// Effective loads an agent's entries and drops those superseded by a later correction
func Effective(ctx context.Context, s Store, agentID string) ([]model.LedgerEntry, error) {
	entries, err := s.Entries(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return SkipSuperseded(entries), nil
}

// SkipSuperseded removes every entry whose run id is named by another entry's Supersedes
func SkipSuperseded(entries []model.LedgerEntry) []model.LedgerEntry {
	superseded := make(map[string]bool)
	for _, e := range entries {
		if e.Supersedes != "" {
			superseded[e.Supersedes] = true
		}
	}

	out := make([]model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if !superseded[e.AuditRunID] {
			out = append(out, e)
		}
	}
	return out
}

// MovingAverage averages the last n entries (n <= 0 means all)
func MovingAverage(entries []model.LedgerEntry, n int) Average {
	return average(lastN(entries, n), func(e model.LedgerEntry) (model.MetricSet, bool) {
		return e.Metrics.MetricSet, true
	})
}

// Series returns one point per entry with the rolling average over the preceding n entries
func Series(entries []model.LedgerEntry, n int) []Point {
	points := make([]Point, 0, len(entries))
	for i, e := range entries {
		start := 0
		if n > 0 && i+1 > n {
			start = i + 1 - n
		}
		points = append(points, Point{
			Seq:        e.Seq,
			AuditRunID: e.AuditRunID,
			ContestID:  e.ContestID,
			Timestamp:  e.Timestamp,
			Run:        e.Metrics.MetricSet,
			Rolling:    MovingAverage(entries[start:i+1], 0),
		})
	}
	return points
}

// CategoryAverages averages each category over the last n entries in which it appears
func CategoryAverages(entries []model.LedgerEntry, n int) map[model.Category]Average {
	cats := make(map[model.Category]bool)
	for _, e := range entries {
		for c := range e.Metrics.PerCategory {
			cats[c] = true
		}
	}

	keys := make([]model.Category, 0, len(cats))
	for c := range cats {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make(map[model.Category]Average, len(keys))
	for _, cat := range keys {
		var withCat []model.LedgerEntry
		for _, e := range entries {
			if _, ok := e.Metrics.PerCategory[cat]; ok {
				withCat = append(withCat, e)
			}
		}
		out[cat] = average(lastN(withCat, n), func(e model.LedgerEntry) (model.MetricSet, bool) {
			ms, ok := e.Metrics.PerCategory[cat]
			return ms, ok
		})
	}
	return out
}

func lastN(entries []model.LedgerEntry, n int) []model.LedgerEntry {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

func average(entries []model.LedgerEntry, pick func(model.LedgerEntry) (model.MetricSet, bool)) Average {
	var avg Average
	var p, r, f mean
	for _, e := range entries {
		ms, ok := pick(e)
		if !ok {
			continue
		}
		if avg.Entries == 0 {
			avg.AgentID = e.AgentID
			avg.From = e.Timestamp
		}
		avg.Entries++
		avg.To = e.Timestamp
		p.add(ms.Precision)
		r.add(ms.Recall)
		f.add(ms.F1)
	}
	avg.Precision = p.value()
	avg.Recall = r.value()
	avg.F1 = f.value()
	return avg
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.n++
	}
}

func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	return model.Float(m.sum / float64(m.n))
}
