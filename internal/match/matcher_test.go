package match

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/shadowscore/internal/model"
)

// tableSim returns fixed similarities keyed by summary pair
type tableSim map[string]float64

func (t tableSim) Name() string { return "table" }

func (t tableSim) Score(a, b string) float64 {
	if v, ok := t[a+"|"+b]; ok {
		return v
	}
	return t[b+"|"+a]
}

// textOnly makes similarity equal to the text score so tests control weights directly
func textOnly() model.Policy {
	p := model.DefaultPolicy()
	p.CategoryWeight = 0
	p.LocationWeight = 0
	p.TextWeight = 1
	return p
}

func records(origin model.Origin, ids ...string) []model.FindingRecord {
	out := make([]model.FindingRecord, len(ids))
	for i, id := range ids {
		out[i] = model.FindingRecord{
			ID:               id,
			Origin:           origin,
			Category:         model.CategoryUnknown,
			Severity:         model.SeverityInfo,
			RootCauseSummary: id,
		}
	}
	return out
}

func pairsOf(res Result) map[string]string {
	out := make(map[string]string)
	for _, p := range res.Pairs {
		out[p.PredictedID] = p.ActualID
	}
	return out
}

func TestMatch_GlobalOptimumBeatsGreedy(t *testing.T) {
	sim := tableSim{
		"p1|a1": 0.9,
		"p1|a2": 0.8,
		"p2|a1": 0.85,
	}
	m := NewMatcher(textOnly(), sim)

	res := m.Match(records(model.OriginPredicted, "p1", "p2"), records(model.OriginActual, "a1", "a2"))

	assert.Equal(t, map[string]string{"p1": "a2", "p2": "a1"}, pairsOf(res))
	assert.Empty(t, res.UnmatchedPredicted)
	assert.Empty(t, res.UnmatchedActual)
	assert.Equal(t, 3, res.CandidateCount)
}

func TestMatch_FloorIsNeverCrossed(t *testing.T) {
	sim := tableSim{"p1|a1": 0.34, "p2|a1": 0.35}
	m := NewMatcher(textOnly(), sim)

	res := m.Match(records(model.OriginPredicted, "p1", "p2"), records(model.OriginActual, "a1"))

	assert.Equal(t, map[string]string{"p2": "a1"}, pairsOf(res))
	assert.Equal(t, []string{"p1"}, res.UnmatchedPredicted)
	assert.Equal(t, 1, res.CandidateCount)

	res = m.Match(records(model.OriginPredicted, "p1"), records(model.OriginActual, "a1"))
	assert.Empty(t, res.Pairs)
	assert.Equal(t, []string{"p1"}, res.UnmatchedPredicted)
	assert.Equal(t, []string{"a1"}, res.UnmatchedActual)
}

func TestMatch_TieBreakLexicographic(t *testing.T) {
	m := NewMatcher(textOnly(), tableSim{
		"p1|a1": 0.5, "p1|a2": 0.5,
		"p2|a1": 0.5, "p2|a2": 0.5,
	})
	res := m.Match(records(model.OriginPredicted, "p2", "p1"), records(model.OriginActual, "a2", "a1"))
	assert.Equal(t, map[string]string{"p1": "a1", "p2": "a2"}, pairsOf(res))

	// Matching the smaller predicted id ranks before leaving it unmatched
	m = NewMatcher(textOnly(), tableSim{"p1|a1": 0.6, "p2|a1": 0.6})
	res = m.Match(records(model.OriginPredicted, "p2", "p1"), records(model.OriginActual, "a1"))
	assert.Equal(t, map[string]string{"p1": "a1"}, pairsOf(res))
	assert.Equal(t, []string{"p2"}, res.UnmatchedPredicted)

	// Tie must not override a strictly better total
	m = NewMatcher(textOnly(), tableSim{"p1|a1": 0.5, "p1|a2": 0.5, "p2|a1": 0.9})
	res = m.Match(records(model.OriginPredicted, "p1", "p2"), records(model.OriginActual, "a1", "a2"))
	assert.Equal(t, map[string]string{"p1": "a2", "p2": "a1"}, pairsOf(res))
}

func TestMatch_EmptySides(t *testing.T) {
	m := NewMatcher(model.DefaultPolicy(), nil)

	res := m.Match(nil, records(model.OriginActual, "a1", "a2", "a3"))
	assert.Empty(t, res.Pairs)
	assert.Empty(t, res.UnmatchedPredicted)
	assert.Equal(t, []string{"a1", "a2", "a3"}, res.UnmatchedActual)

	res = m.Match(records(model.OriginPredicted, "p1"), nil)
	assert.Equal(t, []string{"p1"}, res.UnmatchedPredicted)
	assert.Empty(t, res.UnmatchedActual)

	res = m.Match(nil, nil)
	assert.Empty(t, res.Pairs)
}

func TestPair_DefaultPolicy(t *testing.T) {
	m := NewMatcher(model.DefaultPolicy(), nil)

	p := model.FindingRecord{ID: "p1", Category: "reentrancy", LocationKey: "vault::withdraw", RootCauseSummary: "external call before balance update"}
	a := model.FindingRecord{ID: "a1", Category: "reentrancy", LocationKey: "vault::withdraw", RootCauseSummary: "external call before balance update"}

	c := m.Pair(p, a)
	assert.True(t, c.CategoryMatch)
	assert.True(t, c.LocationOverlap)
	assert.InDelta(t, 1.0, c.Similarity, 1e-9)
	assert.Equal(t, 1.0, c.TextSimilarity)

	a.LocationKey = "vault::deposit"
	a.RootCauseSummary = "missing nonreentrant guard"
	c = m.Pair(p, a)
	assert.False(t, c.LocationOverlap)
	assert.Equal(t, 0.5, c.LocationScore)
	assert.InDelta(t, 0.4+0.15, c.Similarity, 1e-9)

	// unknown never counts as agreement
	p.Category, a.Category = model.CategoryUnknown, model.CategoryUnknown
	assert.False(t, m.Pair(p, a).CategoryMatch)
}

func TestLocationScore(t *testing.T) {
	rec := func(key string) model.FindingRecord { return model.FindingRecord{LocationKey: key} }

	cases := []struct {
		a, b string
		want float64
	}{
		{"vault::withdraw", "vault::withdraw", 1},
		{"vault::withdraw", "vault::deposit", 0.5},
		{"vault::withdraw", "router::withdraw", 0.5},
		{"vault", "vault::withdraw", 0.5},
		{"vault", "vault", 1},
		{"vault::withdraw", "router::swap", 0},
		{"", "vault::withdraw", 0},
		{"", "", 0},
		{"::withdraw", "::withdraw", 1},
		{"::withdraw", "router::withdraw", 0.5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LocationScore(rec(tc.a), rec(tc.b)), "%q vs %q", tc.a, tc.b)
		assert.Equal(t, tc.want, LocationScore(rec(tc.b), rec(tc.a)), "%q vs %q (swapped)", tc.b, tc.a)
	}
}

func TestCandidates_Ordered(t *testing.T) {
	m := NewMatcher(textOnly(), tableSim{"p2|a1": 0.5, "p1|a2": 0.5, "p1|a1": 0.1})

	cands := m.Candidates(records(model.OriginPredicted, "p2", "p1"), records(model.OriginActual, "a2", "a1"))
	require.Len(t, cands, 2)
	assert.Equal(t, "p1", cands[0].PredictedID)
	assert.Equal(t, "a2", cands[0].ActualID)
	assert.Equal(t, "p2", cands[1].PredictedID)
}

// bruteForce enumerates every matching and returns the lexicographically
// smallest among those of maximal quantized weight (unmatched ranks last).
func bruteForce(m *Matcher, pred, act []model.FindingRecord) map[string]string {
	pred = sortedByID(pred)
	act = sortedByID(act)

	type edge struct {
		ok bool
		w  int64
	}
	w := make([][]edge, len(pred))
	for i := range pred {
		w[i] = make([]edge, len(act))
		for j := range act {
			c := m.Pair(pred[i], act[j])
			if c.Similarity >= m.policy.CandidateFloor {
				w[i][j] = edge{true, int64(math.Round(c.Similarity * weightScale))}
			}
		}
	}

	best := int64(-1)
	var bestSeq []int
	seq := make([]int, len(pred))
	used := make([]bool, len(act))

	var rec func(i int, total int64)
	rec = func(i int, total int64) {
		if i == len(pred) {
			if total > best {
				best = total
				bestSeq = append([]int(nil), seq...)
			}
			return
		}
		// Ascending columns first, unmatched last: the first optimum found is lexicographically smallest
		for j := range act {
			if used[j] || !w[i][j].ok {
				continue
			}
			used[j] = true
			seq[i] = j
			rec(i+1, total+w[i][j].w)
			used[j] = false
		}
		seq[i] = -1
		rec(i+1, total)
	}
	rec(0, 0)

	out := make(map[string]string)
	for i, j := range bestSeq {
		if j >= 0 {
			out[pred[i].ID] = act[j].ID
		}
	}
	return out
}

func TestMatch_AgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	levels := []float64{0, 0.2, 0.4, 0.5, 0.5, 0.6, 0.8, 1}

	for trial := 0; trial < 200; trial++ {
		np := rng.Intn(6)
		na := rng.Intn(6)

		var pids, aids []string
		for i := 0; i < np; i++ {
			pids = append(pids, fmt.Sprintf("P-%03d", i+1))
		}
		for j := 0; j < na; j++ {
			aids = append(aids, fmt.Sprintf("A-%03d", j+1))
		}

		sim := tableSim{}
		for _, p := range pids {
			for _, a := range aids {
				sim[p+"|"+a] = levels[rng.Intn(len(levels))]
			}
		}
		m := NewMatcher(textOnly(), sim)
		pred := records(model.OriginPredicted, pids...)
		act := records(model.OriginActual, aids...)

		// Shuffle input order; the result must not depend on it
		rng.Shuffle(len(pred), func(i, j int) { pred[i], pred[j] = pred[j], pred[i] })
		rng.Shuffle(len(act), func(i, j int) { act[i], act[j] = act[j], act[i] })

		res := m.Match(pred, act)
		want := bruteForce(m, pred, act)
		require.Equal(t, want, pairsOf(res), "trial %d", trial)

		// Cardinality and conservation
		seenP := map[string]bool{}
		seenA := map[string]bool{}
		for _, pair := range res.Pairs {
			require.False(t, seenP[pair.PredictedID])
			require.False(t, seenA[pair.ActualID])
			seenP[pair.PredictedID] = true
			seenA[pair.ActualID] = true
			require.GreaterOrEqual(t, pair.Similarity, 0.35)
		}
		require.Equal(t, np, len(res.Pairs)+len(res.UnmatchedPredicted))
		require.Equal(t, na, len(res.Pairs)+len(res.UnmatchedActual))
	}
}

func TestSolve_Small(t *testing.T) {
	sol := solve([][]int64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	})
	assert.Equal(t, int64(5), sol.cost)
	assert.Equal(t, []int{1, 0, 2}, sol.rowToCol)

	assert.Equal(t, assignment{}, solve(nil))
}
