package match

import (
	"math"
	"sort"

	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/similarity"
)

// weightScale quantizes similarities so the assignment solver works on exact integers
const weightScale = 1e6

// Matcher pairs predicted findings with actual findings so that total
// similarity is maximal and every id is used at most once.
type Matcher struct {
	policy model.Policy
	sim    similarity.Similarity
}

// NewMatcher creates a matcher; a nil backend means token Jaccard
func NewMatcher(policy model.Policy, sim similarity.Similarity) *Matcher {
	if sim == nil {
		sim = similarity.Jaccard{}
	}
	return &Matcher{policy: policy, sim: sim}
}

// Result is the resolved one-to-one matching
type Result struct {
	Pairs              []model.MatchCandidate // ordered by predicted id
	UnmatchedPredicted []string               // ascending
	UnmatchedActual    []string               // ascending
	CandidateCount     int                    // pairs that cleared the floor
}

// Pair scores one predicted/actual combination
func (m *Matcher) Pair(p, a model.FindingRecord) model.MatchCandidate {
	catMatch := p.Category == a.Category && p.Category != model.CategoryUnknown
	locScore := LocationScore(p, a)
	text := m.sim.Score(p.RootCauseSummary, a.RootCauseSummary)

	var cat float64
	if catMatch {
		cat = 1
	}
	sim := m.policy.CategoryWeight*cat + m.policy.LocationWeight*locScore + m.policy.TextWeight*text
	sim = math.Max(0, math.Min(1, sim))

	return model.MatchCandidate{
		PredictedID:     p.ID,
		ActualID:        a.ID,
		Similarity:      sim,
		CategoryMatch:   catMatch,
		LocationOverlap: locScore == 1,
		LocationScore:   locScore,
		TextSimilarity:  text,
	}
}

// LocationScore is 1 for identical keys, 0.5 when only the component or only
// the entry point agrees, and 0 when they differ or either side is absent.
func LocationScore(p, a model.FindingRecord) float64 {
	if p.LocationKey == "" || a.LocationKey == "" {
		return 0
	}
	if p.LocationKey == a.LocationKey {
		return 1
	}

	pc, pe := p.LocationParts()
	ac, ae := a.LocationParts()
	if pc != "" && pc == ac {
		return 0.5
	}
	if pe != "" && pe == ae {
		return 0.5
	}
	return 0
}

// Candidates returns every pair at or above the floor, ordered by (predicted id, actual id)
func (m *Matcher) Candidates(predicted, actual []model.FindingRecord) []model.MatchCandidate {
	pred := sortedByID(predicted)
	act := sortedByID(actual)

	var out []model.MatchCandidate
	for _, p := range pred {
		for _, a := range act {
			if c := m.Pair(p, a); c.Similarity >= m.policy.CandidateFloor {
				out = append(out, c)
			}
		}
	}
	return out
}

// Match resolves the candidates into a maximum-weight matching. Among
// matchings of equal total weight the one chosen is lexicographically
// smallest when walking predicted ids in ascending order and preferring the
// smallest actual id (any real pairing ranks before leaving an id unmatched).
func (m *Matcher) Match(predicted, actual []model.FindingRecord) Result {
	pred := sortedByID(predicted)
	act := sortedByID(actual)

	g := newGraph(len(pred), len(act))
	for i, p := range pred {
		for j, a := range act {
			c := m.Pair(p, a)
			if c.Similarity < m.policy.CandidateFloor {
				continue
			}
			g.add(i, j, c)
		}
	}

	res := Result{CandidateCount: g.count}
	matchedCol := g.resolve()

	usedActual := make([]bool, len(act))
	for i, p := range pred {
		j := matchedCol[i]
		if j < 0 {
			res.UnmatchedPredicted = append(res.UnmatchedPredicted, p.ID)
			continue
		}
		usedActual[j] = true
		res.Pairs = append(res.Pairs, *g.cand[i][j])
	}
	for j, a := range act {
		if !usedActual[j] {
			res.UnmatchedActual = append(res.UnmatchedActual, a.ID)
		}
	}
	return res
}

// graph holds quantized candidate weights between sorted predicted rows and actual columns
type graph struct {
	rows, cols int
	weight     [][]int64
	cand       [][]*model.MatchCandidate
	count      int
}

func newGraph(rows, cols int) *graph {
	g := &graph{rows: rows, cols: cols}
	g.weight = make([][]int64, rows)
	g.cand = make([][]*model.MatchCandidate, rows)
	for i := range g.weight {
		g.weight[i] = make([]int64, cols)
		g.cand[i] = make([]*model.MatchCandidate, cols)
	}
	return g
}

func (g *graph) add(i, j int, c model.MatchCandidate) {
	g.weight[i][j] = int64(math.Round(c.Similarity * weightScale))
	g.cand[i][j] = &c
	g.count++
}

// solveSub maximizes weight over the given rows and columns. It returns the
// optimum, the assignment over all rows (-1 = unmatched or not in rows) and
// the solver output for the padded square problem.
func (g *graph) solveSub(rows, cols []int) (int64, []int, assignment) {
	n := len(rows)
	if len(cols) > n {
		n = len(cols)
	}

	cost := make([][]int64, n)
	for r := range cost {
		cost[r] = make([]int64, n)
		if r >= len(rows) {
			continue
		}
		for c, j := range cols {
			if g.cand[rows[r]][j] != nil {
				cost[r][c] = -g.weight[rows[r]][j]
			}
		}
	}

	sol := solve(cost)

	assign := make([]int, g.rows)
	for i := range assign {
		assign[i] = -1
	}
	for r, i := range rows {
		c := sol.rowToCol[r]
		if c < len(cols) && g.cand[i][cols[c]] != nil {
			assign[i] = cols[c]
		}
	}
	return -sol.cost, assign, sol
}

// resolve returns the lexicographically smallest optimal assignment.
// An edge can only appear in an optimal completion if it is tight under the
// optimal duals of the full problem, so only tight edges that precede the
// current choice need a re-solve.
func (g *graph) resolve() []int {
	allRows := make([]int, g.rows)
	for i := range allRows {
		allRows[i] = i
	}
	allCols := make([]int, g.cols)
	for j := range allCols {
		allCols[j] = j
	}

	opt, cur, full := g.solveSub(allRows, allCols)
	tight := func(i, j int) bool {
		if len(full.u) == 0 {
			return false
		}
		return -g.weight[i][j]-full.u[i]-full.v[j] == 0
	}

	final := make([]int, g.rows)
	freeCol := make([]bool, g.cols)
	for j := range freeCol {
		freeCol[j] = true
	}

	for i := 0; i < g.rows; i++ {
		final[i] = -1
		for j := 0; j < g.cols; j++ {
			if !freeCol[j] || g.cand[i][j] == nil || !tight(i, j) {
				continue
			}
			if cur[i] == j {
				final[i] = j
				break
			}

			subOpt, subAssign := g.solveWithout(i, j, freeCol)
			if subOpt+g.weight[i][j] == opt {
				cur = subAssign
				cur[i] = j
				final[i] = j
				break
			}
		}

		if j := final[i]; j >= 0 {
			freeCol[j] = false
			opt -= g.weight[i][j]
		}
	}
	return final
}

// solveWithout solves the subproblem over rows after i and free columns other than j
func (g *graph) solveWithout(i, j int, freeCol []bool) (int64, []int) {
	rows := make([]int, 0, g.rows-i-1)
	for r := i + 1; r < g.rows; r++ {
		rows = append(rows, r)
	}
	cols := make([]int, 0, g.cols)
	for c, free := range freeCol {
		if free && c != j {
			cols = append(cols, c)
		}
	}
	opt, assign, _ := g.solveSub(rows, cols)
	return opt, assign
}

func sortedByID(records []model.FindingRecord) []model.FindingRecord {
	out := make([]model.FindingRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
