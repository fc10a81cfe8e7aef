package match

import "math"

const infinity = math.MaxInt64 / 4

// assignment is the solution of one square minimization problem
type assignment struct {
	rowToCol []int   // column assigned to each row
	cost     int64   // total cost
	u, v     []int64 // dual potentials, u[i] + v[j] <= cost[i][j] with equality on tight cells
}

// solve runs the O(n^3) Hungarian algorithm (shortest augmenting path with
// potentials) on a square integer cost matrix. Integer costs keep the result
// exact, so ties between equal-weight matchings are real ties.
func solve(cost [][]int64) assignment {
	n := len(cost)
	if n == 0 {
		return assignment{}
	}

	// 1-indexed potentials; p[j] is the row matched to column j, way[] records augmenting paths
	u := make([]int64, n+1)
	v := make([]int64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)
	minv := make([]int64, n+1)
	used := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = infinity
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := int64(infinity)
			j1 := 0

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	res := assignment{
		rowToCol: make([]int, n),
		u:        u[1:],
		v:        v[1:],
	}
	for j := 1; j <= n; j++ {
		row := p[j] - 1
		res.rowToCol[row] = j - 1
		res.cost += cost[row][j-1]
	}
	return res
}
