package optimizer

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// pair is one assignable (operator, demand) variable of the cost program.
type pair struct {
	op, dem int
	cost    float64
}

// assignCostMin minimizes Σ x[i,j]·cost(i)/proficiency(i,j) subject to
// Σ_j x[i,j] ≤ hours(i) and Σ_i x[i,j] = demand(j), x ≥ 0, with a simplex
// solve. Variables exist only for skills the operator actually holds. The
// boolean reports whether the program was solvable; on an infeasible or
// degenerate program the caller falls back to the priority tiers.
func assignCostMin(demands []Demand, operators []Operator) ([]Assignment, bool) {
	var pairs []pair
	for i := range operators {
		for j := range demands {
			p := operators[i].Proficiency(demands[j].SkillID)
			if p == 0 {
				continue
			}
			pairs = append(pairs, pair{op: i, dem: j, cost: operators[i].HourlyCost / math.Max(float64(p), 1)})
		}
	}
	if len(pairs) == 0 {
		return nil, false
	}

	// Standard form: one slack per operator turns the capacity rows into
	// equalities.
	n, m := len(operators), len(demands)
	cols := len(pairs) + n
	c := make([]float64, cols)
	a := mat.NewDense(n+m, cols, nil)
	b := make([]float64, n+m)
	for k, p := range pairs {
		c[k] = p.cost
		a.Set(p.op, k, 1)
		a.Set(n+p.dem, k, 1)
	}
	for i := range operators {
		a.Set(i, len(pairs)+i, 1)
		b[i] = math.Max(operators[i].Hours, 0)
	}
	for j := range demands {
		b[n+j] = math.Max(demands[j].Hours, 0)
	}

	_, x, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		return nil, false
	}

	s := newSolver(demands, operators)
	for k, p := range pairs {
		if x[k] > epsilonHours {
			s.grant(p.op, p.dem, 0, false, x[k])
		}
	}
	return s.assignments(), true
}
