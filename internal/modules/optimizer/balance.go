package optimizer

import (
	"math"

	"github.com/workforcelab/intraday/internal/domain"
)

// assignBalanced spreads each demand across the holding operators one
// grid slot at a time, always lifting the operator with the lowest
// post-assignment utilization, so the whole cohort converges on the
// target together. The target is total demand over total capacity,
// ceiled by targetCap. A relief sweep then absorbs grid-rounding
// remainders up to the hard ceiling; demand beyond it is left unmet.
func assignBalanced(demands []Demand, operators []Operator, targetCap float64) []Assignment {
	s := newSolver(demands, operators)

	var totalDemand, totalCapacity float64
	for j := range demands {
		totalDemand += math.Max(demands[j].Hours, 0)
	}
	for i := range operators {
		totalCapacity += math.Max(operators[i].Hours, 0)
	}
	if totalCapacity <= 0 {
		return s.assignments()
	}
	target := math.Min(totalDemand/totalCapacity, targetCap)

	step := domain.IntervalDuration.Hours()
	fill := func(j int, ceiling float64) {
		d := &demands[j]
		for s.demLeft[j] > epsilonHours {
			best, bestUtil := -1, math.MaxFloat64
			for i := range operators {
				op := &operators[i]
				if op.Proficiency(d.SkillID) == 0 || s.opLeft[i] < epsilonHours {
					continue
				}
				inc := math.Min(step, math.Min(s.opLeft[i], s.demLeft[j]))
				util := (op.Hours - s.opLeft[i] + inc) / op.Hours
				if util > ceiling+epsilonHours {
					continue
				}
				if util < bestUtil {
					best, bestUtil = i, util
				}
			}
			if best < 0 {
				return
			}
			s.grant(best, j, 0, false, step)
		}
	}

	for j := range demands {
		fill(j, target)
	}
	for j := range demands {
		fill(j, targetCap)
	}
	return s.assignments()
}
