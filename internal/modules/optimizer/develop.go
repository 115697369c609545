package optimizer

import (
	"math"
	"sort"
)

// practiceEligible reports whether a demand's skill qualifies as practice
// for the operator: held but under the demanded level, and already at
// practiceRatio of it.
func practiceEligible(op *Operator, d *Demand) bool {
	if d.MinProficiency <= 0 {
		return false
	}
	p := op.Proficiency(d.SkillID)
	return p > 0 && p < d.MinProficiency && float64(p) >= practiceRatio*float64(d.MinProficiency)
}

// developing reports whether any demanded skill is practice material for
// the operator.
func developing(op *Operator, demands []Demand) bool {
	for j := range demands {
		if practiceEligible(op, &demands[j]) {
			return true
		}
	}
	return false
}

// proficientOrder returns the operators meeting a demand's proficiency
// bar, strongest first, input order on ties.
func proficientOrder(operators []Operator, d *Demand) []int {
	var idx []int
	for i := range operators {
		if p := operators[i].Proficiency(d.SkillID); p > 0 && p >= d.MinProficiency {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return operators[idx[a]].Proficiency(d.SkillID) > operators[idx[b]].Proficiency(d.SkillID)
	})
	return idx
}

// assignDevelopment staffs each demand in three passes: a proficient floor
// (strongest operators first, developing operators holding back their
// reserve), practice hours spent from the reserves on under-proficient
// skills, then a fill that releases unused reserves. Hours below the
// demanded proficiency, practice included, never exceed the floor's
// complement of a skill's demand.
func assignDevelopment(demands []Demand, operators []Operator, reserve float64) []Assignment {
	s := newSolver(demands, operators)

	reserves := make([]float64, len(operators))
	for i := range operators {
		if developing(&operators[i], demands) {
			reserves[i] = reserve * math.Max(operators[i].Hours, 0)
		}
	}
	underProf := make([]float64, len(demands))

	for j := range demands {
		d := &demands[j]
		floor := proficientShare * d.Hours
		got := 0.0
		for _, i := range proficientOrder(operators, d) {
			if got >= floor-epsilonHours {
				break
			}
			h := math.Min(floor-got, s.opLeft[i]-reserves[i])
			got += s.grant(i, j, 0, false, h)
		}
	}

	for i := range operators {
		if reserves[i] < epsilonHours {
			continue
		}
		op := &operators[i]
		budget := math.Min(reserves[i], s.opLeft[i])
		for j := range demands {
			d := &demands[j]
			if !practiceEligible(op, d) {
				continue
			}
			headroom := (1-proficientShare)*d.Hours - underProf[j]
			g := s.grant(i, j, 0, true, math.Min(budget, headroom))
			budget -= g
			underProf[j] += g
			if budget < epsilonHours {
				break
			}
		}
	}

	for j := range demands {
		d := &demands[j]
		for _, i := range proficientOrder(operators, d) {
			s.grant(i, j, 0, false, s.opLeft[i])
		}
		for i := range operators {
			p := operators[i].Proficiency(d.SkillID)
			if p == 0 || p >= d.MinProficiency {
				continue
			}
			h := math.Min(s.opLeft[i], (1-proficientShare)*d.Hours-underProf[j])
			underProf[j] += s.grant(i, j, 0, false, h)
		}
	}

	return s.assignments()
}
