package optimizer

// demandIndexes maps each skill id to the demand rows asking for it, in
// request order.
func demandIndexes(demands []Demand) map[string][]int {
	idx := make(map[string][]int, len(demands))
	for j := range demands {
		idx[demands[j].SkillID] = append(idx[demands[j].SkillID], j)
	}
	return idx
}

// assignPriority runs the four-tier deterministic assignment:
//
//  1. Mono-skill operators onto their sole skill.
//  2. Multi-skill operators onto their primary skill, capped by
//     primaryShare of their capacity.
//  3. Secondary skills where the operator meets the demanded proficiency.
//  4. Overflow: anyone holding the skill, cap lifted, until demand is met
//     or hours run out.
//
// Identical inputs produce identical output.
func assignPriority(demands []Demand, operators []Operator, primaryShare float64) []Assignment {
	s := newSolver(demands, operators)
	idx := demandIndexes(demands)

	for i := range operators {
		op := &operators[i]
		if !op.MonoSkill() {
			continue
		}
		for _, j := range idx[op.Skills[0].SkillID] {
			s.grant(i, j, 1, false, s.opLeft[i])
		}
	}

	for i := range operators {
		op := &operators[i]
		if op.MonoSkill() {
			continue
		}
		budget := primaryShare * op.Hours
		for _, j := range idx[op.PrimarySkill()] {
			budget -= s.grant(i, j, 2, false, budget)
			if budget < epsilonHours {
				break
			}
		}
	}

	for j := range demands {
		d := &demands[j]
		for i := range operators {
			op := &operators[i]
			if op.MonoSkill() || d.SkillID == op.PrimarySkill() {
				continue
			}
			if p := op.Proficiency(d.SkillID); p == 0 || p < d.MinProficiency {
				continue
			}
			s.grant(i, j, 3, false, s.opLeft[i])
		}
	}

	for j := range demands {
		d := &demands[j]
		for i := range operators {
			if operators[i].Proficiency(d.SkillID) == 0 {
				continue
			}
			s.grant(i, j, 4, false, s.opLeft[i])
		}
	}

	return s.assignments()
}
