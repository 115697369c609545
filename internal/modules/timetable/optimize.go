package timetable

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
)

// rebalanceWindow bounds how far a break may move from its planned slot.
const rebalanceWindow = 2 * time.Hour

// rebalanceBreaks is the 80/20 service-level pass: wherever the cohort's
// working headcount falls below the forecast, unlocked breaks in that
// interval move to a nearby slot that can spare a worker. Swaps never
// push a work run past the consecutive-work cap. Returns the number of
// breaks moved.
func rebalanceBreaks(plans map[string][]domain.TimetableBlock, forecast []domain.ForecastInterval, policy BreakPolicy) int {
	if len(plans) == 0 || len(forecast) == 0 {
		return 0
	}
	required := make(map[int64]float64, len(forecast))
	for _, f := range forecast {
		required[domain.AlignInterval(f.Start).Unix()] = f.RequiredAgents
	}
	working := make(map[int64]int)
	for _, blocks := range plans {
		for _, b := range blocks {
			if b.Activity == domain.ActivityWork {
				working[b.Start.Unix()]++
			}
		}
	}
	maxRun := int(policy.MaxConsecutiveWorkHours * 4)

	moves := 0
	employeeIDs := lo.Keys(plans)
	sort.Strings(employeeIDs)
	for _, id := range employeeIDs {
		blocks := plans[id]
		for idx := range blocks {
			b := &blocks[idx]
			if b.Activity != domain.ActivityShortBreak || b.Locked {
				continue
			}
			slot := b.Start.Unix()
			if float64(working[slot]) >= required[slot] || required[slot] <= 0 {
				continue
			}
			if target := findSwapTarget(blocks, idx, working, required, maxRun); target >= 0 {
				applySwap(blocks, idx, target, working)
				moves++
			}
		}
	}
	return moves
}

// findSwapTarget returns the index of the closest workable block the break
// at idx can trade places with, or -1. A target qualifies when its interval
// keeps covering the forecast after losing one worker and the swap leaves
// every work run under the consecutive cap.
func findSwapTarget(blocks []domain.TimetableBlock, idx int, working map[int64]int, required map[int64]float64, maxRun int) int {
	at := blocks[idx].Start
	type candidate struct {
		j    int
		dist time.Duration
	}
	var cands []candidate
	for j := range blocks {
		if j == idx || blocks[j].Activity != domain.ActivityWork || blocks[j].Locked {
			continue
		}
		dist := absDuration(blocks[j].Start.Sub(at))
		if dist > rebalanceWindow {
			continue
		}
		slot := blocks[j].Start.Unix()
		if float64(working[slot]-1) < required[slot] {
			continue
		}
		cands = append(cands, candidate{j: j, dist: dist})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		return cands[a].j < cands[b].j
	})

	for _, c := range cands {
		blocks[idx].Activity, blocks[c.j].Activity = domain.ActivityWork, domain.ActivityShortBreak
		ok := fitsRunCap(blocks, maxRun)
		blocks[idx].Activity, blocks[c.j].Activity = domain.ActivityShortBreak, domain.ActivityWork
		if ok {
			return c.j
		}
	}
	return -1
}

// applySwap trades the break at idx with the work block at target. The
// break takes over the target's skill so the interval keeps the same mix.
func applySwap(blocks []domain.TimetableBlock, idx, target int, working map[int64]int) {
	blocks[idx].Activity = domain.ActivityWork
	blocks[idx].SkillID = blocks[target].SkillID
	blocks[target].Activity = domain.ActivityShortBreak
	blocks[target].SkillID = ""
	working[blocks[idx].Start.Unix()]++
	working[blocks[target].Start.Unix()]--
}

// fitsRunCap reports whether no contiguous work run in blocks exceeds
// maxRun. Gaps in the grid reset the run, so multi-day plans are scanned
// in one pass.
func fitsRunCap(blocks []domain.TimetableBlock, maxRun int) bool {
	if maxRun <= 0 {
		return true
	}
	run := 0
	for i := range blocks {
		if i > 0 && !blocks[i].Start.Equal(blocks[i-1].End()) {
			run = 0
		}
		if blocks[i].Activity != domain.ActivityWork {
			run = 0
			continue
		}
		run++
		if run > maxRun {
			return false
		}
	}
	return true
}
