package timetable

import (
	"math"
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// maxPreferenceShift bounds how far a preferred start or end may move the
// envelope away from the scheduled shift.
const maxPreferenceShift = 2 * time.Hour

// buildShiftBlocks decomposes one published shift into its 15-minute block
// sequence: envelope, preference shift, skill rotation, permission masks,
// lunch, short breaks. The result depends only on the inputs, so replanning
// the same shift converges on identical blocks.
func buildShiftBlocks(emp *domain.Employee, shift domain.Shift, pref *domain.SchedulePreference, tmpl Template) []domain.TimetableBlock {
	start, end := shiftEnvelope(emp, shift)
	if pref != nil && pref.DayOff {
		return dayOffEnvelope(emp.ID, start, end, tmpl.Code)
	}
	start, end = applyPreference(shift.Date, start, end, pref)

	blocks := defaultActivity(emp, start, end, tmpl)
	maskPermissions(emp, shift.Date, blocks)
	insertLunch(emp, start, end, blocks, tmpl.Lunch)
	insertShortBreaks(blocks, tmpl.Breaks)
	return blocks
}

// dayOffEnvelope covers the scheduled shift with not_available blocks so a
// requested day off stays visible on the timetable.
func dayOffEnvelope(employeeID string, start, end time.Time, templateCode string) []domain.TimetableBlock {
	grid := domain.IntervalsBetween(start, end)
	blocks := make([]domain.TimetableBlock, 0, len(grid))
	for _, t := range grid {
		blocks = append(blocks, domain.TimetableBlock{
			EmployeeID:   employeeID,
			Start:        t,
			Activity:     domain.ActivityNotAvailable,
			TemplateCode: templateCode,
		})
	}
	return blocks
}

// shiftEnvelope derives the block-grid bounds. A shift past the daily-hours
// cap is truncated at the cap unless the employee may work overtime;
// midnight crossers keep their full extent into the next calendar day.
func shiftEnvelope(emp *domain.Employee, shift domain.Shift) (start, end time.Time) {
	start = shift.StartTime()
	end = shift.EndTime()

	capHours := emp.Constraints.MaxDailyHours
	if capHours > 0 && !emp.Constraints.OvertimeAllowed && shift.Duration().Hours() > capHours {
		capped := int(capHours*4 + 1e-9)
		end = start.Add(time.Duration(capped) * domain.IntervalDuration)
	}
	return start, end
}

// applyPreference moves the envelope toward a preferred start or end when
// the wish lies within two hours of the scheduled time. The envelope length
// never changes: a matched start drags the end along and vice versa.
func applyPreference(day time.Time, start, end time.Time, pref *domain.SchedulePreference) (time.Time, time.Time) {
	if pref == nil {
		return start, end
	}
	midnight := domain.Day(day)

	if pref.PreferredStart != nil {
		wish := midnight.Add(time.Duration(*pref.PreferredStart) * time.Minute)
		delta := wish.Sub(start)
		if delta != 0 && absDuration(delta) <= maxPreferenceShift {
			return start.Add(delta), end.Add(delta)
		}
		return start, end
	}
	if pref.PreferredEnd != nil {
		wish := midnight.Add(time.Duration(*pref.PreferredEnd) * time.Minute)
		// An end wish on or before the start refers to the next day.
		if !wish.After(start) {
			wish = wish.AddDate(0, 0, 1)
		}
		delta := wish.Sub(end)
		if delta != 0 && absDuration(delta) <= maxPreferenceShift {
			return start.Add(delta), end.Add(delta)
		}
	}
	return start, end
}

// defaultActivity fills the envelope with work blocks and rotates skills:
// the primary skill takes its configured share in every run of ten blocks,
// the secondaries split the rest round-robin.
func defaultActivity(emp *domain.Employee, start, end time.Time, tmpl Template) []domain.TimetableBlock {
	grid := domain.IntervalsBetween(start, end)
	primary := emp.PrimarySkill()
	secondaries := emp.SecondarySkills()
	primaryPerTen := int(math.Round(tmpl.PrimaryShare * 10))

	blocks := make([]domain.TimetableBlock, 0, len(grid))
	secIdx := 0
	for i, t := range grid {
		skill := primary
		if len(secondaries) > 0 && i%10 >= primaryPerTen {
			skill = secondaries[secIdx%len(secondaries)]
			secIdx++
		}
		blocks = append(blocks, domain.TimetableBlock{
			EmployeeID:   emp.ID,
			Start:        t,
			Activity:     domain.ActivityWork,
			SkillID:      skill,
			TemplateCode: tmpl.Code,
		})
	}
	return blocks
}

// maskPermissions blanks out blocks the employee may not work. Night blocks
// (22:00-06:00) are locked so later passes and manual adjustments leave them
// alone; a disallowed weekend blanks the whole envelope.
func maskPermissions(emp *domain.Employee, shiftDate time.Time, blocks []domain.TimetableBlock) {
	if !emp.Constraints.WeekendWork {
		switch domain.Day(shiftDate).Weekday() {
		case time.Saturday, time.Sunday:
			for i := range blocks {
				blocks[i].Activity = domain.ActivityNotAvailable
				blocks[i].SkillID = ""
			}
			return
		}
	}
	if emp.Constraints.NightWork {
		return
	}
	for i := range blocks {
		h := blocks[i].Start.UTC().Hour()
		if h >= 22 || h < 6 {
			blocks[i].Activity = domain.ActivityNotAvailable
			blocks[i].SkillID = ""
			blocks[i].Locked = true
		}
	}
}

// insertLunch places the lunch run on shifts long enough to owe one. The
// window is the template's clock window clipped by the minimum time into
// the shift; the run starts at the workable block nearest the window's
// midpoint. The run stretches past the minimum duration only to absorb
// envelope hours above the daily cap, and never past the maximum.
func insertLunch(emp *domain.Employee, start, end time.Time, blocks []domain.TimetableBlock, policy LunchPolicy) {
	envelope := end.Sub(start)
	if envelope.Hours() < policy.RequiredFromHours {
		return
	}

	midnight := domain.Day(start)
	windowLo := midnight.Add(time.Duration(policy.EarliestStart) * time.Minute)
	windowHi := midnight.Add(time.Duration(policy.LatestStart) * time.Minute)
	if earliest := start.Add(time.Duration(policy.MinHoursBefore * float64(time.Hour))); earliest.After(windowLo) {
		windowLo = earliest
	}
	if !windowHi.After(windowLo) {
		return
	}
	midpoint := windowLo.Add(windowHi.Sub(windowLo) / 2)

	// Lunch must start strictly before the window's latest edge.
	best := -1
	var bestDist time.Duration
	for i := range blocks {
		b := &blocks[i]
		if b.Activity != domain.ActivityWork || b.Locked {
			continue
		}
		if b.Start.Before(windowLo) || !b.Start.Before(windowHi) {
			continue
		}
		dist := absDuration(b.Start.Sub(midpoint))
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best == -1 {
		return
	}

	runBlocks := lunchRunLength(emp, envelope, policy)
	for i := best; i < len(blocks) && runBlocks > 0; i++ {
		if blocks[i].Activity != domain.ActivityWork || blocks[i].Locked {
			break
		}
		blocks[i].Activity = domain.ActivityLunch
		blocks[i].SkillID = ""
		runBlocks--
	}
}

// lunchRunLength sizes the lunch in blocks. When the envelope exceeds the
// daily cap (overtime shifts skip truncation), the lunch grows to bring net
// worked hours back under the cap, up to the template maximum.
func lunchRunLength(emp *domain.Employee, envelope time.Duration, policy LunchPolicy) int {
	need := int(policy.MinDuration / domain.IntervalDuration)
	if need < 1 {
		need = 1
	}
	capHours := emp.Constraints.MaxDailyHours
	if capHours > 0 && envelope.Hours() > capHours {
		excess := int(math.Ceil((envelope.Hours() - capHours) * 4))
		if excess > need {
			need = excess
		}
	}
	if limit := int(policy.MaxDuration / domain.IntervalDuration); need > limit {
		need = limit
	}
	return need
}

// insertShortBreaks walks the envelope with two counters: a hard cap on
// consecutive work blocks, and a cadence that owes a break every
// frequency-hours of work unless one landed within the spacing distance.
// A due break may slip past locked blocks for at most the policy's
// MaxDelay before the cadence stands down until the next rest.
func insertShortBreaks(blocks []domain.TimetableBlock, policy BreakPolicy) {
	maxRun := int(policy.MaxConsecutiveWorkHours * 4)
	if maxRun < 1 {
		return
	}
	freq := int(policy.FrequencyHours * 4)
	spacing := int(policy.Spacing / domain.IntervalDuration)
	maxDelay := int(policy.MaxDelay / domain.IntervalDuration)

	consecutive := 0
	sinceRest := 0
	for i := range blocks {
		b := &blocks[i]
		if b.Activity != domain.ActivityWork {
			consecutive, sinceRest = 0, 0
			continue
		}
		consecutive++
		sinceRest++

		due := consecutive >= maxRun
		if !due && freq > 0 && sinceRest >= freq && sinceRest >= spacing {
			due = sinceRest-freq <= maxDelay
		}
		if !due || b.Locked {
			continue
		}
		b.Activity = domain.ActivityShortBreak
		b.SkillID = ""
		consecutive, sinceRest = 0, 0
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
