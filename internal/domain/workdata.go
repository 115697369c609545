package domain

import (
	"sort"
	"time"
)

// WorkDay aggregates one employee's timetable for one calendar day. These are
// the per-day vectors rule evaluation runs on; they are preloaded in bulk so
// the evaluation hot path never touches storage.
type WorkDay struct {
	Date           time.Time  `json:"date"` // midnight UTC
	WorkedHours    float64    `json:"worked_hours"` // includes paid short breaks, excludes lunch
	ShiftCount     int        `json:"shift_count"`
	BreakMinutes   int        `json:"break_minutes"`
	LunchMinutes   int        `json:"lunch_minutes"`
	LunchStart     *time.Time `json:"lunch_start,omitempty"`
	FirstStart     time.Time  `json:"first_start"`
	LastEnd        time.Time  `json:"last_end"`
	LongestShiftHr float64    `json:"longest_shift_hr"`
}

// EmployeeWorkData is everything the compliance engine needs to evaluate one
// employee over a date range.
type EmployeeWorkData struct {
	EmployeeID  string      `json:"employee_id"`
	AgeCategory AgeCategory `json:"age_category"`
	Range       DateRange   `json:"range"`
	Days        []WorkDay   `json:"days"`   // ordered by date, only days with activity
	Shifts      []Shift     `json:"shifts"` // ordered by absolute start
}

// Empty reports whether the employee had no scheduled activity in the range.
func (w *EmployeeWorkData) Empty() bool {
	return len(w.Days) == 0 && len(w.Shifts) == 0
}

// Day returns the aggregate for a given date, or nil when the employee had no
// activity that day.
func (w *EmployeeWorkData) Day(date time.Time) *WorkDay {
	d := Day(date)
	for i := range w.Days {
		if w.Days[i].Date.Equal(d) {
			return &w.Days[i]
		}
	}
	return nil
}

// WeeklyHours sums worked hours per ISO week (keyed by the Monday midnight).
func (w *EmployeeWorkData) WeeklyHours() map[time.Time]float64 {
	weeks := make(map[time.Time]float64)
	for _, d := range w.Days {
		weeks[WeekStart(d.Date)] += d.WorkedHours
	}
	return weeks
}

// ConsecutiveWorkedDays returns the length of the longest run of consecutive
// calendar days with any worked hours, and the first day of that run.
func (w *EmployeeWorkData) ConsecutiveWorkedDays() (int, time.Time) {
	if len(w.Days) == 0 {
		return 0, time.Time{}
	}
	days := make([]time.Time, 0, len(w.Days))
	for _, d := range w.Days {
		if d.WorkedHours > 0 {
			days = append(days, d.Date)
		}
	}
	if len(days) == 0 {
		return 0, time.Time{}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	bestLen, bestStart := 1, days[0]
	runLen, runStart := 1, days[0]
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			runLen++
		} else {
			runLen, runStart = 1, days[i]
		}
		if runLen > bestLen {
			bestLen, bestStart = runLen, runStart
		}
	}
	return bestLen, bestStart
}

// BuildWorkData derives per-day aggregates from raw blocks and shifts. Blocks
// drive hour/break accounting; shifts drive boundary times and counts. The
// result is deterministic for identical inputs.
func BuildWorkData(employeeID string, age AgeCategory, r DateRange, shifts []Shift, blocks []TimetableBlock) EmployeeWorkData {
	byDay := make(map[time.Time]*WorkDay)
	day := func(d time.Time) *WorkDay {
		key := Day(d)
		if wd, ok := byDay[key]; ok {
			return wd
		}
		wd := &WorkDay{Date: key}
		byDay[key] = wd
		return wd
	}

	planned := make(map[time.Time]bool) // days with productive blocks
	for _, b := range blocks {
		wd := day(b.Start)
		switch {
		case b.Activity.IsProductive():
			wd.WorkedHours += IntervalDuration.Hours()
			planned[wd.Date] = true
		case b.Activity == ActivityLunch:
			wd.LunchMinutes += IntervalMinutes
			if wd.LunchStart == nil || b.Start.Before(*wd.LunchStart) {
				start := b.Start
				wd.LunchStart = &start
			}
		case b.Activity == ActivityShortBreak:
			// Short breaks are paid: they count as worked time, unlike lunch.
			wd.WorkedHours += IntervalDuration.Hours()
			wd.BreakMinutes += IntervalMinutes
		}
	}

	sorted := make([]Shift, len(shifts))
	copy(sorted, shifts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime().Before(sorted[j].StartTime())
	})

	shiftHours := make(map[time.Time]float64)
	for i := range sorted {
		s := &sorted[i]
		wd := day(s.Date)
		wd.ShiftCount++
		start, end := s.StartTime(), s.EndTime()
		if wd.FirstStart.IsZero() || start.Before(wd.FirstStart) {
			wd.FirstStart = start
		}
		if end.After(wd.LastEnd) {
			wd.LastEnd = end
		}
		if hr := s.Duration().Hours(); hr > wd.LongestShiftHr {
			wd.LongestShiftHr = hr
		}
		shiftHours[wd.Date] += s.Duration().Hours()
	}

	days := make([]WorkDay, 0, len(byDay))
	for _, wd := range byDay {
		// Days with shifts but no planned work blocks yet fall back to the
		// shift span minus unpaid lunch, so validation works pre-planning.
		if !planned[wd.Date] && shiftHours[wd.Date] > 0 {
			worked := shiftHours[wd.Date] - float64(wd.LunchMinutes)/60
			if worked > 0 {
				wd.WorkedHours = worked
			}
		}
		days = append(days, *wd)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	return EmployeeWorkData{
		EmployeeID:  employeeID,
		AgeCategory: age,
		Range:       r,
		Days:        days,
		Shifts:      sorted,
	}
}
