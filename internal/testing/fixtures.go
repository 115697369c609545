package testing

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
)

// NewEmployeeFixtures returns a small roster covering the interesting
// profile axes: a full-time adult, a part-timer, a minor and a night-shift
// regular.
func NewEmployeeFixtures() []domain.Employee {
	return []domain.Employee{
		{
			ID:             "emp-001",
			Name:           "Anna Virtanen",
			Number:         "1001",
			Employment:     domain.EmploymentFullTime,
			AgeCategory:    domain.AgeAdult,
			OrganizationID: "org-1",
			DepartmentID:   "dept-support",
			GroupID:        "grp-day",
			ManagerID:      "mgr-01",
			Skills: []domain.EmployeeSkill{
				{SkillID: "skill-voice", Proficiency: 4, Certified: true, Primary: true},
				{SkillID: "skill-chat", Proficiency: 3},
			},
			Constraints: domain.Constraints{
				MaxDailyHours:   8,
				MaxWeeklyHours:  40,
				NightWork:       false,
				WeekendWork:     true,
				OvertimeAllowed: true,
				WorkRate:        1.0,
			},
		},
		{
			ID:             "emp-002",
			Name:           "Mikko Laine",
			Number:         "1002",
			Employment:     domain.EmploymentPartTime,
			AgeCategory:    domain.AgeAdult,
			OrganizationID: "org-1",
			DepartmentID:   "dept-support",
			GroupID:        "grp-day",
			ManagerID:      "mgr-01",
			Skills: []domain.EmployeeSkill{
				{SkillID: "skill-chat", Proficiency: 5, Certified: true, Primary: true},
			},
			Constraints: domain.Constraints{
				MaxDailyHours:  6,
				MaxWeeklyHours: 30,
				WeekendWork:    false,
				WorkRate:       0.75,
			},
		},
		{
			ID:             "emp-003",
			Name:           "Sofia Nieminen",
			Number:         "1003",
			Employment:     domain.EmploymentIntern,
			AgeCategory:    domain.AgeMinor,
			OrganizationID: "org-1",
			DepartmentID:   "dept-support",
			GroupID:        "grp-day",
			ManagerID:      "mgr-02",
			Skills: []domain.EmployeeSkill{
				{SkillID: "skill-chat", Proficiency: 2, Primary: true},
			},
			Constraints: domain.Constraints{
				MaxDailyHours:  6,
				MaxWeeklyHours: 30,
				WorkRate:       1.0,
			},
		},
		{
			ID:             "emp-004",
			Name:           "Jari Korhonen",
			Number:         "1004",
			Employment:     domain.EmploymentFullTime,
			AgeCategory:    domain.AgeAdult,
			OrganizationID: "org-1",
			DepartmentID:   "dept-backoffice",
			GroupID:        "grp-night",
			ManagerID:      "mgr-02",
			Skills: []domain.EmployeeSkill{
				{SkillID: "skill-voice", Proficiency: 3, Primary: true},
				{SkillID: "skill-email", Proficiency: 4, Certified: true},
			},
			Constraints: domain.Constraints{
				MaxDailyHours:   8,
				MaxWeeklyHours:  40,
				NightWork:       true,
				WeekendWork:     true,
				OvertimeAllowed: true,
				WorkRate:        1.0,
			},
		},
	}
}

// NewSkillFixtures returns the skill catalog referenced by the employee
// fixtures.
func NewSkillFixtures() []domain.Skill {
	return []domain.Skill{
		{ID: "skill-voice", Name: "Voice Support", Category: domain.SkillTechnical},
		{ID: "skill-chat", Name: "Chat Support", Category: domain.SkillTechnical},
		{ID: "skill-email", Name: "Email Support", Category: domain.SkillTechnical},
		{ID: "skill-fi", Name: "Finnish", Category: domain.SkillLanguage},
	}
}

// NewShiftFixtures returns one week of day shifts for the first fixture
// employee starting at the given Monday, 09:00-17:00 each day.
func NewShiftFixtures(employeeID string, monday time.Time) []domain.Shift {
	monday = domain.Day(monday)
	shifts := make([]domain.Shift, 0, 5)
	for i := 0; i < 5; i++ {
		day := monday.AddDate(0, 0, i)
		shifts = append(shifts, domain.Shift{
			ID:         employeeID + "-" + day.Format("2006-01-02"),
			EmployeeID: employeeID,
			Date:       day,
			Start:      9 * 60,
			End:        17 * 60,
			Status:     domain.ShiftScheduled,
		})
	}
	return shifts
}

// NewBlockFixtures returns contiguous work blocks covering one span of a day.
func NewBlockFixtures(employeeID string, start time.Time, intervals int, skillID string) []domain.TimetableBlock {
	start = domain.AlignInterval(start.UTC())
	blocks := make([]domain.TimetableBlock, 0, intervals)
	for i := 0; i < intervals; i++ {
		blocks = append(blocks, domain.TimetableBlock{
			EmployeeID: employeeID,
			Start:      start.Add(time.Duration(i) * domain.IntervalDuration),
			Activity:   domain.ActivityWork,
			SkillID:    skillID,
			CreatedAt:  start,
		})
	}
	return blocks
}

// NewServiceFixtures returns two monitored services.
func NewServiceFixtures() []domain.Service {
	return []domain.Service{
		{ID: "svc-voice", Name: "Voice Queue", HourlyCost: 35.0, ServiceTarget: 80.0, Active: true},
		{ID: "svc-chat", Name: "Chat Queue", HourlyCost: 28.0, ServiceTarget: 85.0, Active: true},
	}
}

// NewForecastFixtures returns demand intervals for one service over a span,
// with a flat required-agents level.
func NewForecastFixtures(serviceID string, start time.Time, intervals int, required float64) []domain.ForecastInterval {
	start = domain.AlignInterval(start.UTC())
	out := make([]domain.ForecastInterval, 0, intervals)
	for i := 0; i < intervals; i++ {
		out = append(out, domain.ForecastInterval{
			ServiceID:      serviceID,
			Start:          start.Add(time.Duration(i) * domain.IntervalDuration),
			RequiredAgents: required,
			ServiceLevel:   80,
			HandleTimeSec:  300,
			CallVolume:     required * 9, // roughly consistent with 300s AHT
		})
	}
	return out
}
