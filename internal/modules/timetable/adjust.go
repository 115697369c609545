package timetable

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/events"
)

// Op names a manual adjustment applied to a block range.
type Op string

const (
	OpAddWork       Op = "add_work"
	OpNoCalls       Op = "no_calls"
	OpAssignProject Op = "assign_project"
	OpAddLunch      Op = "add_lunch"
	OpAddBreak      Op = "add_break"
	OpCancelBreaks  Op = "cancel_breaks"
	OpEvent         Op = "event"
)

// Adjustment is one manual edit of an employee's plan. From/To bound the
// touched blocks half-open on the 15-minute grid.
type Adjustment struct {
	EmployeeID string    `json:"employee_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Op         Op        `json:"op"`
	// SkillID overrides the primary-skill fallback for add_work.
	SkillID string `json:"skill_id,omitempty"`
	// ProjectID targets assign_project.
	ProjectID string `json:"project_id,omitempty"`
	// Event is the activity for op event: meeting or training.
	Event domain.ActivityType `json:"event,omitempty"`
}

// aligned snaps the range outward onto the block grid.
func (a Adjustment) aligned() Adjustment {
	a.From = domain.AlignInterval(a.From)
	if to := domain.AlignInterval(a.To); to.Equal(a.To) {
		a.To = to
	} else {
		a.To = to.Add(domain.IntervalDuration)
	}
	return a
}

func (a Adjustment) validate() error {
	if a.EmployeeID == "" {
		return fmt.Errorf("%w: adjustment needs an employee", domain.ErrValidation)
	}
	if !a.To.After(a.From) {
		return fmt.Errorf("%w: empty block range %s..%s", domain.ErrValidation,
			a.From.Format(time.RFC3339), a.To.Format(time.RFC3339))
	}
	switch a.Op {
	case OpAddWork, OpNoCalls, OpAddLunch, OpAddBreak, OpCancelBreaks:
	case OpAssignProject:
		if a.ProjectID == "" {
			return fmt.Errorf("%w: assign_project needs a project id", domain.ErrValidation)
		}
	case OpEvent:
		if a.Event != domain.ActivityMeeting && a.Event != domain.ActivityTraining {
			return fmt.Errorf("%w: event must be meeting or training, got %q", domain.ErrValidation, a.Event)
		}
	default:
		return fmt.Errorf("%w: unknown adjustment op %q", domain.ErrValidation, a.Op)
	}
	return nil
}

// AdjustResult reports what an adjustment touched.
type AdjustResult struct {
	// Changed counts blocks whose activity actually changed.
	Changed int `json:"changed"`
	// Skipped counts locked blocks left untouched.
	Skipped int `json:"skipped"`
	// Blocks is the adjusted range after the edit, locked blocks included.
	Blocks []domain.TimetableBlock `json:"blocks"`
}

// Adjust applies one manual edit to an employee's plan. Locked blocks are
// skipped, every touched day is rewritten atomically through the gateway,
// and each changed day raises a BlockChanged event. A range covering no
// planned blocks returns ErrNotFound.
func (p *Planner) Adjust(ctx context.Context, adj Adjustment) (*AdjustResult, error) {
	adj = adj.aligned()
	if err := adj.validate(); err != nil {
		return nil, err
	}

	emp, err := p.employee(ctx, adj.EmployeeID)
	if err != nil {
		return nil, err
	}
	fallbackSkill := emp.PrimarySkill()

	loadRange := domain.DateRange{
		Start: domain.Day(adj.From),
		End:   domain.Day(adj.To.Add(-domain.IntervalDuration)).AddDate(0, 0, 1),
	}
	blocks, err := p.store.LoadTimetableBlocks(ctx, loadRange, []string{adj.EmployeeID})
	if err != nil {
		return nil, err
	}

	result := &AdjustResult{}
	changedPerDay := make(map[string]int)
	touched := false
	for i := range blocks {
		b := &blocks[i]
		if b.Start.Before(adj.From) || !b.Start.Before(adj.To) {
			continue
		}
		touched = true
		if b.Locked {
			result.Skipped++
		} else if applyOp(b, adj, fallbackSkill) {
			result.Changed++
			changedPerDay[dayKey(b.Start)]++
		}
		result.Blocks = append(result.Blocks, *b)
	}
	if !touched {
		return nil, fmt.Errorf("%w: no blocks between %s and %s for employee %s",
			domain.ErrNotFound, adj.From.Format(time.RFC3339), adj.To.Format(time.RFC3339), adj.EmployeeID)
	}
	if result.Changed == 0 {
		return result, nil
	}

	// Rewrite every changed day in full so the day plan stays consistent.
	persist := make([]domain.TimetableBlock, 0, len(blocks))
	for i := range blocks {
		if _, ok := changedPerDay[dayKey(blocks[i].Start)]; ok {
			persist = append(persist, blocks[i])
		}
	}
	if err := p.store.PersistTimetableBlocks(ctx, persist, "adjust"); err != nil {
		return nil, err
	}
	if p.invalidator != nil {
		p.invalidator.InvalidateEmployee(ctx, adj.EmployeeID)
	}

	days := lo.Keys(changedPerDay)
	sort.Strings(days)
	for _, dk := range days {
		day, _ := time.Parse("2006-01-02", dk)
		p.bus.Emit("timetable", &events.BlockChangedData{
			EmployeeID: adj.EmployeeID,
			Day:        day,
			Kind:       "adjust",
			Blocks:     changedPerDay[dk],
		})
	}
	p.log.Info().
		Str("employee_id", adj.EmployeeID).
		Str("op", string(adj.Op)).
		Int("changed", result.Changed).
		Int("skipped", result.Skipped).
		Msg("Applied manual adjustment")
	return result, nil
}

func (p *Planner) employee(ctx context.Context, id string) (*domain.Employee, error) {
	profiles, err := p.store.LoadEmployeeProfiles(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: employee %s", domain.ErrNotFound, id)
}

func applyOp(b *domain.TimetableBlock, adj Adjustment, fallbackSkill string) bool {
	switch adj.Op {
	case OpAddWork:
		skill := adj.SkillID
		if skill == "" {
			skill = fallbackSkill
		}
		return retarget(b, domain.ActivityWork, skill, "")
	case OpNoCalls:
		return retarget(b, domain.ActivityDowntime, "", "")
	case OpAssignProject:
		return retarget(b, domain.ActivityProject, "", adj.ProjectID)
	case OpAddLunch:
		return retarget(b, domain.ActivityLunch, "", "")
	case OpAddBreak:
		return retarget(b, domain.ActivityShortBreak, "", "")
	case OpCancelBreaks:
		if b.Activity != domain.ActivityLunch && b.Activity != domain.ActivityShortBreak {
			return false
		}
		return retarget(b, domain.ActivityWork, fallbackSkill, "")
	case OpEvent:
		return retarget(b, adj.Event, "", "")
	}
	return false
}

func retarget(b *domain.TimetableBlock, activity domain.ActivityType, skillID, projectID string) bool {
	if b.Activity == activity && b.SkillID == skillID && b.ProjectID == projectID {
		return false
	}
	b.Activity, b.SkillID, b.ProjectID = activity, skillID, projectID
	return true
}

func dayKey(t time.Time) string {
	return domain.Day(t).Format("2006-01-02")
}
