package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// EmployeeRepo handles employee and skill master data in wfm.db. Employees
// are created upstream; this repository is the only mutation path into the
// store.
type EmployeeRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewEmployeeRepo creates a new employee repository.
func NewEmployeeRepo(db *sql.DB, log zerolog.Logger) *EmployeeRepo {
	return &EmployeeRepo{
		db:  db,
		log: log.With().Str("repo", "employees").Logger(),
	}
}

// employeeColumns is the column list for the employees table. Kept explicit
// so schema additions cannot silently shift scan targets.
const employeeColumns = `id, name, number, employment, age_category,
organization_id, department_id, group_id, manager_id,
max_daily_hours, max_weekly_hours, night_work, weekend_work,
overtime_allowed, work_rate`

// Profiles returns the employees with the given ids, skills attached, in id
// order. Unknown ids are simply absent from the result; callers that
// require a specific employee check presence themselves.
func (r *EmployeeRepo) Profiles(ctx context.Context, ids []string) ([]domain.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Employee
	err := withSnapshot(ctx, r.db, func(tx *sql.Tx) error {
		query := "SELECT " + employeeColumns + " FROM employees WHERE id IN (" +
			placeholders(len(ids)) + ") ORDER BY id"
		rows, err := tx.QueryContext(ctx, query, inArgs(ids)...)
		if err != nil {
			return fmt.Errorf("%w: querying employees: %w", domain.ErrUpstream, err)
		}
		defer rows.Close()
		if out, err = scanEmployees(rows); err != nil {
			return err
		}
		return attachSkills(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByDepartment returns every employee of one department in id order.
func (r *EmployeeRepo) ByDepartment(ctx context.Context, departmentID string) ([]domain.Employee, error) {
	var out []domain.Employee
	err := withSnapshot(ctx, r.db, func(tx *sql.Tx) error {
		query := "SELECT " + employeeColumns + " FROM employees WHERE department_id = ? ORDER BY id"
		rows, err := tx.QueryContext(ctx, query, departmentID)
		if err != nil {
			return fmt.Errorf("%w: querying department employees: %w", domain.ErrUpstream, err)
		}
		defer rows.Close()
		if out, err = scanEmployees(rows); err != nil {
			return err
		}
		return attachSkills(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save upserts employees and replaces their skill rows in one transaction.
// Re-saving the same employees converges to the same state.
func (r *EmployeeRepo) Save(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	now := fmtTime(time.Now())
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for i := range employees {
			e := &employees[i]
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO employees
				(id, name, number, employment, age_category, organization_id,
				 department_id, group_id, manager_id, max_daily_hours,
				 max_weekly_hours, night_work, weekend_work, overtime_allowed,
				 work_rate, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.Name, e.Number, string(e.Employment), string(e.AgeCategory),
				e.OrganizationID, e.DepartmentID, e.GroupID, e.ManagerID,
				e.Constraints.MaxDailyHours, e.Constraints.MaxWeeklyHours,
				boolToInt(e.Constraints.NightWork), boolToInt(e.Constraints.WeekendWork),
				boolToInt(e.Constraints.OvertimeAllowed), e.Constraints.WorkRate, now)
			if err != nil {
				return fmt.Errorf("upserting employee %s: %w", e.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM employee_skills WHERE employee_id = ?", e.ID); err != nil {
				return fmt.Errorf("clearing skills for %s: %w", e.ID, err)
			}
			for _, s := range e.Skills {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO employee_skills
					(employee_id, skill_id, proficiency, certified, is_primary)
					VALUES (?, ?, ?, ?, ?)`,
					e.ID, s.SkillID, s.Proficiency, boolToInt(s.Certified), boolToInt(s.Primary))
				if err != nil {
					return fmt.Errorf("inserting skill %s for %s: %w", s.SkillID, e.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}

// SaveSkills upserts rows of the skill catalog.
func (r *EmployeeRepo) SaveSkills(ctx context.Context, skills []domain.Skill) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, s := range skills {
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO skills (id, name, category, parent_skill_id)
				VALUES (?, ?, ?, ?)`,
				s.ID, s.Name, string(s.Category), s.ParentSkillID)
			if err != nil {
				return fmt.Errorf("upserting skill %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}

// Skills returns the full skill catalog.
func (r *EmployeeRepo) Skills(ctx context.Context) ([]domain.Skill, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, category, parent_skill_id FROM skills ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: querying skills: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.Skill
	for rows.Next() {
		var s domain.Skill
		var category string
		if err := rows.Scan(&s.ID, &s.Name, &category, &s.ParentSkillID); err != nil {
			return nil, fmt.Errorf("scanning skill: %w", err)
		}
		s.Category = domain.SkillCategory(category)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanEmployees(rows *sql.Rows) ([]domain.Employee, error) {
	var out []domain.Employee
	for rows.Next() {
		var e domain.Employee
		var employment, age string
		var night, weekend, overtime int
		err := rows.Scan(&e.ID, &e.Name, &e.Number, &employment, &age,
			&e.OrganizationID, &e.DepartmentID, &e.GroupID, &e.ManagerID,
			&e.Constraints.MaxDailyHours, &e.Constraints.MaxWeeklyHours,
			&night, &weekend, &overtime, &e.Constraints.WorkRate)
		if err != nil {
			return nil, fmt.Errorf("scanning employee: %w", err)
		}
		e.Employment = domain.EmploymentType(employment)
		e.AgeCategory = domain.AgeCategory(age)
		e.Constraints.NightWork = night != 0
		e.Constraints.WeekendWork = weekend != 0
		e.Constraints.OvertimeAllowed = overtime != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating employees: %w", err)
	}
	return out, nil
}

// attachSkills fills Skills on the given employees from employee_skills,
// inside the caller's snapshot transaction.
func attachSkills(ctx context.Context, tx *sql.Tx, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	ids := make([]string, len(employees))
	index := make(map[string]int, len(employees))
	for i := range employees {
		ids[i] = employees[i].ID
		index[employees[i].ID] = i
	}
	query := `SELECT employee_id, skill_id, proficiency, certified, is_primary
		FROM employee_skills WHERE employee_id IN (` + placeholders(len(ids)) + `)
		ORDER BY employee_id, skill_id`
	rows, err := tx.QueryContext(ctx, query, inArgs(ids)...)
	if err != nil {
		return fmt.Errorf("%w: querying employee skills: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	for rows.Next() {
		var employeeID string
		var s domain.EmployeeSkill
		var certified, primary int
		if err := rows.Scan(&employeeID, &s.SkillID, &s.Proficiency, &certified, &primary); err != nil {
			return fmt.Errorf("scanning employee skill: %w", err)
		}
		s.Certified = certified != 0
		s.Primary = primary != 0
		if i, ok := index[employeeID]; ok {
			employees[i].Skills = append(employees[i].Skills, s)
		}
	}
	return rows.Err()
}
