package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
	"github.com/workforcelab/intraday/internal/domain"
)

// TimetableRepo handles timetable blocks and the block change feed in
// wfm.db. Every block write appends a change-feed row in the same
// transaction, so consumers of RecentChanges never observe a plan without
// its feed entry.
type TimetableRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTimetableRepo creates a new timetable repository.
func NewTimetableRepo(db *sql.DB, log zerolog.Logger) *TimetableRepo {
	return &TimetableRepo{db: db, log: log.With().Str("repo", "timetable").Logger()}
}

// BlockUpdate is a partial mutation of one block. Nil fields are left
// unchanged.
type BlockUpdate struct {
	Activity  *domain.ActivityType
	SkillID   *string
	ProjectID *string
	Locked    *bool
}

const blockColumns = `id, employee_id, start_at, activity, skill_id,
project_id, is_locked, template_code, created_at`

// InRange returns blocks whose day falls in r, ordered by employee and
// start. A nil or empty employee filter returns everyone's blocks.
func (r *TimetableRepo) InRange(ctx context.Context, dr domain.DateRange, employeeIDs []string) ([]domain.TimetableBlock, error) {
	query := "SELECT " + blockColumns + ` FROM timetable_blocks
		WHERE block_date >= ? AND block_date < ?`
	args := []any{fmtDate(dr.Start), fmtDate(dr.End)}
	if len(employeeIDs) > 0 {
		query += " AND employee_id IN (" + placeholders(len(employeeIDs)) + ")"
		args = append(args, inArgs(employeeIDs)...)
	}
	query += " ORDER BY employee_id, start_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying timetable blocks: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

// PersistBlocks replaces each touched (employee, day) plan atomically:
// existing blocks for the day are dropped, the new ones inserted, and one
// change-feed row appended per day, all in a single transaction. Writing
// the same plan twice converges.
func (r *TimetableRepo) PersistBlocks(ctx context.Context, blocks []domain.TimetableBlock, kind string) error {
	if len(blocks) == 0 {
		return nil
	}
	type dayKey struct {
		employeeID string
		day        string
	}
	grouped := make(map[dayKey][]domain.TimetableBlock)
	for _, b := range blocks {
		k := dayKey{b.EmployeeID, fmtDate(domain.Day(b.Start))}
		grouped[k] = append(grouped[k], b)
	}
	keys := make([]dayKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].employeeID != keys[j].employeeID {
			return keys[i].employeeID < keys[j].employeeID
		}
		return keys[i].day < keys[j].day
	})

	now := fmtTime(time.Now())
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM timetable_blocks WHERE employee_id = ? AND block_date = ?",
				k.employeeID, k.day); err != nil {
				return fmt.Errorf("clearing blocks for %s on %s: %w", k.employeeID, k.day, err)
			}
			for _, b := range grouped[k] {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO timetable_blocks
					(employee_id, block_date, start_at, activity, skill_id,
					 project_id, is_locked, template_code, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					b.EmployeeID, k.day, fmtTime(b.Start), string(b.Activity),
					b.SkillID, b.ProjectID, boolToInt(b.Locked), b.TemplateCode, now)
				if err != nil {
					return fmt.Errorf("inserting block for %s at %s: %w",
						b.EmployeeID, b.Start.Format(time.RFC3339), err)
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO block_changes (employee_id, day, changed_at, kind, blocks)
				VALUES (?, ?, ?, ?, ?)`,
				k.employeeID, k.day, now, kind, len(grouped[k])); err != nil {
				return fmt.Errorf("recording block change for %s on %s: %w", k.employeeID, k.day, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	r.log.Debug().Int("blocks", len(blocks)).Int("days", len(keys)).Str("kind", kind).
		Msg("Persisted timetable blocks")
	return nil
}

// UpdateBlock applies a partial change to one block. Locked blocks reject
// every change except an explicit unlock. The change feed records the
// mutation in the same transaction.
func (r *TimetableRepo) UpdateBlock(ctx context.Context, id int64, upd BlockUpdate) (domain.TimetableBlock, error) {
	var updated domain.TimetableBlock
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+blockColumns+" FROM timetable_blocks WHERE id = ?", id)
		cur, err := scanBlock(row)
		if err != nil {
			return err
		}

		unlocking := upd.Locked != nil && !*upd.Locked
		if cur.Locked && !unlocking {
			return fmt.Errorf("%w: block %d is locked", domain.ErrConflict, id)
		}

		if upd.Activity != nil {
			cur.Activity = *upd.Activity
		}
		if upd.SkillID != nil {
			cur.SkillID = *upd.SkillID
		}
		if upd.ProjectID != nil {
			cur.ProjectID = *upd.ProjectID
		}
		if upd.Locked != nil {
			cur.Locked = *upd.Locked
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE timetable_blocks
			SET activity = ?, skill_id = ?, project_id = ?, is_locked = ?
			WHERE id = ?`,
			string(cur.Activity), cur.SkillID, cur.ProjectID, boolToInt(cur.Locked), id); err != nil {
			return fmt.Errorf("updating block %d: %w", id, err)
		}

		kind := "adjust"
		if upd.Activity == nil && upd.SkillID == nil && upd.ProjectID == nil && upd.Locked != nil {
			kind = "lock"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO block_changes (employee_id, day, changed_at, kind, blocks)
			VALUES (?, ?, ?, ?, 1)`,
			cur.EmployeeID, fmtDate(domain.Day(cur.Start)), fmtTime(time.Now()), kind); err != nil {
			return fmt.Errorf("recording block change for block %d: %w", id, err)
		}

		updated = cur
		return nil
	})
	if err != nil {
		// Keep the caller-relevant kinds visible instead of rewrapping
		// everything as upstream.
		switch domain.ErrorKind(err) {
		case "not_found", "conflict":
			return domain.TimetableBlock{}, err
		}
		return domain.TimetableBlock{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return updated, nil
}

// RecentChanges returns change-feed rows strictly after since, in feed
// order.
func (r *TimetableRepo) RecentChanges(ctx context.Context, since time.Time) ([]domain.BlockChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, employee_id, day, changed_at, kind, blocks
		FROM block_changes WHERE changed_at > ? ORDER BY id`,
		fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("%w: querying block changes: %w", domain.ErrUpstream, err)
	}
	defer rows.Close()

	var out []domain.BlockChange
	for rows.Next() {
		var c domain.BlockChange
		var day, changed string
		if err := rows.Scan(&c.ID, &c.EmployeeID, &day, &changed, &c.Kind, &c.Blocks); err != nil {
			return nil, fmt.Errorf("scanning block change: %w", err)
		}
		if c.Day, err = parseDate(day); err != nil {
			return nil, err
		}
		if c.ChangedAt, err = parseTimestamp(changed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneChanges drops change-feed rows older than the cutoff and reports how
// many went away.
func (r *TimetableRepo) PruneChanges(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM block_changes WHERE changed_at < ?", fmtTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("%w: pruning block changes: %w", domain.ErrUpstream, err)
	}
	return res.RowsAffected()
}

func scanBlock(row *sql.Row) (domain.TimetableBlock, error) {
	var b domain.TimetableBlock
	var start, activity, created string
	var locked int
	err := row.Scan(&b.ID, &b.EmployeeID, &start, &activity, &b.SkillID,
		&b.ProjectID, &locked, &b.TemplateCode, &created)
	if err == sql.ErrNoRows {
		return b, fmt.Errorf("%w: timetable block", domain.ErrNotFound)
	}
	if err != nil {
		return b, fmt.Errorf("scanning timetable block: %w", err)
	}
	return populateBlock(b, start, activity, created, locked)
}

func scanBlocks(rows *sql.Rows) ([]domain.TimetableBlock, error) {
	var out []domain.TimetableBlock
	for rows.Next() {
		var b domain.TimetableBlock
		var start, activity, created string
		var locked int
		if err := rows.Scan(&b.ID, &b.EmployeeID, &start, &activity, &b.SkillID,
			&b.ProjectID, &locked, &b.TemplateCode, &created); err != nil {
			return nil, fmt.Errorf("scanning timetable block: %w", err)
		}
		block, err := populateBlock(b, start, activity, created, locked)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timetable blocks: %w", err)
	}
	return out, nil
}

func populateBlock(b domain.TimetableBlock, start, activity, created string, locked int) (domain.TimetableBlock, error) {
	var err error
	if b.Start, err = parseTimestamp(start); err != nil {
		return b, err
	}
	if b.CreatedAt, err = parseTimestamp(created); err != nil {
		return b, err
	}
	b.Activity = domain.ActivityType(activity)
	b.Locked = locked != 0
	return b, nil
}
