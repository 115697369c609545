// Package reliability keeps the databases recoverable. Local snapshots are
// taken with SQLite's VACUUM INTO, mirrored to S3-compatible storage as
// checksummed archives, and aged rows are trimmed on a retention schedule.
package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/database"
)

const dateDirFormat = "2006-01-02"

// defaultKeepDays bounds the local snapshot history. Remote copies have
// their own retention managed by RemoteBackupService.
const defaultKeepDays = 30

// BackupService snapshots every registered database into a date-named
// directory under <backupDir>/daily. VACUUM INTO produces a consistent,
// WAL-free copy without blocking writers.
type BackupService struct {
	databases []*database.DB
	backupDir string
	keepDays  int
	log       zerolog.Logger
}

// NewBackupService creates the local backup service. Snapshots land under
// backupDir/daily/<YYYY-MM-DD>/<name>.db.
func NewBackupService(databases []*database.DB, backupDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		backupDir: backupDir,
		keepDays:  defaultKeepDays,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// RunDailyBackup snapshots every database into today's set, verifies each
// snapshot, and drops local sets older than the keep window. Any snapshot or
// verification failure aborts the run; the work engine retries the whole
// backup, and a partial set never satisfies BackedUpToday.
func (s *BackupService) RunDailyBackup(ctx context.Context) error {
	startTime := time.Now()
	setDir := filepath.Join(s.backupDir, "daily", startTime.Format(dateDirFormat))

	if err := os.MkdirAll(setDir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	for _, db := range s.databases {
		target := filepath.Join(setDir, db.Name()+".db")

		s.log.Debug().
			Str("database", db.Name()).
			Str("target", target).
			Msg("Snapshotting database")

		if err := snapshotDatabase(ctx, db, target); err != nil {
			return fmt.Errorf("backing up %s: %w", db.Name(), err)
		}
		if err := verifySnapshot(ctx, target); err != nil {
			return fmt.Errorf("verifying %s snapshot: %w", db.Name(), err)
		}
	}

	s.rotate()

	s.log.Info().
		Str("set", filepath.Base(setDir)).
		Int("databases", len(s.databases)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily backup completed")

	return nil
}

// BackedUpToday reports whether today's set already holds a non-empty
// snapshot for every database. The daily backup work type uses this to stay
// idempotent within a day.
func (s *BackupService) BackedUpToday() bool {
	if len(s.databases) == 0 {
		return false
	}

	setDir := filepath.Join(s.backupDir, "daily", time.Now().Format(dateDirFormat))

	for _, db := range s.databases {
		info, err := os.Stat(filepath.Join(setDir, db.Name()+".db"))
		if err != nil || info.Size() == 0 {
			return false
		}
	}

	return true
}

// LatestSet returns the path of the most recent backup set, or false when no
// set exists yet. Date-named directories sort chronologically as strings.
func (s *BackupService) LatestSet() (string, bool) {
	dailyDir := filepath.Join(s.backupDir, "daily")

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return "", false
	}

	var latest string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(dateDirFormat, entry.Name()); err != nil {
			continue
		}
		if entry.Name() > latest {
			latest = entry.Name()
		}
	}

	if latest == "" {
		return "", false
	}

	return filepath.Join(dailyDir, latest), true
}

// snapshotDatabase writes a consistent copy of db to target. VACUUM INTO
// refuses to overwrite, so a partial file left by an aborted attempt is
// removed first.
func snapshotDatabase(ctx context.Context, db *database.DB, target string) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale snapshot: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", target)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	return nil
}

// verifySnapshot opens the snapshot and runs an integrity check. A backup
// that cannot be restored is worse than none.
func verifySnapshot(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("snapshot %s is empty", filepath.Base(path))
	}

	snapshot, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer snapshot.Close()

	var result string
	if err := snapshot.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotate removes local sets older than the keep window. Failures are logged
// and skipped so an undeletable old set never blocks a fresh backup.
func (s *BackupService) rotate() {
	dailyDir := filepath.Join(s.backupDir, "daily")

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not read backup directory for rotation")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.keepDays)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		day, err := time.Parse(dateDirFormat, entry.Name())
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(dailyDir, entry.Name())); err != nil {
			s.log.Warn().Err(err).Str("set", entry.Name()).Msg("Could not remove old backup set")
			continue
		}

		s.log.Info().Str("set", entry.Name()).Msg("Removed old backup set")
	}
}
