package reliability

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/database"
	wfmtest "github.com/workforcelab/intraday/internal/testing"
)

func newBackupFixture(t *testing.T) (*BackupService, string) {
	t.Helper()

	wfm, cleanupWfm := wfmtest.NewTestDB(t, "wfm")
	audit, cleanupAudit := wfmtest.NewTestDB(t, "audit")
	t.Cleanup(cleanupWfm)
	t.Cleanup(cleanupAudit)

	dir := t.TempDir()

	return NewBackupService([]*database.DB{wfm, audit}, dir, zerolog.Nop()), dir
}

func TestRunDailyBackupCreatesVerifiedSet(t *testing.T) {
	svc, dir := newBackupFixture(t)

	require.False(t, svc.BackedUpToday())

	err := svc.RunDailyBackup(context.Background())
	require.NoError(t, err)

	setDir := filepath.Join(dir, "daily", time.Now().Format("2006-01-02"))
	for _, name := range []string{"wfm.db", "audit.db"} {
		info, err := os.Stat(filepath.Join(setDir, name))
		require.NoError(t, err, "expected snapshot %s", name)
		assert.Greater(t, info.Size(), int64(0))
	}

	assert.True(t, svc.BackedUpToday())
}

func TestRunDailyBackupOverwritesSameDaySet(t *testing.T) {
	svc, _ := newBackupFixture(t)

	require.NoError(t, svc.RunDailyBackup(context.Background()))

	// VACUUM INTO refuses to overwrite, so a second run must replace the
	// existing snapshots instead of failing on them.
	require.NoError(t, svc.RunDailyBackup(context.Background()))
	assert.True(t, svc.BackedUpToday())
}

func TestBackedUpTodayRejectsPartialSet(t *testing.T) {
	svc, dir := newBackupFixture(t)

	require.NoError(t, svc.RunDailyBackup(context.Background()))

	setDir := filepath.Join(dir, "daily", time.Now().Format("2006-01-02"))
	require.NoError(t, os.Remove(filepath.Join(setDir, "audit.db")))

	assert.False(t, svc.BackedUpToday())
}

func TestLatestSetPicksNewestDate(t *testing.T) {
	svc, dir := newBackupFixture(t)

	_, ok := svc.LatestSet()
	assert.False(t, ok, "no sets exist yet")

	for _, day := range []string{"2026-08-01", "2026-08-15", "2026-08-03"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "daily", day), 0755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "daily", "scratch"), 0755))

	set, ok := svc.LatestSet()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "daily", "2026-08-15"), set)
}

func TestRotateRemovesExpiredSets(t *testing.T) {
	svc, dir := newBackupFixture(t)

	oldDay := time.Now().AddDate(0, 0, -defaultKeepDays-5).Format("2006-01-02")
	freshDay := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	for _, day := range []string{oldDay, freshDay} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "daily", day), 0755))
	}

	require.NoError(t, svc.RunDailyBackup(context.Background()))

	_, err := os.Stat(filepath.Join(dir, "daily", oldDay))
	assert.True(t, os.IsNotExist(err), "expired set should be removed")

	_, err = os.Stat(filepath.Join(dir, "daily", freshDay))
	assert.NoError(t, err, "recent set should survive")
}

func TestVerifySnapshotRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.db")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.Error(t, verifySnapshot(context.Background(), empty))

	garbage := filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(garbage, []byte("not a database"), 0644))
	assert.Error(t, verifySnapshot(context.Background(), garbage))

	assert.Error(t, verifySnapshot(context.Background(), filepath.Join(dir, "missing.db")))
}
