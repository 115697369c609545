package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrigger struct {
	wakes int
}

func (f *fakeTrigger) Trigger() { f.wakes++ }

type fakeCompletions struct {
	typeIDs  []string
	prefixes []string
}

func (f *fakeCompletions) ClearByTypeID(typeID string) { f.typeIDs = append(f.typeIDs, typeID) }
func (f *fakeCompletions) ClearByPrefix(prefix string) { f.prefixes = append(f.prefixes, prefix) }

func TestBackupSpec(t *testing.T) {
	assert.Equal(t, "0 0 0 * * *", BackupSpec("daily"))
	assert.Equal(t, "0 0 0 * * SUN", BackupSpec("weekly"))
	assert.Equal(t, "0 0 0 1 * *", BackupSpec("monthly"))
	assert.Equal(t, "0 0 0 * * *", BackupSpec(""))
	assert.Equal(t, "0 0 0 * * *", BackupSpec("fortnightly"))
}

func TestPumpJobWakesProcessor(t *testing.T) {
	trigger := &fakeTrigger{}
	job := &PumpJob{Work: trigger}

	require.NoError(t, job.Run())
	assert.Equal(t, 1, trigger.wakes)
	assert.Equal(t, "work-pump", job.Name())
}

func TestNightlyResetClearsDailyWork(t *testing.T) {
	trigger := &fakeTrigger{}
	completions := &fakeCompletions{}
	job := &NightlyResetJob{Completions: completions, Work: trigger}

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"rules:refresh", "sweep:compliance", "retention:cleanup"}, completions.typeIDs)
	assert.Empty(t, completions.prefixes)
	assert.Equal(t, 1, trigger.wakes)
}

func TestBackupResetClearsChain(t *testing.T) {
	trigger := &fakeTrigger{}
	completions := &fakeCompletions{}
	job := &BackupResetJob{Completions: completions, Work: trigger}

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"backup:"}, completions.prefixes)
	assert.Empty(t, completions.typeIDs)
	assert.Equal(t, 1, trigger.wakes)
}

func TestRegisterStandardJobs(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, RegisterStandardJobs(s, &fakeTrigger{}, &fakeCompletions{}, "weekly"))
	assert.Equal(t, []string{"work-pump", "nightly-reset", "backup-reset"}, s.Names())
}
