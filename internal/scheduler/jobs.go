package scheduler

// The standard schedule. Cron never executes work directly; jobs clear
// completion records and wake the processor, whose own timing, interval and
// dependency checks decide what actually runs. Six-field specs, seconds
// first.
const (
	// Hourly pump, on the hour. Keeps interval-stale work moving on days
	// without domain events, and is the wake that opens the maintenance
	// window at 02:00.
	PumpSpec = "0 0 * * * *"

	// Midnight reset for the daily work types, so their next runs pin to
	// the operational cadence instead of drifting with yesterday's finish
	// times.
	NightlyResetSpec = "0 0 0 * * *"
)

// BackupSpec maps the stored backup cadence to a cron spec. Unknown values
// fall back to daily.
func BackupSpec(schedule string) string {
	switch schedule {
	case "weekly":
		return "0 0 0 * * SUN"
	case "monthly":
		return "0 0 0 1 * *"
	default:
		return "0 0 0 * * *"
	}
}

// WorkTrigger wakes the work processor.
type WorkTrigger interface {
	Trigger()
}

// CompletionStore clears completion records to force re-runs.
type CompletionStore interface {
	ClearByTypeID(typeID string)
	ClearByPrefix(prefix string)
}

// PumpJob wakes the processor.
type PumpJob struct {
	Work WorkTrigger
}

func (j *PumpJob) Name() string { return "work-pump" }

func (j *PumpJob) Run() error {
	j.Work.Trigger()
	return nil
}

// NightlyResetJob clears the daily work types at midnight. Anytime and
// off-peak work runs right away in the quiet hours; window-bound work waits
// for the maintenance window to open.
type NightlyResetJob struct {
	Completions CompletionStore
	Work        WorkTrigger
}

func (j *NightlyResetJob) Name() string { return "nightly-reset" }

func (j *NightlyResetJob) Run() error {
	j.Completions.ClearByTypeID("rules:refresh")
	j.Completions.ClearByTypeID("sweep:compliance")
	j.Completions.ClearByTypeID("retention:cleanup")
	j.Work.Trigger()
	return nil
}

// BackupResetJob clears the whole backup chain on the configured cadence,
// making the local backup and its remote mirror due again.
type BackupResetJob struct {
	Completions CompletionStore
	Work        WorkTrigger
}

func (j *BackupResetJob) Name() string { return "backup-reset" }

func (j *BackupResetJob) Run() error {
	j.Completions.ClearByPrefix("backup:")
	j.Work.Trigger()
	return nil
}

// RegisterStandardJobs wires the standard schedule against the work engine.
// backupSchedule is the stored backup.schedule setting (daily, weekly,
// monthly).
func RegisterStandardJobs(s *Scheduler, work WorkTrigger, completions CompletionStore, backupSchedule string) error {
	if err := s.AddJob(PumpSpec, &PumpJob{Work: work}); err != nil {
		return err
	}
	if err := s.AddJob(NightlyResetSpec, &NightlyResetJob{Completions: completions, Work: work}); err != nil {
		return err
	}
	return s.AddJob(BackupSpec(backupSchedule), &BackupResetJob{Completions: completions, Work: work})
}
