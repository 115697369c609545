package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules. It is the clock of the system: the
// work processor only wakes when something pokes it, and outside of domain
// events that something is a scheduler job.
type Scheduler struct {
	cron  *cron.Cron
	names []string
	log   zerolog.Logger
}

// New creates a stopped scheduler. Specs use six fields (seconds first) or
// the @hourly/@every descriptors.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job under a cron spec.
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running scheduled job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", job.Name(), spec, err)
	}

	s.names = append(s.names, job.Name())
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("Job scheduled")
	return nil
}

// Names lists the registered jobs in registration order.
func (s *Scheduler) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Start begins firing schedules on their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.names)).Msg("Scheduler started")
}

// Stop halts the schedule and waits for any running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}
