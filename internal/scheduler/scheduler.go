// Package scheduler runs the collection pipeline on a cron cadence for
// daemon mode.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultJobTimeout bounds one scheduled run; a feed scan that cannot
// finish inside it is wedged, not slow.
const DefaultJobTimeout = 30 * time.Minute

// Job is one scheduled task.
type Job func(ctx context.Context) error

// Scheduler manages periodic pipeline runs in a fixed timezone.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	log      *logrus.Entry
}

// New creates a scheduler whose cron expressions are evaluated in the
// given timezone (for example "Asia/Seoul").
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		log:      logrus.WithField("component", "scheduler"),
	}, nil
}

// Timezone returns the location schedules run in.
func (s *Scheduler) Timezone() *time.Location {
	return s.timezone
}

// AddJob registers a job under a five-field cron schedule such as
// "0 7 * * *". Each run gets its own timeout context; a zero timeout
// falls back to DefaultJobTimeout. Job errors are logged, never fatal.
func (s *Scheduler) AddJob(name, schedule string, timeout time.Duration, job Job) error {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.log.Infof("starting job: %s", name)
		start := time.Now()

		if err := job(ctx); err != nil {
			s.log.Errorf("job %s failed: %v", name, err)
			return
		}
		s.log.Infof("job %s completed in %s", name, time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Infof("added job: %s (schedule: %s, tz: %s)", name, schedule, s.timezone)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.log.Info("starting")
	s.cron.Start()
}

// Stop halts scheduling. The returned context is done once jobs already
// in flight have finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("stopping")
	return s.cron.Stop()
}

// JobInfo describes one scheduled job.
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitempty"`
}

// Jobs lists the registered jobs with their next and last run times.
func (s *Scheduler) Jobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(s.jobs))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}
	return infos
}
