// Package jobs runs the background reclamation sweep on a cron schedule.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/teealloy/accountd/internal/deletion"
)

// DefaultSweepSchedule runs the reclamation sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// Scheduler owns the cron runner for periodic maintenance jobs.
type Scheduler struct {
	cron      *cron.Cron
	deletions *deletion.Store
}

// NewScheduler constructs a Scheduler around the deletion store.
func NewScheduler(deletions *deletion.Store) *Scheduler {
	return &Scheduler{cron: cron.New(), deletions: deletions}
}

// Start registers the sweep job and starts the cron runner. An invalid
// schedule falls back to the default.
func (s *Scheduler) Start(ctx context.Context, schedule string) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	sweep := func() {
		reclaimed, err := s.deletions.ReclaimDue(ctx)
		if err != nil {
			log.WithError(err).Error("reclamation sweep failed")
			return
		}
		if reclaimed > 0 {
			log.WithField("reclaimed", reclaimed).Info("reclamation sweep finished")
		}
	}

	if _, err := s.cron.AddFunc(schedule, sweep); err != nil {
		log.WithError(err).WithField("schedule", schedule).
			Warn("invalid sweep schedule, using default")
		_, _ = s.cron.AddFunc(DefaultSweepSchedule, sweep)
	}

	s.cron.Start()
	log.WithField("schedule", schedule).Info("job scheduler started")
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("job scheduler stopped")
}
