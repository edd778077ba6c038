// Package notify schedules "your photo is ready" notifications. Delivery is
// handled by an external system; this scheduler only hands the event off and
// its failures are logged, never escalated.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Scheduler records ready notifications for the delivery pipeline.
type Scheduler struct {
	logger zerolog.Logger
}

// NewScheduler creates a log-backed scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// ScheduleReady enqueues a job-ready notification for the owner.
func (s *Scheduler) ScheduleReady(ctx context.Context, ownerID, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info().
		Str("owner_id", ownerID).
		Str("job_id", jobID).
		Msg("notify: job ready notification scheduled")
	return nil
}
