package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/registry"
)

// DefaultJanitorSchedule runs the clean sweep every five minutes.
const DefaultJanitorSchedule = "*/5 * * * *"

// ParseSchedule parses a five-field cron expression or a descriptor such
// as "@hourly" or "@every 10m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// CleanSweep submits JOB_CLEAN for every finished job that ended at least
// CleanPeriod before now, and returns how many were cleaned.
func (s *Scheduler) CleanSweep(ctx context.Context, now time.Time) (int, error) {
	if s.opts.Log == nil {
		return 0, ErrReadOnly
	}
	if s.opts.CleanPeriod < 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.opts.CleanPeriod)
	due := slices.Collect(s.reg.Scan(func(rec *jobstate.JobRecord) bool {
		return rec.Terminal() && rec.EndTime != nil && !rec.EndTime.After(cutoff)
	}))
	slices.SortFunc(due, compareJobs)

	cleaned := 0
	for _, rec := range due {
		clean := event.WithPayload(event.JobClean, now, &event.JobCleanLog{JobID: rec.ID.Base, Idx: rec.ID.Index})
		_, _, err := s.Submit(ctx, clean)
		switch {
		case err == nil:
			cleaned++
		case errors.Is(err, registry.ErrOrphanEvent), errors.Is(err, jobstate.ErrIllegalTransition):
			// Requeued or removed since the scan.
			s.log.Debug("clean skipped", zap.String("job", rec.ID.String()), zap.Error(err))
		default:
			return cleaned, err
		}
	}

	if cleaned > 0 {
		s.log.Info("cleaned finished jobs",
			zap.Int("count", cleaned),
			zap.Duration("clean_period", s.opts.CleanPeriod))
	}
	return cleaned, nil
}

// RunJanitor runs CleanSweep on the cron schedule spec until ctx is done.
func (s *Scheduler) RunJanitor(ctx context.Context, spec string) error {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	for {
		now := s.opts.Now()
		timer := time.NewTimer(schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.CleanSweep(ctx, s.opts.Now()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("clean sweep failed", zap.Error(err))
		}
	}
}
