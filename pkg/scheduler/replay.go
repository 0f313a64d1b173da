package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/registry"
)

// ReplayStats summarizes one replay pass. To is the position to resume
// from.
type ReplayStats struct {
	From eventlog.Position `json:"from"`
	To   eventlog.Position `json:"to"`

	Records   int `json:"records"`
	Applied   int `json:"applied"`
	Stale     int `json:"stale"`
	Orphaned  int `json:"orphaned"`
	Drained   int `json:"drained"`
	Expired   int `json:"expired"`
	Rejected  int `json:"rejected"`
	Ignored   int `json:"ignored"`
	Malformed int `json:"malformed"`

	Duration time.Duration `json:"duration"`
}

// Skipped counts records read but not applied.
func (st ReplayStats) Skipped() int {
	return st.Stale + st.Orphaned + st.Rejected + st.Ignored + st.Malformed
}

// Replay applies every record after from up to the current end of the log.
//
// Undecodable records are logged and skipped. Replay stops with an error
// only on context cancellation, a corrupt index or a record in an
// unsupported major version. The returned stats are valid in every case;
// replaying again from stats.To resumes where this pass stopped, and
// overlapping replays are harmless because stale events are skipped.
func (s *Scheduler) Replay(ctx context.Context, from eventlog.Position) (ReplayStats, error) {
	r, err := s.openReader(from)
	if err != nil {
		return ReplayStats{From: from, To: from}, err
	}
	defer r.Close()

	stats, err := s.consume(ctx, r, from, nil)
	if s.opts.Metrics != nil {
		s.opts.Metrics.JobsByStatus(s.reg.CountByStatus())
	}
	return stats, err
}

// RecordFunc observes one replayed record with the outcome of applying it.
type RecordFunc func(rec *event.Record, res registry.Result, err error)

// Follow replays from from and then keeps polling the log for records
// appended by another process, calling each for every record applied. It
// returns when ctx is done or replay fails.
func (s *Scheduler) Follow(ctx context.Context, from eventlog.Position, poll time.Duration, each RecordFunc) error {
	if poll <= 0 {
		poll = time.Second
	}
	r, err := s.openReader(from)
	if err != nil {
		return err
	}
	defer r.Close()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	pos := from
	for {
		stats, err := s.consume(ctx, r, pos, each)
		if err != nil {
			return err
		}
		pos = stats.To
		if stats.Records > 0 && s.opts.Metrics != nil {
			s.opts.Metrics.JobsByStatus(s.reg.CountByStatus())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) openReader(from eventlog.Position) (*eventlog.Reader, error) {
	var (
		r   *eventlog.Reader
		err error
	)
	if s.opts.Log != nil {
		r, err = s.opts.Log.NewReader(from)
	} else {
		r, err = eventlog.OpenReader(s.opts.LogDir, from)
	}
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", s.opts.LogDir, err)
	}
	return r, nil
}

// consume reads r to its current end. each, when set, sees every record
// after it is applied.
func (s *Scheduler) consume(ctx context.Context, r *eventlog.Reader, from eventlog.Position, each RecordFunc) (ReplayStats, error) {
	start := s.opts.Now()
	stats := ReplayStats{From: from, To: from}
	finish := func(err error) (ReplayStats, error) {
		stats.To = r.Position()
		stats.Duration = s.opts.Now().Sub(start)
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return finish(err)
			}
		}

		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		var recErr *eventlog.RecordError
		if errors.As(err, &recErr) {
			if event.Fatal(recErr.Err) {
				return finish(err)
			}
			stats.Malformed++
			s.log.Warn("skipping undecodable record",
				zap.String("segment", recErr.Segment),
				zap.Uint64("position", uint64(recErr.Position)),
				zap.Error(recErr.Err))
			if s.opts.Metrics != nil {
				s.opts.Metrics.EventSkipped("malformed")
			}
			continue
		}
		if err != nil {
			return finish(fmt.Errorf("read event log: %w", err))
		}

		stats.Records++
		res, applyErr := s.apply(rec)
		s.tally(&stats, rec, res, applyErr)
		s.dispatch(ctx, res, s.opts.NotifyReplay)
		stats.Expired += s.sweepOrphans(rec.Seq)
		if each != nil {
			each(rec, res, applyErr)
		}
	}
}

func (s *Scheduler) tally(stats *ReplayStats, rec *event.Record, res registry.Result, err error) {
	stats.Drained += res.Drained
	stats.Rejected += len(res.DrainErrors)

	switch {
	case err == nil:
		stats.Applied++
	case errors.Is(err, registry.ErrStaleEvent):
		stats.Stale++
	case errors.Is(err, registry.ErrOrphanEvent):
		stats.Orphaned++
	case errors.Is(err, registry.ErrNotJobEvent):
		stats.Ignored++
	default:
		stats.Rejected++
		level := zap.WarnLevel
		if !errors.Is(err, jobstate.ErrIllegalTransition) {
			level = zap.ErrorLevel
		}
		s.log.Log(level, "event rejected",
			zap.String("event_type", rec.Type.String()),
			zap.Uint64("seq", rec.Seq),
			zap.Error(err))
	}
}
