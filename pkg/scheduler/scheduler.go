// Package scheduler ties the event log, the job registry and the cluster
// state together. It replays a log into memory, accepts new events through
// a single writer, and fans job effects out to notifiers and the archive.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/registry"
)

// DefaultCleanPeriod is how long a finished job stays in the registry
// before the janitor cleans it.
const DefaultCleanPeriod = time.Hour

// orphanSweepEvery is the number of positions between orphan expiry sweeps.
const orphanSweepEvery = 1024

// ErrReadOnly is returned by Submit when the scheduler has no log writer.
var ErrReadOnly = errors.New("scheduler has no event log writer")

// Notifier receives job effects.
type Notifier interface {
	Notify(ctx context.Context, eff jobstate.Effect, rec *jobstate.JobRecord) error
}

// Archiver stores the final record of a cleaned job.
type Archiver interface {
	Archive(ctx context.Context, rec *jobstate.JobRecord, seq uint64) error
}

// Metrics receives counters. A nil Metrics disables them.
type Metrics interface {
	EventApplied(t event.Type, pos uint64)
	EventSkipped(cause string)
	LogAppended()
	LogRotated()
	JobsByStatus(counts map[event.Status]int)
}

// Options configure a Scheduler.
type Options struct {
	// Registry holds job records. A registry is created when nil.
	Registry *registry.Registry
	// Policy is the requeue policy. Nil uses jobstate.DefaultPolicy.
	Policy *jobstate.Policy

	// Log is the live writer. Without it the scheduler is read-only and
	// replays LogDir.
	Log    *eventlog.Store
	LogDir string

	Notifiers []Notifier
	Archive   Archiver
	Metrics   Metrics
	Logger    *zap.Logger

	// NotifyReplay sends effects of replayed events to the notifiers.
	// Archiving happens either way.
	NotifyReplay bool

	// MaxJobID is the ceiling for new job ids.
	MaxJobID int32
	// CleanPeriod is how long finished jobs stay before JOB_CLEAN. Zero
	// uses DefaultCleanPeriod; negative disables the sweep.
	CleanPeriod time.Duration
	// RateLimit caps replay throughput in records per second. Zero means
	// unlimited.
	RateLimit float64

	Now func() time.Time
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	opts    Options
	policy  jobstate.Policy
	reg     *registry.Registry
	cluster *cluster
	log     *zap.Logger
	limiter *rate.Limiter

	// writeMu keeps append order and apply order identical.
	writeMu sync.Mutex
	// appending is the base id of a JOB_NEW being appended, so a segment
	// switch triggered by that append records it.
	appending atomic.Int32

	sweepMu   sync.Mutex
	lastSweep uint64
}

// New creates a scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Log == nil && opts.LogDir == "" {
		return nil, fmt.Errorf("scheduler needs an event log or a log directory")
	}
	if opts.Log != nil && opts.LogDir == "" {
		opts.LogDir = opts.Log.Dir()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CleanPeriod == 0 {
		opts.CleanPeriod = DefaultCleanPeriod
	}
	if opts.MaxJobID <= 0 || opts.MaxJobID > jobid.MaxCeiling {
		opts.MaxJobID = jobid.DefaultCeiling
	}

	policy := jobstate.DefaultPolicy
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(registry.Options{Policy: policy, Logger: opts.Logger})
	}

	s := &Scheduler{
		opts:    opts,
		policy:  policy,
		reg:     reg,
		cluster: newCluster(),
		log:     opts.Logger,
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return s, nil
}

// Registry returns the job registry.
func (s *Scheduler) Registry() *registry.Registry {
	return s.reg
}

// Position returns the highest log position applied.
func (s *Scheduler) Position() eventlog.Position {
	s.cluster.mu.RLock()
	defer s.cluster.mu.RUnlock()
	return eventlog.Position(s.cluster.position)
}

// Cluster returns a snapshot of queue, host, master and job group state.
func (s *Scheduler) Cluster() ClusterState {
	return s.cluster.snapshot()
}

// Job returns a copy of one job's record.
func (s *Scheduler) Job(id jobid.ID) (*jobstate.JobRecord, bool) {
	return s.reg.Get(id)
}

// JobMatcher selects job records.
type JobMatcher interface {
	Match(rec *jobstate.JobRecord) bool
}

// Jobs returns the records accepted by m, ordered by job id. A nil m
// accepts every job; limit <= 0 means no limit.
func (s *Scheduler) Jobs(m JobMatcher, limit int) []*jobstate.JobRecord {
	var pred func(*jobstate.JobRecord) bool
	if m != nil {
		pred = m.Match
	}
	out := slices.Collect(s.reg.Scan(pred))
	slices.SortFunc(out, compareJobs)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func compareJobs(a, b *jobstate.JobRecord) int {
	switch {
	case a.ID.Less(b.ID):
		return -1
	case b.ID.Less(a.ID):
		return 1
	}
	return 0
}

// NextJobID returns the base id a new submission would receive: the one
// after the last id seen, wrapping at MaxJobID and skipping ids still held
// by live jobs.
func (s *Scheduler) NextJobID() (int32, error) {
	last := s.cluster.last()
	next := last
	for range s.opts.MaxJobID {
		next = jobid.NextAfter(next, s.opts.MaxJobID)
		if !s.reg.HasBase(next) {
			return next, nil
		}
	}
	return 0, fmt.Errorf("no free job id below %d", s.opts.MaxJobID)
}

// SwitchRecord builds the LOG_SWITCH record that opens a new segment.
func (s *Scheduler) SwitchRecord() *event.Record {
	last := s.appending.Load()
	if last == 0 {
		last = s.cluster.last()
	}
	return event.WithPayload(event.LogSwitch, s.opts.Now(), &event.LogSwitchLog{LastJobID: last})
}

// Submit appends rec to the log and applies it. Job events are checked
// against the current record first, so an event the state machine would
// reject, or one for a job that does not exist, never reaches the log.
func (s *Scheduler) Submit(ctx context.Context, rec *event.Record) (eventlog.Position, registry.Result, error) {
	if err := ctx.Err(); err != nil {
		return 0, registry.Result{}, err
	}
	if s.opts.Log == nil {
		return 0, registry.Result{}, ErrReadOnly
	}
	if rec == nil || rec.Payload == nil {
		return 0, registry.Result{}, fmt.Errorf("submit: empty record")
	}
	if rec.Version == "" {
		rec.Version = event.CurrentVersion
	}
	if rec.Time == 0 {
		rec.Time = s.opts.Now().Unix()
	}

	s.writeMu.Lock()
	if err := s.precheck(rec); err != nil {
		s.writeMu.Unlock()
		return 0, registry.Result{}, err
	}
	if p, ok := rec.Payload.(*event.JobNewLog); ok {
		s.appending.Store(p.JobID)
	}
	pos, err := s.opts.Log.Append(rec)
	s.appending.Store(0)
	if err != nil && pos == 0 {
		s.writeMu.Unlock()
		return 0, registry.Result{}, fmt.Errorf("append %s: %w", rec.Type, err)
	}
	if err != nil {
		// Written, but the segment switch after it failed.
		s.log.Error("event log segment switch failed", zap.Uint64("position", uint64(pos)), zap.Error(err))
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.LogAppended()
	}
	res, applyErr := s.apply(rec)
	s.writeMu.Unlock()

	s.dispatch(ctx, res, true)
	s.sweepOrphans(rec.Seq)
	if s.opts.Metrics != nil {
		s.opts.Metrics.JobsByStatus(s.reg.CountByStatus())
	}
	if applyErr != nil && !errors.Is(applyErr, registry.ErrNotJobEvent) {
		return pos, res, applyErr
	}
	return pos, res, nil
}

func (s *Scheduler) precheck(rec *event.Record) error {
	id, ok := rec.JobID()
	if !ok {
		return nil
	}
	cur, found := s.reg.Get(id)
	if !found && rec.Type != event.JobNew {
		return &registry.EventError{Kind: registry.ErrOrphanEvent, Job: id, Type: rec.Type}
	}
	_, _, err := jobstate.Apply(cur, rec, s.policy)
	return err
}

// apply folds one sequenced record into cluster and job state.
func (s *Scheduler) apply(rec *event.Record) (registry.Result, error) {
	tracked := s.cluster.observe(rec)
	res, err := s.reg.Apply(rec)
	if errors.Is(err, registry.ErrNotJobEvent) && tracked {
		err = nil
	}
	if s.opts.Metrics != nil {
		if err == nil {
			s.opts.Metrics.EventApplied(rec.Type, rec.Seq)
		} else {
			s.opts.Metrics.EventSkipped(skipCause(err))
		}
	}
	return res, err
}

func skipCause(err error) string {
	switch {
	case errors.Is(err, registry.ErrStaleEvent):
		return "stale"
	case errors.Is(err, registry.ErrOrphanEvent):
		return "orphan"
	case errors.Is(err, registry.ErrNotJobEvent):
		return "ignored"
	case errors.Is(err, jobstate.ErrIllegalTransition):
		return "illegal"
	}
	return "rejected"
}

// dispatch hands effects to the notifiers and cleaned records to the
// archive. Failures are logged; the registry is already updated.
func (s *Scheduler) dispatch(ctx context.Context, res registry.Result, notify bool) {
	for _, eff := range res.Effects {
		if notify {
			for _, n := range s.opts.Notifiers {
				if err := n.Notify(ctx, eff, res.Record); err != nil {
					s.log.Warn("notify failed",
						zap.String("job", eff.Job.String()),
						zap.String("effect", string(eff.Kind)),
						zap.Error(err))
				}
			}
		}
		if eff.Kind == jobstate.EffectCleaned && res.Removed && s.opts.Archive != nil {
			if err := s.opts.Archive.Archive(ctx, res.Record, eff.Seq); err != nil {
				s.log.Warn("archive failed",
					zap.String("job", eff.Job.String()),
					zap.Uint64("seq", eff.Seq),
					zap.Error(err))
			}
		}
	}
}

// sweepOrphans expires buffered orphans every orphanSweepEvery positions
// and returns how many were dropped.
func (s *Scheduler) sweepOrphans(pos uint64) int {
	s.sweepMu.Lock()
	if pos < s.lastSweep+orphanSweepEvery {
		s.sweepMu.Unlock()
		return 0
	}
	s.lastSweep = pos
	s.sweepMu.Unlock()

	expired := s.reg.ExpireOrphans(pos)
	for _, o := range expired {
		s.log.Warn("dropped orphan event",
			zap.String("job", o.Job.String()),
			zap.String("event_type", o.Type.String()),
			zap.Uint64("seq", o.Seq))
		if s.opts.Metrics != nil {
			s.opts.Metrics.EventSkipped("orphan_expired")
		}
	}
	return len(expired)
}
