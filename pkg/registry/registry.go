// Package registry holds the live job records derived from the event log.
//
// Records are partitioned into shards by base job id. Each shard serializes
// its own mutations, so events for one job never apply concurrently while
// events for jobs in different shards proceed in parallel.
package registry

import (
	"cmp"
	"iter"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

const (
	DefaultShardCount   = 16
	DefaultOrphanWindow = 10000
)

// Options configure a Registry.
type Options struct {
	ShardCount int
	// OrphanWindow is how many positions an orphan event may wait for its
	// JOB_NEW before ExpireOrphans drops it.
	OrphanWindow uint64
	Policy       jobstate.Policy
	Logger       *zap.Logger
}

// Result describes the outcome of Apply.
type Result struct {
	JobID   jobid.ID
	Record  *jobstate.JobRecord
	Effects []jobstate.Effect
	// Removed is set when a JOB_CLEAN dropped the record. Record then holds
	// its final state.
	Removed bool
	// Buffered is set when the event was held as an orphan.
	Buffered bool
	// Drained counts buffered orphans applied after a JOB_NEW.
	Drained int
	// DrainErrors holds failures of drained orphans.
	DrainErrors []error
}

// Orphan is a buffered event for a job with no record.
type Orphan struct {
	Job  jobid.ID   `json:"job"`
	Seq  uint64     `json:"seq"`
	Type event.Type `json:"type"`
}

type shard struct {
	mu      sync.Mutex
	jobs    map[jobid.ID]*jobstate.JobRecord
	orphans map[jobid.ID][]*event.Record
	// removed holds the JOB_CLEAN position of jobs no longer live.
	removed map[jobid.ID]uint64
}

// Registry is safe for concurrent use.
type Registry struct {
	shards []*shard
	opts   Options
	log    *zap.Logger
}

func New(opts Options) *Registry {
	if opts.ShardCount <= 0 {
		opts.ShardCount = DefaultShardCount
	}
	if opts.OrphanWindow == 0 {
		opts.OrphanWindow = DefaultOrphanWindow
	}
	r := &Registry{
		shards: make([]*shard, opts.ShardCount),
		opts:   opts,
		log:    opts.Logger,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	for i := range r.shards {
		r.shards[i] = &shard{
			jobs:    make(map[jobid.ID]*jobstate.JobRecord),
			orphans: make(map[jobid.ID][]*event.Record),
			removed: make(map[jobid.ID]uint64),
		}
	}
	return r
}

func (r *Registry) shardFor(id jobid.ID) *shard {
	return r.shards[int(uint32(id.Base)%uint32(len(r.shards)))]
}

// Apply applies a sequenced job event. Stale events return an error matching
// ErrStaleEvent and change nothing; this includes events at or before the
// JOB_CLEAN of a removed job. Events for unknown jobs are buffered and
// return an error matching ErrOrphanEvent with Result.Buffered set.
func (r *Registry) Apply(ev *event.Record) (Result, error) {
	id, ok := ev.JobID()
	if !ok {
		return Result{}, ErrNotJobEvent
	}
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	res := Result{JobID: id}
	cur := sh.jobs[id]
	if cur != nil && ev.Seq <= cur.LastEventSeq {
		return res, &EventError{Kind: ErrStaleEvent, Job: id, Type: ev.Type, Seq: ev.Seq, Last: cur.LastEventSeq}
	}
	if cur == nil {
		if cleaned, ok := sh.removed[id]; ok {
			if ev.Seq <= cleaned {
				return res, &EventError{Kind: ErrStaleEvent, Job: id, Type: ev.Type, Seq: ev.Seq, Last: cleaned}
			}
			if ev.Type == event.JobNew {
				delete(sh.removed, id)
			}
		}
	}
	if cur == nil && ev.Type != event.JobNew {
		sh.buffer(id, ev)
		res.Buffered = true
		return res, &EventError{Kind: ErrOrphanEvent, Job: id, Type: ev.Type, Seq: ev.Seq}
	}

	next, effects, err := jobstate.Apply(cur, ev, r.opts.Policy)
	if err != nil {
		return res, err
	}
	res.Effects = effects
	r.store(sh, &res, next)

	if ev.Type == event.JobNew {
		r.drain(sh, &res)
	}
	return res, nil
}

func (r *Registry) store(sh *shard, res *Result, rec *jobstate.JobRecord) {
	for _, e := range res.Effects {
		if e.Kind == jobstate.EffectCleaned {
			delete(sh.jobs, rec.ID)
			sh.removed[rec.ID] = rec.LastEventSeq
			res.Removed = true
			res.Record = rec.Clone()
			return
		}
	}
	sh.jobs[rec.ID] = rec
	res.Record = rec.Clone()
}

func (sh *shard) buffer(id jobid.ID, ev *event.Record) {
	for _, o := range sh.orphans[id] {
		if o.Seq == ev.Seq {
			return
		}
	}
	sh.orphans[id] = append(sh.orphans[id], ev)
}

// drain applies orphans buffered for the job just created, in position
// order. Positions earlier than the JOB_NEW are accepted here because the
// orphans arrived out of order.
func (r *Registry) drain(sh *shard, res *Result) {
	pending := sh.orphans[res.JobID]
	if len(pending) == 0 {
		return
	}
	delete(sh.orphans, res.JobID)
	slices.SortFunc(pending, func(a, b *event.Record) int { return cmp.Compare(a.Seq, b.Seq) })

	for _, ev := range pending {
		cur := sh.jobs[res.JobID]
		if cur == nil {
			res.DrainErrors = append(res.DrainErrors, &EventError{Kind: ErrOrphanEvent, Job: res.JobID, Type: ev.Type, Seq: ev.Seq})
			continue
		}
		last := cur.LastEventSeq
		next, effects, err := jobstate.Apply(cur, ev, r.opts.Policy)
		if err != nil {
			r.log.Warn("buffered event rejected",
				zap.String("job", res.JobID.String()),
				zap.Uint64("seq", ev.Seq),
				zap.String("event_type", ev.Type.String()),
				zap.Error(err))
			res.DrainErrors = append(res.DrainErrors, err)
			continue
		}
		next.LastEventSeq = max(last, ev.Seq)
		res.Effects = append(res.Effects, effects...)
		r.store(sh, res, next)
		res.Drained++
	}
}

// ExpireOrphans drops buffered events more than OrphanWindow positions
// behind current and returns them.
func (r *Registry) ExpireOrphans(current uint64) []Orphan {
	var out []Orphan
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, evs := range sh.orphans {
			kept := evs[:0]
			for _, ev := range evs {
				if ev.Seq+r.opts.OrphanWindow < current {
					out = append(out, Orphan{Job: id, Seq: ev.Seq, Type: ev.Type})
					continue
				}
				kept = append(kept, ev)
			}
			if len(kept) == 0 {
				delete(sh.orphans, id)
			} else {
				sh.orphans[id] = kept
			}
		}
		sh.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Orphan) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// Orphans returns the number of buffered events.
func (r *Registry) Orphans() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, evs := range sh.orphans {
			n += len(evs)
		}
		sh.mu.Unlock()
	}
	return n
}

// Get returns a copy of the job's record.
func (r *Registry) Get(id jobid.ID) (*jobstate.JobRecord, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.jobs[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// HasBase reports whether any live record, including array elements, uses
// the base id.
func (r *Registry) HasBase(base int32) bool {
	sh := r.shardFor(jobid.New(base, 0))
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for id := range sh.jobs {
		if id.Base == base {
			return true
		}
	}
	return false
}

// Scan yields copies of the records matching pred, one shard at a time.
// A nil pred matches everything. Order is unspecified.
func (r *Registry) Scan(pred func(*jobstate.JobRecord) bool) iter.Seq[*jobstate.JobRecord] {
	return func(yield func(*jobstate.JobRecord) bool) {
		for _, sh := range r.shards {
			sh.mu.Lock()
			batch := make([]*jobstate.JobRecord, 0, len(sh.jobs))
			for _, rec := range sh.jobs {
				if pred == nil || pred(rec) {
					batch = append(batch, rec.Clone())
				}
			}
			sh.mu.Unlock()

			for _, rec := range batch {
				if !yield(rec) {
					return
				}
			}
		}
	}
}

// Snapshot returns copies of all records ordered by job id.
func (r *Registry) Snapshot() []*jobstate.JobRecord {
	out := slices.Collect(r.Scan(nil))
	slices.SortFunc(out, func(a, b *jobstate.JobRecord) int {
		if a.ID.Less(b.ID) {
			return -1
		}
		if b.ID.Less(a.ID) {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.jobs)
		sh.mu.Unlock()
	}
	return n
}

// CountByStatus returns the number of live records per status.
func (r *Registry) CountByStatus() map[event.Status]int {
	out := make(map[event.Status]int)
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, rec := range sh.jobs {
			out[rec.Status]++
		}
		sh.mu.Unlock()
	}
	return out
}
