// Package jobstate is the job lifecycle state machine.
//
// Apply is a pure function of a job record and an event. It returns the
// updated record and the side effects of the transition, or a
// *TransitionError when the event cannot apply to the job's current state.
// The input record is never modified.
package jobstate

import (
	"fmt"
	"slices"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/reason"
)

// Policy holds the configurable parts of the transition table.
type Policy struct {
	// RequeueDone allows JOB_REQUEUE of a DONE job.
	RequeueDone bool
	// RequeueExit allows JOB_REQUEUE of an EXIT job.
	RequeueExit bool
}

// DefaultPolicy allows requeue from both terminal states.
var DefaultPolicy = Policy{RequeueDone: true, RequeueExit: true}

var active = []event.Status{event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended}

var nonTerminal = []event.Status{
	event.StatusPending, event.StatusPendingSuspended,
	event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended,
	event.StatusUnknown,
}

var queued = []event.Status{
	event.StatusPending, event.StatusPendingSuspended,
	event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended,
}

var (
	pendingStates = []event.Status{event.StatusPending, event.StatusPendingSuspended}
	pendingOnly   = []event.Status{event.StatusPending}
)

// statusSources lists, per target status of a status update, the states the
// update may apply from.
var statusSources = map[event.Status][]event.Status{
	event.StatusPending:          {event.StatusPending, event.StatusPendingSuspended},
	event.StatusPendingSuspended: {event.StatusPending, event.StatusPendingSuspended},
	event.StatusRunning:          {event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended, event.StatusUnknown},
	event.StatusSystemSuspended:  {event.StatusRunning, event.StatusSystemSuspended, event.StatusUnknown},
	event.StatusUserSuspended:    {event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended, event.StatusUnknown},
	event.StatusDone:             {event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended, event.StatusUnknown, event.StatusDone},
	event.StatusExited: {
		event.StatusPending, event.StatusPendingSuspended,
		event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended,
		event.StatusUnknown, event.StatusExited,
	},
	event.StatusUnknown: {event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended, event.StatusUnknown},
}

// annotations apply to any non-terminal job without changing its state.
var annotations = map[event.Type]bool{
	event.JobSignal:    true,
	event.JobMsg:       true,
	event.JobMsgAck:    true,
	event.JobExtMsg:    true,
	event.JobAttaData:  true,
	event.JobAttrSet:   true,
	event.JobException: true,
	event.StatusAck:    true,
	event.JobForce:     true,
	event.JobForward:   true,
	event.JobAccept:    true,
	event.MbdUnfulfill: true,
	event.PreExecStart: true,
	event.TaskFinish:   true,
}

func isResize(t event.Type) bool {
	return t >= event.JobResizeNotifyStart && t <= event.JobResize
}

// Apply applies ev to rec. rec is nil when no record exists for the job; only
// JOB_NEW may apply then.
func Apply(rec *JobRecord, ev *event.Record, policy Policy) (*JobRecord, []Effect, error) {
	if ev == nil || ev.Payload == nil {
		return nil, nil, fmt.Errorf("event is nil")
	}
	scoped, ok := ev.Payload.(event.JobScoped)
	if !ok {
		return nil, nil, fmt.Errorf("%s is not a job event", ev.Type)
	}
	id := scoped.Job()

	if rec == nil {
		if ev.Type != event.JobNew {
			return nil, nil, &TransitionError{Job: id, From: event.StatusNone, Event: ev.Type}
		}
		return submit(id, ev)
	}
	if rec.ID != id {
		return nil, nil, fmt.Errorf("event for job %s applied to record of job %s", id, rec.ID)
	}

	t := &transition{
		from:   rec.Status,
		rec:    rec.Clone(),
		ev:     ev,
		policy: policy,
	}
	if err := t.apply(); err != nil {
		return nil, nil, err
	}
	t.rec.LastEventSeq = ev.Seq
	t.rec.clampTimes()
	return t.rec, t.effects, nil
}

func submit(id jobid.ID, ev *event.Record) (*JobRecord, []Effect, error) {
	p := ev.Payload.(*event.JobNewLog)
	rec := &JobRecord{
		ID:            id,
		Status:        event.StatusPending,
		Queue:         p.Queue,
		User:          p.UserName,
		JobName:       p.JobName,
		Command:       p.Command,
		Project:       p.ProjectName,
		FromHost:      p.FromHost,
		Cwd:           p.Cwd,
		ResReq:        p.ResReq,
		JobGroup:      p.JobGroup,
		NumProcessors: p.NumProcessors,
		LastEventSeq:  ev.Seq,
	}
	submitted := p.SubmitTime
	if submitted <= 0 {
		submitted = ev.Time
	}
	rec.SubmitTime = timeAt(submitted)
	eff := []Effect{{
		Kind: EffectSubmitted, Job: id, To: event.StatusPending,
		Seq: ev.Seq, Time: ev.Time, Event: ev.Type,
	}}
	return rec, eff, nil
}

type transition struct {
	from    event.Status
	rec     *JobRecord
	ev      *event.Record
	policy  Policy
	effects []Effect
}

func (t *transition) illegal(target event.Status) error {
	return &TransitionError{Job: t.rec.ID, From: t.from, Event: t.ev.Type, Target: target}
}

func (t *transition) require(states []event.Status) error {
	if slices.Contains(states, t.from) {
		return nil
	}
	return t.illegal(event.StatusNone)
}

func (t *transition) emit(kind EffectKind) {
	t.effects = append(t.effects, Effect{
		Kind:  kind,
		Job:   t.rec.ID,
		From:  t.from,
		To:    t.rec.Status,
		Seq:   t.ev.Seq,
		Time:  t.ev.Time,
		Event: t.ev.Type,
	})
}

func (t *transition) apply() error {
	switch p := t.ev.Payload.(type) {
	case *event.JobNewLog:
		return t.illegal(event.StatusPending)

	case *event.JobStartLog:
		if t.ev.Type == event.PreExecStart {
			return t.require(nonTerminal)
		}
		if err := t.require(pendingOnly); err != nil {
			return err
		}
		t.start(p.ExecHosts, p.JobPid)
		return nil

	case *event.JobStartAcceptLog:
		switch t.from {
		case event.StatusPending:
			t.start(nil, p.JobPid)
		case event.StatusRunning:
			t.rec.Pid = p.JobPid
		default:
			return t.illegal(event.StatusNone)
		}
		return nil

	case *event.JobStatusLog:
		if err := t.status(p.Status, p.StatusFlags, p.Reason, p.Subreasons); err != nil {
			return err
		}
		if p.Status.Terminal() {
			t.finishDetails(p.EndTime, p.ExitReason, p.ExitStatus, p.CPUTime)
			t.rec.TermInfo = p.TermInfo
		}
		return nil

	case *event.SbdJobStatusLog:
		if err := t.status(p.Status, p.StatusFlags, p.Reasons, p.Subreasons); err != nil {
			return err
		}
		if p.Status.Terminal() {
			t.finishDetails(0, p.ExitReason, 0, 0)
		}
		return nil

	case *event.JobFinishLog:
		return t.finish(p)

	case *event.JobRequeueLog:
		return t.requeue()

	case *event.SbdUnreportedStatusLog:
		if err := t.require(active); err != nil {
			return err
		}
		t.rec.PriorStatus = t.from
		t.rec.Status = event.StatusUnknown
		t.rec.PendReason, t.rec.SuspReason = nil, nil
		t.emit(EffectUnreachable)
		return nil

	case *event.JobSwitchLog:
		if err := t.require(queued); err != nil {
			return err
		}
		t.rec.Queue = p.Queue
		return nil

	case *event.JobModLog:
		if err := t.require(queued); err != nil {
			return err
		}
		t.modify(p)
		return nil

	case *event.JobMoveLog:
		return t.require(pendingStates)

	case *event.MigLog:
		if err := t.require(active); err != nil {
			return err
		}
		t.rec.Status = event.StatusPending
		t.rec.StartTime = nil
		t.rec.ExecHosts = nil
		t.rec.Pid = 0
		t.rec.PendReason, t.rec.SuspReason = nil, nil
		t.emit(EffectMigrated)
		return nil

	case *event.JobExecuteLog:
		if err := t.require(active); err != nil {
			return err
		}
		t.rec.Pid = p.JobPid
		return nil

	case *event.JobRunRusageLog:
		if err := t.require(active); err != nil {
			return err
		}
		t.rec.CPUTime = p.UTime + p.STime
		if p.Mem > t.rec.MaxMem {
			t.rec.MaxMem = p.Mem
		}
		return nil

	case *event.ChkpntLog, *event.SigactLog:
		return t.require(active)

	case *event.JobResizeLog:
		if err := t.require(active); err != nil {
			return err
		}
		t.rec.ExecHosts = append([]string(nil), p.ExecHosts...)
		if len(t.rec.ExecHosts) == 0 {
			t.rec.ExecHosts = nil
		}
		t.emit(EffectResized)
		return nil

	case *event.JobCleanLog:
		if !t.from.Terminal() {
			return t.illegal(event.StatusNone)
		}
		t.emit(EffectCleaned)
		return nil
	}

	if isResize(t.ev.Type) {
		return t.require(active)
	}
	if annotations[t.ev.Type] {
		return t.require(nonTerminal)
	}
	return t.illegal(event.StatusNone)
}

func (t *transition) start(hosts []string, pid int32) {
	t.rec.Status = event.StatusRunning
	t.rec.StartTime = timeAt(t.ev.Time)
	if len(hosts) > 0 {
		t.rec.ExecHosts = append([]string(nil), hosts...)
	}
	t.rec.Pid = pid
	t.rec.PendReason, t.rec.SuspReason = nil, nil
	t.emit(EffectStarted)
}

// status applies a status update carrying a target state and reason.
func (t *transition) status(target event.Status, flags event.StatusFlags, code, subreasons int32) error {
	sources, ok := statusSources[target]
	if !ok || !slices.Contains(sources, t.from) {
		return t.illegal(target)
	}

	t.rec.Status = target
	t.rec.Flags = flags

	var r *Reason
	if code != 0 || subreasons != 0 {
		r = &Reason{Code: code, Subreasons: subreasons}
	}
	switch target {
	case event.StatusPending:
		t.rec.PendReason, t.rec.SuspReason = r, nil
	case event.StatusPendingSuspended:
		t.rec.PendReason, t.rec.SuspReason = r, r
	case event.StatusSystemSuspended, event.StatusUserSuspended:
		t.rec.PendReason, t.rec.SuspReason = nil, r
	default:
		t.rec.PendReason, t.rec.SuspReason = nil, nil
	}

	switch {
	case target == event.StatusUnknown:
		if t.from != event.StatusUnknown {
			t.rec.PriorStatus = t.from
			t.emit(EffectUnreachable)
		}
		return nil
	case t.from == event.StatusUnknown:
		t.rec.PriorStatus = event.StatusNone
		t.emit(EffectRecovered)
	}

	switch {
	case target.Terminal() && !t.from.Terminal():
		t.emit(EffectTerminal)
	case target.Suspended() && !t.from.Suspended():
		t.emit(EffectSuspended)
	case t.from.Suspended() && !target.Suspended():
		t.emit(EffectResumed)
	}
	return nil
}

func (t *transition) finishDetails(end int64, exit reason.ExitReason, exitStatus int32, cpu float64) {
	if end <= 0 {
		end = t.ev.Time
	}
	// A post-execution refresh of a finished job keeps its end time.
	if t.from != t.rec.Status || t.rec.EndTime == nil {
		t.rec.EndTime = timeAt(end)
	}
	x := exit
	t.rec.ExitInfo = &x
	if exitStatus != 0 {
		t.rec.ExitStatus = exitStatus
	}
	if cpu > 0 {
		t.rec.CPUTime = cpu
	}
}

func (t *transition) finish(p *event.JobFinishLog) error {
	if !p.Status.Terminal() {
		return t.illegal(p.Status)
	}
	merge := t.from == p.Status
	if !merge {
		if err := t.require([]event.Status{
			event.StatusRunning, event.StatusSystemSuspended, event.StatusUserSuspended, event.StatusUnknown,
		}); err != nil {
			return err
		}
	}

	t.rec.Status = p.Status
	t.rec.Flags = p.StatusFlags
	t.rec.PendReason, t.rec.SuspReason = nil, nil
	t.rec.PriorStatus = event.StatusNone

	if p.StartTime > 0 && t.rec.StartTime == nil {
		t.rec.StartTime = timeAt(p.StartTime)
	}
	end := p.EndTime
	if end <= 0 {
		end = t.ev.Time
	}
	t.rec.EndTime = timeAt(end)
	if len(t.rec.ExecHosts) == 0 && len(p.ExecHosts) > 0 {
		t.rec.ExecHosts = append([]string(nil), p.ExecHosts...)
	}
	x := p.ExitReason
	t.rec.ExitInfo = &x
	t.rec.ExitStatus = p.ExitStatus
	t.rec.TermInfo = p.TermInfo
	t.rec.CPUTime = p.CPUTime
	if p.MaxRMem > t.rec.MaxMem {
		t.rec.MaxMem = p.MaxRMem
	}

	if t.from == event.StatusUnknown {
		t.emit(EffectRecovered)
	}
	if !merge {
		t.emit(EffectTerminal)
	}
	return nil
}

func (t *transition) requeue() error {
	allowed := (t.from == event.StatusDone && t.policy.RequeueDone) ||
		(t.from == event.StatusExited && t.policy.RequeueExit)
	if !allowed {
		return t.illegal(event.StatusPending)
	}
	r := t.rec
	r.Status = event.StatusPending
	r.Flags = event.StatusFlags{}
	r.StartTime, r.EndTime = nil, nil
	r.ExecHosts = nil
	r.ExitInfo = nil
	r.ExitStatus, r.TermInfo = 0, 0
	r.CPUTime, r.MaxMem, r.Pid = 0, 0, 0
	r.PendReason, r.SuspReason = nil, nil
	r.SubmitTime = timeAt(t.ev.Time)
	r.Lineage++
	t.emit(EffectRequeued)
	return nil
}

// modify applies the non-empty fields of a modification.
func (t *transition) modify(p *event.JobModLog) {
	r := t.rec
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&r.Queue, p.Queue)
	set(&r.JobName, p.JobName)
	set(&r.Command, p.Command)
	set(&r.Project, p.ProjectName)
	set(&r.ResReq, p.ResReq)
	set(&r.JobGroup, p.JobGroup)
	if p.NumProcessors > 0 {
		r.NumProcessors = p.NumProcessors
	}
}
