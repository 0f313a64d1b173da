package jobstate

import (
	"time"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/reason"
)

// Reason is a pending or suspending reason code with its subreason mask.
type Reason struct {
	Code       int32 `json:"code"`
	Subreasons int32 `json:"subreasons,omitempty"`
}

// Describe resolves the reason against the catalog. Suspending codes are bit
// masks; the first registered flag is returned as the primary descriptor.
func (r Reason) Describe(kind reason.Kind) (reason.Descriptor, []reason.Subreason, error) {
	if kind == reason.Suspending {
		flags, unknown := reason.SuspendFlags(int(r.Code))
		if len(flags) == 0 {
			d, err := reason.Lookup(kind, unknown)
			return d, nil, err
		}
		for _, d := range flags {
			if d.LoadSubreasons || d.LimitSubreasons {
				subs, _ := reason.ResolveSubreasons(d, uint32(r.Subreasons))
				return d, subs, nil
			}
		}
		return flags[0], nil, nil
	}

	d, err := reason.Lookup(kind, int(r.Code))
	if err != nil {
		return reason.Descriptor{}, nil, err
	}
	subs, _ := reason.ResolveSubreasons(d, uint32(r.Subreasons))
	return d, subs, nil
}

// JobRecord is the derived state of one job.
type JobRecord struct {
	ID     jobid.ID          `json:"id"`
	Status event.Status      `json:"status"`
	Flags  event.StatusFlags `json:"flags"`

	PendReason *Reason `json:"pend_reason,omitempty"`
	SuspReason *Reason `json:"susp_reason,omitempty"`

	SubmitTime *time.Time `json:"submit_time,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`

	ExecHosts  []string           `json:"exec_hosts,omitempty"`
	ExitInfo   *reason.ExitReason `json:"exit_info,omitempty"`
	ExitStatus int32              `json:"exit_status"`
	TermInfo   int32              `json:"term_info,omitempty"`

	Queue         string  `json:"queue"`
	User          string  `json:"user"`
	JobName       string  `json:"job_name,omitempty"`
	Command       string  `json:"command,omitempty"`
	Project       string  `json:"project,omitempty"`
	FromHost      string  `json:"from_host,omitempty"`
	Cwd           string  `json:"cwd,omitempty"`
	ResReq        string  `json:"res_req,omitempty"`
	JobGroup      string  `json:"job_group,omitempty"`
	NumProcessors int32   `json:"num_processors"`
	Pid           int32   `json:"pid,omitempty"`
	CPUTime       float64 `json:"cpu_time"`
	MaxMem        int32   `json:"max_mem,omitempty"`

	// PriorStatus is the state held before the job became UNKWN.
	PriorStatus event.Status `json:"prior_status,omitempty"`
	// Lineage counts requeues of a finished job under the same id.
	Lineage int `json:"lineage"`

	LastEventSeq uint64 `json:"last_event_seq"`
}

// Clone returns a deep copy.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ExecHosts = append([]string(nil), r.ExecHosts...)
	if len(out.ExecHosts) == 0 {
		out.ExecHosts = nil
	}
	if r.PendReason != nil {
		v := *r.PendReason
		out.PendReason = &v
	}
	if r.SuspReason != nil {
		v := *r.SuspReason
		out.SuspReason = &v
	}
	return &out
}

// Terminal reports whether the job is DONE or EXIT.
func (r *JobRecord) Terminal() bool {
	return r.Status.Terminal()
}

func timeAt(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

// clampTimes keeps submit <= start <= end.
func (r *JobRecord) clampTimes() {
	if r.SubmitTime != nil && r.StartTime != nil && r.StartTime.Before(*r.SubmitTime) {
		t := *r.SubmitTime
		r.StartTime = &t
	}
	lower := r.StartTime
	if lower == nil {
		lower = r.SubmitTime
	}
	if lower != nil && r.EndTime != nil && r.EndTime.Before(*lower) {
		t := *lower
		r.EndTime = &t
	}
}
