package registry

import (
	"errors"
	"fmt"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/lsberr"
)

var (
	// ErrStaleEvent means the event is at or before the job's last applied
	// position. It is expected during replay and is not a failure.
	ErrStaleEvent = errors.New("stale event")

	// ErrOrphanEvent means the job has no record yet. The event was buffered
	// and is applied when the job's JOB_NEW arrives.
	ErrOrphanEvent = errors.New("orphan event")

	// ErrNotJobEvent means the record does not reference a job.
	ErrNotJobEvent = errors.New("not a job event")
)

// EventError carries the job and positions behind a stale or orphan event.
type EventError struct {
	Kind error
	Job  jobid.ID
	Type event.Type
	Seq  uint64
	Last uint64
}

func (e *EventError) Error() string {
	if errors.Is(e.Kind, ErrStaleEvent) {
		return fmt.Sprintf("job %s: %s at %d: %v (last applied %d)", e.Job, e.Type, e.Seq, e.Kind, e.Last)
	}
	return fmt.Sprintf("job %s: %s at %d: %v", e.Job, e.Type, e.Seq, e.Kind)
}

func (e *EventError) Unwrap() error { return e.Kind }

func (e *EventError) LSBCode() lsberr.Code {
	switch e.Kind {
	case ErrStaleEvent:
		return lsberr.BadEventSeq
	case ErrOrphanEvent:
		return lsberr.NoJob
	}
	return lsberr.BadJob
}
