package jobstate

import (
	"errors"
	"fmt"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/lsberr"
)

// ErrIllegalTransition is matched by every *TransitionError.
var ErrIllegalTransition = errors.New("illegal transition")

// TransitionError reports an event that cannot apply to the job's current
// state. From is StatusNone when no record exists.
type TransitionError struct {
	Job    jobid.ID
	From   event.Status
	Event  event.Type
	Target event.Status
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("job %s: %s cannot apply in state %s", e.Job, e.Event, e.From)
	if e.Target != event.StatusNone {
		msg += fmt.Sprintf(" (target %s)", e.Target)
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// LSBCode maps the failure to the closest historical error.
func (e *TransitionError) LSBCode() lsberr.Code {
	switch {
	case e.From == event.StatusNone:
		return lsberr.NoJob
	case e.From.Terminal():
		return lsberr.JobFinish
	case requiresActive(e.Event) && (e.From == event.StatusPending || e.From == event.StatusPendingSuspended):
		return lsberr.NotStarted
	case requiresPending(e.Event) && e.From.Active():
		return lsberr.JobStarted
	}
	return lsberr.IllegalTransit
}

func requiresActive(t event.Type) bool {
	switch t {
	case event.JobExecute, event.JobRunRusage, event.Chkpnt, event.JobSigAct, event.Mig,
		event.SbdUnreportedStatus, event.JobFinish:
		return true
	}
	return isResize(t)
}

func requiresPending(t event.Type) bool {
	return t == event.JobStart || t == event.JobMove
}
