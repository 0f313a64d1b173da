package jobstate

import (
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
)

// EffectKind names a side effect of applying an event. Effects are returned
// to the caller; the state machine performs no I/O.
type EffectKind string

const (
	EffectSubmitted   EffectKind = "submitted"
	EffectStarted     EffectKind = "started"
	EffectSuspended   EffectKind = "suspended"
	EffectResumed     EffectKind = "resumed"
	EffectTerminal    EffectKind = "terminal"
	EffectRequeued    EffectKind = "requeued"
	EffectMigrated    EffectKind = "migrated"
	EffectUnreachable EffectKind = "unreachable"
	EffectRecovered   EffectKind = "recovered"
	EffectResized     EffectKind = "resized"
	EffectCleaned     EffectKind = "cleaned"
)

// Effect describes one observable consequence of a transition.
type Effect struct {
	Kind  EffectKind   `json:"kind"`
	Job   jobid.ID     `json:"job"`
	From  event.Status `json:"from"`
	To    event.Status `json:"to"`
	Seq   uint64       `json:"seq"`
	Time  int64        `json:"time"`
	Event event.Type   `json:"event"`
}
