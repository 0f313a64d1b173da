// Package notify publishes job state-machine effects to NATS.
//
// Each effect is published to three subjects under a configurable prefix:
//
//	<prefix>.<kind>          e.g. batchlog.events.terminal
//	<prefix>.queue.<queue>   every effect for jobs in the queue
//	<prefix>.all             every effect
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

const DefaultSubjectPrefix = "batchlog.events"

// DefaultKinds are the effects published when Options.Kinds is empty.
var DefaultKinds = []jobstate.EffectKind{
	jobstate.EffectStarted,
	jobstate.EffectTerminal,
	jobstate.EffectRequeued,
	jobstate.EffectUnreachable,
	jobstate.EffectRecovered,
	jobstate.EffectCleaned,
}

var allKinds = []jobstate.EffectKind{
	jobstate.EffectSubmitted,
	jobstate.EffectStarted,
	jobstate.EffectSuspended,
	jobstate.EffectResumed,
	jobstate.EffectTerminal,
	jobstate.EffectRequeued,
	jobstate.EffectMigrated,
	jobstate.EffectUnreachable,
	jobstate.EffectRecovered,
	jobstate.EffectResized,
	jobstate.EffectCleaned,
}

// ParseKinds converts configured effect names. "all" selects every kind;
// an empty list returns nil so New falls back to DefaultKinds.
func ParseKinds(names []string) ([]jobstate.EffectKind, error) {
	var out []jobstate.EffectKind
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name == "all" {
			return append([]jobstate.EffectKind(nil), allKinds...), nil
		}
		found := false
		for _, k := range allKinds {
			if string(k) == name {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown effect kind %q", name)
		}
	}
	return out, nil
}

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON body of a published effect.
type Message struct {
	ID         string              `json:"id"`
	Kind       jobstate.EffectKind `json:"kind"`
	Job        string              `json:"job"`
	Queue      string              `json:"queue,omitempty"`
	User       string              `json:"user,omitempty"`
	From       event.Status        `json:"from"`
	To         event.Status        `json:"to"`
	Event      string              `json:"event"`
	Seq        uint64              `json:"seq"`
	Time       time.Time           `json:"time"`
	ExitStatus int32               `json:"exit_status,omitempty"`
	ExitReason string              `json:"exit_reason,omitempty"`
	Lineage    int                 `json:"lineage,omitempty"`
}

// Options configure a Notifier.
type Options struct {
	SubjectPrefix string
	Kinds         []jobstate.EffectKind
	Logger        *zap.Logger
}

// Notifier publishes effects. It is safe for concurrent use when the
// Publisher is.
type Notifier struct {
	pub    Publisher
	prefix string
	kinds  map[jobstate.EffectKind]bool
	log    *zap.Logger
}

func New(pub Publisher, opts Options) *Notifier {
	n := &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(opts.SubjectPrefix, "."),
		kinds:  make(map[jobstate.EffectKind]bool),
		log:    opts.Logger,
	}
	if n.prefix == "" {
		n.prefix = DefaultSubjectPrefix
	}
	if n.log == nil {
		n.log = zap.NewNop()
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	for _, k := range kinds {
		n.kinds[k] = true
	}
	return n
}

// Connect dials NATS and returns the connection for use as a Publisher.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

// Notify publishes eff for rec. Effects of unselected kinds are ignored.
// Only the kind subject failing is an error; the fan-out subjects are
// best effort.
func (n *Notifier) Notify(ctx context.Context, eff jobstate.Effect, rec *jobstate.JobRecord) error {
	if !n.kinds[eff.Kind] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := n.message(eff, rec)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal effect: %w", err)
	}

	subject := n.prefix + "." + string(eff.Kind)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if msg.Queue != "" {
		qs := n.prefix + ".queue." + subjectToken(msg.Queue)
		if err := n.pub.Publish(qs, data); err != nil {
			n.log.Warn("queue publish failed", zap.String("subject", qs), zap.Error(err))
		}
	}
	if err := n.pub.Publish(n.prefix+".all", data); err != nil {
		n.log.Warn("publish failed", zap.String("subject", n.prefix+".all"), zap.Error(err))
	}
	return nil
}

func (n *Notifier) message(eff jobstate.Effect, rec *jobstate.JobRecord) Message {
	msg := Message{
		ID:    uuid.NewString(),
		Kind:  eff.Kind,
		Job:   eff.Job.String(),
		From:  eff.From,
		To:    eff.To,
		Event: eff.Event.String(),
		Seq:   eff.Seq,
		Time:  time.Unix(eff.Time, 0).UTC(),
	}
	if rec == nil {
		return msg
	}
	msg.Queue = rec.Queue
	msg.User = rec.User
	msg.Lineage = rec.Lineage
	if rec.Status.Terminal() {
		msg.ExitStatus = rec.ExitStatus
		if rec.ExitInfo != nil {
			msg.ExitReason = rec.ExitInfo.String()
		}
	}
	return msg
}

// subjectToken makes a queue name safe as a single subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
