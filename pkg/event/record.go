// Package event models batch scheduler event records and their versioned,
// line-oriented log encoding.
//
// A record is one line:
//
//	"<version>" <event_type> <timestamp> <fields...>
//
// Strings are double-quoted with embedded quotes doubled, lists are a count
// followed by the elements, and job status fields use the historical bit
// mask. Field layouts grow by version; fields introduced after a record's
// version take their zero value.
package event

import (
	"encoding/json"
	"time"

	"github.com/3leaps/batchlog/pkg/jobid"
)

// Payload is the type-specific body of a record.
type Payload interface {
	walk(w walker)
}

// JobScoped is implemented by payloads that reference exactly one job.
type JobScoped interface {
	Payload
	Job() jobid.ID
}

// Record is one event. Seq is the log position assigned by the event log and
// is not part of the encoded line.
type Record struct {
	Version string
	Type    Type
	Time    int64
	Payload Payload
	Seq     uint64
}

// New returns a record at CurrentVersion with the empty payload for t.
func New(t Type, at time.Time) *Record {
	return &Record{
		Version: CurrentVersion,
		Type:    t,
		Time:    at.Unix(),
		Payload: NewPayload(t),
	}
}

// WithPayload returns a record at CurrentVersion carrying p.
func WithPayload(t Type, at time.Time, p Payload) *Record {
	return &Record{Version: CurrentVersion, Type: t, Time: at.Unix(), Payload: p}
}

// JobID returns the job the record references, if any.
func (r *Record) JobID() (jobid.ID, bool) {
	if r == nil || r.Payload == nil {
		return jobid.ID{}, false
	}
	js, ok := r.Payload.(JobScoped)
	if !ok {
		return jobid.ID{}, false
	}
	id := js.Job()
	if id.Base <= 0 {
		return jobid.ID{}, false
	}
	return id, true
}

// Timestamp returns Time as a UTC time.Time.
func (r *Record) Timestamp() time.Time {
	return time.Unix(r.Time, 0).UTC()
}

// Marker reports whether the record is a segment boundary marker.
func (r *Record) Marker() bool {
	return r != nil && r.Type == EndOfStream
}

type recordJSON struct {
	Seq     uint64          `json:"seq,omitempty"`
	Version string          `json:"version"`
	Type    string          `json:"type"`
	TypeID  int32           `json:"type_id"`
	Time    time.Time       `json:"time"`
	Job     string          `json:"job,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON renders the record for tooling output.
func (r *Record) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	out := recordJSON{
		Seq:     r.Seq,
		Version: r.Version,
		Type:    r.Type.String(),
		TypeID:  int32(r.Type),
		Time:    r.Timestamp(),
		Payload: payload,
	}
	if id, ok := r.JobID(); ok {
		out.Job = id.String()
	}
	return json.Marshal(out)
}
