// Package output provides JSONL output for event log tooling.
//
// Output is structured as typed record envelopes containing events, job
// records, errors, progress updates and replay summaries. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: batchlog.<type>.v<version>
const (
	// TypeEvent identifies decoded event log records.
	TypeEvent = "batchlog.event.v1"

	// TypeJob identifies job record snapshots.
	TypeJob = "batchlog.job.v1"

	// TypeError identifies error records.
	TypeError = "batchlog.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "batchlog.progress.v1"

	// TypeSummary identifies final replay summary records.
	TypeSummary = "batchlog.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "batchlog.event.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// SessionID correlates all records of one command run.
	SessionID string `json:"session_id"`

	// Source is the event log directory or file being read.
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ErrorRecord is the data payload for errors.
//
// Bad lines and rejected events are emitted as records rather than
// failing the whole run.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Seq is the log position of the offending record, if known.
	Seq uint64 `json:"seq,omitempty"`

	// Line is the 1-based line number within a decoded file.
	Line int `json:"line,omitempty"`

	// Job is the job the record referenced, if any.
	Job string `json:"job,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeMalformed = "MALFORMED"
	ErrCodeStale     = "STALE"
	ErrCodeOrphan    = "ORPHAN"
	ErrCodeRejected  = "REJECTED"
	ErrCodeInternal  = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates during long
// replays.
type ProgressRecord struct {
	Phase    string `json:"phase"`
	Position uint64 `json:"position"`
	Records  int    `json:"records"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
	Segment  string `json:"segment,omitempty"`
}

// Progress phase constants.
const (
	PhaseStarting  = "starting"
	PhaseReplaying = "replaying"
	PhaseFollowing = "following"
	PhaseComplete  = "complete"
)

// SummaryRecord is the data payload for final summaries.
//
// A summary record is emitted at the end of a replay with the counters of
// the pass.
type SummaryRecord struct {
	From      uint64 `json:"from"`
	To        uint64 `json:"to"`
	Records   int    `json:"records"`
	Applied   int    `json:"applied"`
	Stale     int    `json:"stale"`
	Orphaned  int    `json:"orphaned"`
	Drained   int    `json:"drained"`
	Expired   int    `json:"expired"`
	Rejected  int    `json:"rejected"`
	Ignored   int    `json:"ignored"`
	Malformed int    `json:"malformed"`

	// Jobs is the number of live jobs after the replay.
	Jobs int `json:"jobs"`

	// Duration is the total replay duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Error is set when the replay stopped early.
	Error string `json:"error,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
