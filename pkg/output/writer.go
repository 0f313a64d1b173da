package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a
// single line of JSON followed by a newline.
type Writer interface {
	// WriteEvent emits a decoded event log record.
	WriteEvent(ctx context.Context, rec *event.Record) error

	// WriteJob emits a job record snapshot.
	WriteJob(ctx context.Context, job *jobstate.JobRecord) error

	// WriteError emits an error record.
	WriteError(ctx context.Context, err *ErrorRecord) error

	// WriteProgress emits a progress record.
	WriteProgress(ctx context.Context, prog *ProgressRecord) error

	// WriteSummary emits a summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w         io.Writer
	sessionID string
	source    string
	now       func() time.Time
	mu        sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - sessionID: Correlation ID for this run
//   - source: Event log directory or file being read
func NewJSONLWriter(w io.Writer, sessionID, source string) *JSONLWriter {
	return &JSONLWriter{
		w:         w,
		sessionID: sessionID,
		source:    source,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WriteEvent emits an event record.
func (jw *JSONLWriter) WriteEvent(ctx context.Context, rec *event.Record) error {
	return jw.writeRecord(ctx, TypeEvent, rec)
}

// WriteJob emits a job record.
func (jw *JSONLWriter) WriteJob(ctx context.Context, job *jobstate.JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteProgress emits a progress record.
func (jw *JSONLWriter) WriteProgress(ctx context.Context, prog *ProgressRecord) error {
	return jw.writeRecord(ctx, TypeProgress, prog)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while
// holding the mutex, so lines never interleave.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:      recordType,
		TS:        jw.now(),
		SessionID: jw.sessionID,
		Source:    jw.source,
		Data:      dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error; a truncated line
	// would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
