// Package eventlog is the append-only, segmented event log.
//
// Records are written one per line to numbered segment files
// (lsb.events.1, lsb.events.2, ...). Every record that is not a segment
// marker is assigned the next position, starting at 1; positions are
// contiguous across segments. When the active segment grows past the
// configured size, an END_OF_STREAM marker is appended as its last line and
// writing continues in the next segment. A JSON index (lsb.events.index)
// records the first and last position of every segment and is rewritten
// atomically at each switch.
//
// A Store has one writer. Readers are independent and may run in other
// processes.
package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
)

// Position is the log position of a record. Zero means "before the first
// record".
type Position uint64

// DefaultMaxSegmentBytes is the rotation threshold used when none is set.
const DefaultMaxSegmentBytes int64 = 64 << 20

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("event log closed")

// Options configure a Store.
type Options struct {
	// MaxSegmentBytes is the size past which the active segment is switched.
	MaxSegmentBytes int64

	// Sync forces an fsync after every append.
	Sync bool

	// SwitchRecord, when set, builds the record written first to every new
	// segment (typically LOG_SWITCH carrying the last job id).
	SwitchRecord func() *event.Record

	// OnRotate is called with the path of each segment after it is closed.
	OnRotate func(path string)

	Logger *zap.Logger
	Now    func() time.Time
}

// Store is the single writer of an event log directory.
type Store struct {
	mu     sync.Mutex
	dir    string
	opts   Options
	log    *zap.Logger
	idx    *index
	active *os.File
	size   int64
	last   Position
	closed bool
}

// Open opens or creates the event log in dir. A partial trailing line left
// by a crash is truncated. An interrupted segment switch is completed.
func Open(dir string, opts Options) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("event log dir is empty")
	}
	if opts.MaxSegmentBytes <= 0 {
		opts.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{dir: dir, opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}

	idx, err := readIndex(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		idx, err = s.initIndex()
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	s.idx = idx

	if err := s.checkClosedSegments(); err != nil {
		return nil, err
	}
	if err := s.openActive(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initIndex() (*index, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, segmentPrefix+"[0-9]*"))
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return nil, corrupt("%s missing but %d segment files exist", indexName, len(matches))
	}
	idx := &index{Format: indexFormat, Segments: []Segment{{Number: 1, FirstSeq: 1}}}
	if err := writeIndex(s.dir, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Store) checkClosedSegments() error {
	for _, seg := range s.idx.Segments {
		if !seg.Closed {
			continue
		}
		fi, err := os.Stat(filepath.Join(s.dir, seg.Name()))
		if err != nil {
			return corrupt("closed segment %s: %v", seg.Name(), err)
		}
		if fi.Size() != seg.Bytes {
			return corrupt("closed segment %s is %d bytes, index records %d", seg.Name(), fi.Size(), seg.Bytes)
		}
	}
	return nil
}

// openActive scans the active segment to recover its size and last position.
func (s *Store) openActive() error {
	seg := s.idx.active()
	path := filepath.Join(s.dir, seg.Name())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open active segment: %w", err)
	}

	scan, err := scanSegment(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("scan %s: %w", seg.Name(), err)
	}
	if scan.complete < seg.Bytes {
		_ = f.Close()
		return corrupt("active segment %s is %d bytes, index records at least %d", seg.Name(), scan.complete, seg.Bytes)
	}
	if scan.complete < scan.total {
		s.log.Warn("truncating partial record at end of segment",
			zap.String("segment", seg.Name()),
			zap.Int64("offset", scan.complete),
			zap.Int64("dropped_bytes", scan.total-scan.complete))
		if err := f.Truncate(scan.complete); err != nil {
			_ = f.Close()
			return fmt.Errorf("truncate partial record: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return err
	}

	s.active = f
	s.size = scan.complete
	s.last = Position(seg.FirstSeq + scan.records - 1)

	if scan.marker {
		// The previous writer stopped between the marker and the index update.
		s.log.Info("completing interrupted segment switch", zap.String("segment", seg.Name()))
		return s.openNext()
	}

	seg.LastSeq = uint64(s.last)
	seg.Bytes = s.size
	return writeIndex(s.dir, s.idx)
}

type segmentScan struct {
	records  uint64
	complete int64
	total    int64
	marker   bool
}

func scanSegment(f *os.File) (segmentScan, error) {
	var out segmentScan
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return out, err
	}
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		out.total += int64(len(line))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		if out.marker {
			return out, corrupt("record after end-of-stream marker at offset %d", out.complete)
		}
		out.complete = out.total
		switch classify(line) {
		case lineRecord:
			out.records++
		case lineMarker:
			out.marker = true
		}
	}
}

type lineKind int

var markerType = strconv.Itoa(int(event.EndOfStream))

const (
	lineBlank lineKind = iota
	lineRecord
	lineMarker
)

// classify decides whether a complete line consumes a position. Only the
// type field is inspected, so undecodable lines still count as records.
func classify(line []byte) lineKind {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return lineBlank
	}
	if len(fields) >= 2 && string(fields[1]) == markerType {
		return lineMarker
	}
	return lineRecord
}

// Dir returns the log directory.
func (s *Store) Dir() string {
	return s.dir
}

// Last returns the position of the most recent record, or 0.
func (s *Store) Last() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Segments returns a copy of the index with the active segment refreshed.
func (s *Store) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Segment(nil), s.idx.Segments...)
	if len(out) > 0 {
		act := &out[len(out)-1]
		act.LastSeq = uint64(s.last)
		act.Bytes = s.size
	}
	return out
}

// Append writes rec, assigns its position to rec.Seq, and returns it. The
// record is durable (subject to Options.Sync) when Append returns.
func (s *Store) Append(rec *event.Record) (Position, error) {
	if rec != nil && rec.Marker() {
		return 0, fmt.Errorf("end-of-stream markers are written only by segment switches")
	}
	line, err := event.Encode(rec)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	if err := s.write(line); err != nil {
		return 0, err
	}
	s.last++
	rec.Seq = uint64(s.last)
	pos := s.last

	if s.size >= s.opts.MaxSegmentBytes {
		if err := s.rotate(); err != nil {
			return pos, fmt.Errorf("switch segment: %w", err)
		}
	}
	return pos, nil
}

func (s *Store) write(line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if err := writeAll(s.active, buf); err != nil {
		// Drop whatever part of the line made it to disk.
		_ = s.active.Truncate(s.size)
		_, _ = s.active.Seek(s.size, io.SeekStart)
		return fmt.Errorf("append to %s: %w", s.idx.active().Name(), err)
	}
	if s.opts.Sync {
		if err := s.active.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", s.idx.active().Name(), err)
		}
	}
	s.size += int64(len(buf))
	return nil
}

// Rotate closes the active segment with an END_OF_STREAM marker and opens
// the next one.
func (s *Store) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.rotate()
}

func (s *Store) rotate() error {
	marker := event.WithPayload(event.EndOfStream, s.opts.Now(), &event.EOSLog{})
	line, err := event.Encode(marker)
	if err != nil {
		return err
	}
	if err := s.write(line); err != nil {
		return err
	}
	if err := s.active.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.idx.active().Name(), err)
	}
	return s.openNext()
}

// openNext closes the active segment, which must already end with a marker,
// and starts the next one.
func (s *Store) openNext() error {
	old := s.idx.active()
	closedAt := s.opts.Now().UTC()
	old.Closed = true
	old.ClosedAt = &closedAt
	old.LastSeq = uint64(s.last)
	old.Bytes = s.size
	oldPath := filepath.Join(s.dir, old.Name())

	if err := s.active.Close(); err != nil {
		return fmt.Errorf("close %s: %w", old.Name(), err)
	}
	s.active = nil

	next := Segment{Number: old.Number + 1, FirstSeq: uint64(s.last) + 1, LastSeq: uint64(s.last)}
	f, err := os.OpenFile(filepath.Join(s.dir, next.Name()), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", next.Name(), err)
	}
	s.idx.Segments = append(s.idx.Segments, next)
	if err := writeIndex(s.dir, s.idx); err != nil {
		_ = f.Close()
		return err
	}
	s.active = f
	s.size = 0

	s.log.Info("switched event log segment",
		zap.String("closed", old.Name()),
		zap.String("active", next.Name()),
		zap.Uint64("last_seq", uint64(s.last)))

	if s.opts.SwitchRecord != nil {
		if rec := s.opts.SwitchRecord(); rec != nil {
			line, err := event.Encode(rec)
			if err != nil {
				return fmt.Errorf("encode switch record: %w", err)
			}
			if err := s.write(line); err != nil {
				return err
			}
			s.last++
			rec.Seq = uint64(s.last)
		}
	}

	if s.opts.OnRotate != nil {
		s.opts.OnRotate(oldPath)
	}
	return nil
}

// Sync flushes the active segment and checkpoints the index.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.checkpoint()
}

func (s *Store) checkpoint() error {
	if err := s.active.Sync(); err != nil {
		return err
	}
	act := s.idx.active()
	act.LastSeq = uint64(s.last)
	act.Bytes = s.size
	return writeIndex(s.dir, s.idx)
}

// Close checkpoints the index and closes the active segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.checkpoint()
	if cerr := s.active.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewReader returns a reader positioned after from.
func (s *Store) NewReader(from Position) (*Reader, error) {
	return OpenReader(s.dir, from)
}

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
