package eventlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/3leaps/batchlog/pkg/event"
)

// RecordError reports a line that could not be decoded. The reader has
// already advanced past it, so calling Next again continues with the
// following record.
type RecordError struct {
	Position Position
	Segment  string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s position %d: %v", e.Segment, e.Position, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Reader iterates records in position order across segments. Readers share
// nothing with the writer or with each other beyond the files on disk.
type Reader struct {
	dir     string
	from    Position
	pos     Position
	seg     Segment
	f       *os.File
	br      *bufio.Reader
	offset  int64
	nextSeg int
	closed  bool
}

// OpenReader returns a reader over the log in dir that yields records after
// from. The log need not be open for writing.
func OpenReader(dir string, from Position) (*Reader, error) {
	r := &Reader{dir: dir, from: from}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) open() error {
	idx, err := readIndex(r.dir)
	if err != nil {
		return err
	}

	var seg Segment
	if r.nextSeg > 0 {
		next, ok := idx.segment(r.nextSeg)
		if !ok {
			return io.EOF
		}
		if next.FirstSeq != uint64(r.pos)+1 {
			return corrupt("segment %s starts at %d, previous segment ended at %d", next.Name(), next.FirstSeq, r.pos)
		}
		seg = next
	} else {
		seg = idx.locate(r.from)
	}

	f, err := os.Open(filepath.Join(r.dir, seg.Name()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return corrupt("segment %s listed in index but missing", seg.Name())
		}
		return err
	}
	r.f = f
	r.br = bufio.NewReader(f)
	r.seg = seg
	r.offset = 0
	r.pos = Position(seg.FirstSeq - 1)
	r.nextSeg = 0
	return nil
}

// Next returns the next record. At the current end of the log it returns
// io.EOF; calling Next again later picks up records appended since. A
// partially written last line is left for a later call.
func (r *Reader) Next() (*event.Record, error) {
	if r.closed {
		return nil, os.ErrClosed
	}
	for {
		if r.f == nil {
			if err := r.open(); err != nil {
				return nil, err
			}
		}

		line, err := r.br.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			if len(line) > 0 {
				if _, err := r.f.Seek(r.offset, io.SeekStart); err != nil {
					return nil, err
				}
				r.br.Reset(r.f)
			}
			return nil, io.EOF
		}
		r.offset += int64(len(line))

		switch classify(line) {
		case lineBlank:
			continue
		case lineMarker:
			r.nextSeg = r.seg.Number + 1
			_ = r.f.Close()
			r.f = nil
			continue
		}

		r.pos++
		if r.pos <= r.from {
			continue
		}
		rec, err := event.Decode(line)
		if err != nil {
			return nil, &RecordError{Position: r.pos, Segment: r.seg.Name(), Err: err}
		}
		rec.Seq = uint64(r.pos)
		return rec, nil
	}
}

// All yields records until the current end of the log. Record errors are
// yielded and iteration continues; any other error ends it.
func (r *Reader) All() iter.Seq2[*event.Record, error] {
	return func(yield func(*event.Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) {
				return
			}
			var re *RecordError
			if err != nil && !errors.As(err, &re) {
				return
			}
		}
	}
}

// Position returns the position of the last record consumed, including
// records skipped because they could not be decoded.
func (r *Reader) Position() Position {
	if r.pos < r.from {
		return r.from
	}
	return r.pos
}

// Segment returns the name of the segment being read.
func (r *Reader) Segment() string {
	return r.seg.Name()
}

func (r *Reader) Close() error {
	r.closed = true
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
