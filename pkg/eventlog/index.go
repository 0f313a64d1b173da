package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	indexName     = "lsb.events.index"
	segmentPrefix = "lsb.events."
	indexFormat   = 1
)

// ErrIndexCorrupt means the segment index no longer describes a contiguous,
// monotonic sequence of positions. It is fatal: nothing read afterwards can
// be trusted.
var ErrIndexCorrupt = errors.New("event log index corrupt")

// Segment describes one log file. The active segment is the last one and is
// never closed; its LastSeq and Bytes are refreshed only at checkpoints.
type Segment struct {
	Number   int        `json:"number"`
	FirstSeq uint64     `json:"first_seq"`
	LastSeq  uint64     `json:"last_seq"`
	Bytes    int64      `json:"bytes"`
	Closed   bool       `json:"closed"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Name returns the segment file name.
func (s Segment) Name() string {
	return segmentName(s.Number)
}

// Records returns the number of records in a closed segment.
func (s Segment) Records() uint64 {
	if s.LastSeq < s.FirstSeq {
		return 0
	}
	return s.LastSeq - s.FirstSeq + 1
}

type index struct {
	Format   int       `json:"format"`
	Segments []Segment `json:"segments"`
}

func segmentName(n int) string {
	return fmt.Sprintf("%s%d", segmentPrefix, n)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIndexCorrupt, fmt.Sprintf(format, args...))
}

func readIndex(dir string) (*index, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexName))
	if err != nil {
		return nil, err
	}
	var idx index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, corrupt("parse %s: %v", indexName, err)
	}
	if err := idx.validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (idx *index) validate() error {
	if idx.Format != indexFormat {
		return corrupt("unsupported index format %d", idx.Format)
	}
	if len(idx.Segments) == 0 {
		return corrupt("no segments")
	}
	for i, seg := range idx.Segments {
		last := i == len(idx.Segments)-1
		if seg.Number <= 0 {
			return corrupt("segment number %d", seg.Number)
		}
		if seg.FirstSeq == 0 {
			return corrupt("segment %d starts at position 0", seg.Number)
		}
		if seg.Closed == last {
			if last {
				return corrupt("active segment %d is marked closed", seg.Number)
			}
			return corrupt("segment %d precedes the active segment but is open", seg.Number)
		}
		if seg.LastSeq+1 < seg.FirstSeq {
			return corrupt("segment %d ends before it starts", seg.Number)
		}
		if i == 0 {
			continue
		}
		prev := idx.Segments[i-1]
		if seg.Number != prev.Number+1 {
			return corrupt("segment %d follows segment %d", seg.Number, prev.Number)
		}
		if seg.FirstSeq != prev.LastSeq+1 {
			return corrupt("segment %d starts at %d, previous ended at %d", seg.Number, seg.FirstSeq, prev.LastSeq)
		}
	}
	return nil
}

func (idx *index) active() *Segment {
	return &idx.Segments[len(idx.Segments)-1]
}

// locate returns the segment that holds the position after pos.
func (idx *index) locate(pos Position) Segment {
	want := uint64(pos) + 1
	found := idx.Segments[0]
	for _, seg := range idx.Segments {
		if seg.FirstSeq <= want {
			found = seg
		}
	}
	return found
}

func (idx *index) segment(n int) (Segment, bool) {
	for _, seg := range idx.Segments {
		if seg.Number == n {
			return seg, true
		}
	}
	return Segment{}, false
}

func writeIndex(dir string, idx *index) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, indexName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeAll(tmp, b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, indexName)); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}
