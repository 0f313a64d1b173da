package eventlog

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/batchlog/pkg/event"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newJob(id int32) *event.Record {
	return event.WithPayload(event.JobNew, t0.Add(time.Duration(id)*time.Second), &event.JobNewLog{
		JobID:    id,
		Queue:    "normal",
		UserName: "alice",
		Command:  "sleep 10",
	})
}

func openStore(t *testing.T, dir string, opts Options) *Store {
	t.Helper()
	opts.Now = func() time.Time { return t0 }
	s, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readAll(t *testing.T, r *Reader) []*event.Record {
	t.Helper()
	var out []*event.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestAppendAssignsContiguousPositions(t *testing.T) {
	s := openStore(t, t.TempDir(), Options{})

	for i := int32(1); i <= 5; i++ {
		rec := newJob(i)
		pos, err := s.Append(rec)
		require.NoError(t, err)
		assert.Equal(t, Position(i), pos)
		assert.Equal(t, uint64(i), rec.Seq)
	}
	assert.Equal(t, Position(5), s.Last())

	r, err := s.NewReader(0)
	require.NoError(t, err)
	defer r.Close()
	got := readAll(t, r)
	require.Len(t, got, 5)
	for i, rec := range got {
		assert.Equal(t, uint64(i+1), rec.Seq)
		assert.Equal(t, int32(i+1), rec.Payload.(*event.JobNewLog).JobID)
	}
	assert.Equal(t, Position(5), r.Position())
}

func TestAppendRejectsMarkersAndBadRecords(t *testing.T) {
	s := openStore(t, t.TempDir(), Options{})

	_, err := s.Append(event.New(event.EndOfStream, t0))
	assert.Error(t, err)

	_, err = s.Append(event.WithPayload(event.JobNew, t0, &event.JobCleanLog{}))
	assert.ErrorIs(t, err, event.ErrMalformed)
	assert.Equal(t, Position(0), s.Last())
}

func TestRotationWritesMarkerAndKeepsPositionsContiguous(t *testing.T) {
	dir := t.TempDir()
	var rotated []string
	lastID := int32(0)
	s := openStore(t, dir, Options{
		MaxSegmentBytes: 512,
		SwitchRecord: func() *event.Record {
			return event.WithPayload(event.LogSwitch, t0, &event.LogSwitchLog{LastJobID: lastID})
		},
		OnRotate: func(path string) { rotated = append(rotated, path) },
	})

	for i := int32(1); i <= 20; i++ {
		lastID = i
		_, err := s.Append(newJob(i))
		require.NoError(t, err)
	}

	segs := s.Segments()
	require.Greater(t, len(segs), 2)
	assert.Len(t, rotated, len(segs)-1)
	for i, seg := range segs[:len(segs)-1] {
		assert.True(t, seg.Closed)
		assert.Equal(t, filepath.Join(dir, seg.Name()), rotated[i])

		b, err := os.ReadFile(filepath.Join(dir, seg.Name()))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
		last, err := event.Decode([]byte(lines[len(lines)-1]))
		require.NoError(t, err)
		assert.True(t, last.Marker(), "segment %s must end with a marker", seg.Name())
		assert.Equal(t, int64(len(b)), seg.Bytes)

		if i > 0 {
			first, err := event.Decode([]byte(lines[0]))
			require.NoError(t, err)
			assert.Equal(t, event.LogSwitch, first.Type)
		}
	}

	r, err := s.NewReader(0)
	require.NoError(t, err)
	defer r.Close()
	got := readAll(t, r)
	require.Len(t, got, int(s.Last()))

	jobs := 0
	for i, rec := range got {
		require.Equal(t, uint64(i+1), rec.Seq)
		require.False(t, rec.Marker())
		if rec.Type == event.JobNew {
			jobs++
		}
	}
	assert.Equal(t, 20, jobs)
}

func TestReaderTailsAcrossSegmentSwitch(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{MaxSegmentBytes: 400})

	_, err := s.Append(newJob(1))
	require.NoError(t, err)

	r, err := OpenReader(dir, 0)
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	require.Len(t, got, 1)

	var seen []uint64
	for i := int32(2); i <= 12; i++ {
		_, err := s.Append(newJob(i))
		require.NoError(t, err)
		for _, rec := range readAll(t, r) {
			seen = append(seen, rec.Seq)
		}
	}

	require.Greater(t, len(s.Segments()), 1)
	want := make([]uint64, 0, 11)
	for i := uint64(2); i <= 12; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, seen)
}

func TestReaderResumesFromPosition(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{MaxSegmentBytes: 300})
	for i := int32(1); i <= 10; i++ {
		_, err := s.Append(newJob(i))
		require.NoError(t, err)
	}

	for _, from := range []Position{0, 1, 4, 9, 10, 15} {
		r, err := OpenReader(dir, from)
		require.NoError(t, err)
		got := readAll(t, r)
		_ = r.Close()

		want := 0
		if from < 10 {
			want = 10 - int(from)
		}
		require.Len(t, got, want, "from %d", from)
		if want > 0 {
			assert.Equal(t, uint64(from)+1, got[0].Seq)
		}
	}
}

func TestReaderWaitsForPartialLine(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{})
	_, err := s.Append(newJob(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	line, err := event.Encode(newJob(2))
	require.NoError(t, err)
	path := filepath.Join(dir, segmentName(1))
	appendFile(t, path, string(line[:10]))

	r, err := OpenReader(dir, 0)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, readAll(t, r), 1)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	appendFile(t, path, string(line[10:])+"\n")
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Seq)
	assert.Equal(t, int32(2), rec.Payload.(*event.JobNewLog).JobID)
}

func TestReaderSkipsUndecodableRecord(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{})
	_, err := s.Append(newJob(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	path := filepath.Join(dir, segmentName(1))
	appendFile(t, path, "\"7.06\" 31 1700000000\n")
	line, err := event.Encode(newJob(3))
	require.NoError(t, err)
	appendFile(t, path, string(line)+"\n")

	r, err := OpenReader(dir, 0)
	require.NoError(t, err)
	defer r.Close()

	var recs []*event.Record
	var errs []error
	for rec, err := range r.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	require.Len(t, errs, 1)

	var re *RecordError
	require.ErrorAs(t, errs[0], &re)
	assert.Equal(t, Position(2), re.Position)
	assert.ErrorIs(t, errs[0], event.ErrBadEventType)
	assert.Equal(t, uint64(3), recs[1].Seq)
}

func TestOpenTruncatesPartialTail(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{})
	for i := int32(1); i <= 3; i++ {
		_, err := s.Append(newJob(i))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	path := filepath.Join(dir, segmentName(1))
	before, err := os.Stat(path)
	require.NoError(t, err)
	appendFile(t, path, `"7.06" 1 1700000000 4 0 0`)

	s2 := openStore(t, dir, Options{})
	assert.Equal(t, Position(3), s2.Last())
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())

	pos, err := s2.Append(newJob(4))
	require.NoError(t, err)
	assert.Equal(t, Position(4), pos)
}

func TestOpenRestoresStateAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{MaxSegmentBytes: 300})
	for i := int32(1); i <= 8; i++ {
		_, err := s.Append(newJob(i))
		require.NoError(t, err)
	}
	segs := len(s.Segments())
	require.NoError(t, s.Close())

	s2 := openStore(t, dir, Options{MaxSegmentBytes: 300})
	assert.Equal(t, Position(8), s2.Last())
	assert.Len(t, s2.Segments(), segs)

	pos, err := s2.Append(newJob(9))
	require.NoError(t, err)
	assert.Equal(t, Position(9), pos)

	r, err := s2.NewReader(0)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 9)
}

func TestOpenCompletesInterruptedSwitch(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir, Options{})
	_, err := s.Append(newJob(1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	marker, err := event.Encode(event.WithPayload(event.EndOfStream, t0, &event.EOSLog{}))
	require.NoError(t, err)
	appendFile(t, filepath.Join(dir, segmentName(1)), string(marker)+"\n")

	s2 := openStore(t, dir, Options{})
	segs := s2.Segments()
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Closed)
	assert.Equal(t, uint64(2), segs[1].FirstSeq)

	pos, err := s2.Append(newJob(2))
	require.NoError(t, err)
	assert.Equal(t, Position(2), pos)
}

func TestOpenDetectsCorruptIndex(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, dir string)
	}{
		{
			name: "missing index",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, indexName)))
			},
		},
		{
			name: "unparsable index",
			mutate: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, indexName), []byte("{"), 0644))
			},
		},
		{
			name: "position gap",
			mutate: func(t *testing.T, dir string) {
				editIndex(t, dir, func(idx *index) { idx.Segments[1].FirstSeq += 2 })
			},
		},
		{
			name: "segment number gap",
			mutate: func(t *testing.T, dir string) {
				editIndex(t, dir, func(idx *index) { idx.Segments[1].Number = 7 })
			},
		},
		{
			name: "closed segment resized",
			mutate: func(t *testing.T, dir string) {
				appendFile(t, filepath.Join(dir, segmentName(1)), "x\n")
			},
		},
		{
			name: "active segment shorter than index",
			mutate: func(t *testing.T, dir string) {
				editIndex(t, dir, func(idx *index) { idx.active().Bytes += 4096 })
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, err := Open(dir, Options{MaxSegmentBytes: 300})
			require.NoError(t, err)
			for i := int32(1); i <= 6; i++ {
				_, err := s.Append(newJob(i))
				require.NoError(t, err)
			}
			require.Greater(t, len(s.Segments()), 1)
			require.NoError(t, s.Close())

			tt.mutate(t, dir)

			_, err = Open(dir, Options{MaxSegmentBytes: 300})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIndexCorrupt)
		})
	}
}

func editIndex(t *testing.T, dir string, fn func(idx *index)) {
	t.Helper()
	path := filepath.Join(dir, indexName)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var idx index
	require.NoError(t, json.Unmarshal(b, &idx))
	fn(&idx)
	b, err = json.Marshal(&idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0644))
}

func TestClosedStore(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Append(newJob(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Rotate(), ErrClosed)
}
