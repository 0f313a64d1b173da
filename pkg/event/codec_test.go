package event

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/reason"
)

var statusType = reflect.TypeOf(Status(0))

// fill sets every exported field of the struct behind v to a random value
// the wire format can carry.
func fill(r *rand.Rand, v reflect.Value) {
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !f.CanSet() {
			continue
		}
		if f.Type() == statusType {
			f.SetUint(uint64(StatusPending) + uint64(r.Intn(int(StatusUnknown))))
			continue
		}
		switch f.Kind() {
		case reflect.Int32:
			f.SetInt(int64(r.Int31()) - 1<<30)
		case reflect.Int64:
			f.SetInt(r.Int63() - 1<<62)
		case reflect.Float64:
			f.SetFloat(r.NormFloat64() * 1000)
		case reflect.String:
			f.SetString(randomString(r))
		case reflect.Struct:
			for j := 0; j < f.NumField(); j++ {
				if f.Field(j).Kind() == reflect.Bool {
					f.Field(j).SetBool(r.Intn(2) == 1)
				}
			}
		case reflect.Slice:
			n := r.Intn(4)
			if n == 0 {
				continue
			}
			s := reflect.MakeSlice(f.Type(), n, n)
			for j := 0; j < n; j++ {
				switch f.Type().Elem().Kind() {
				case reflect.String:
					s.Index(j).SetString(randomString(r))
				case reflect.Int32:
					s.Index(j).SetInt(int64(r.Int31()))
				case reflect.Int64:
					s.Index(j).SetInt(r.Int63())
				}
			}
			f.Set(s)
		}
	}
}

func randomString(r *rand.Rand) string {
	const alphabet = `abc XYZ 019_-/."'[]`
	n := r.Intn(12)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return sb.String()
}

func TestEncodeDecodeRoundTripAllTypes(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, typ := range Types() {
		t.Run(typ.String(), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				rec := &Record{Version: CurrentVersion, Type: typ, Time: r.Int63n(1 << 40), Payload: NewPayload(typ)}
				if typ.Legacy() {
					n := r.Intn(5)
					for j := 0; j < n; j++ {
						rec.Payload.(*Legacy).Tokens = append(rec.Payload.(*Legacy).Tokens, fmt.Sprintf("t%d", r.Intn(1000)))
					}
				} else {
					fill(r, reflect.ValueOf(rec.Payload))
				}

				line, err := Encode(rec)
				require.NoError(t, err)
				require.NotContains(t, string(line), "\n")

				got, err := Decode(line)
				require.NoError(t, err, "line: %s", line)
				require.Equal(t, rec, got, "line: %s", line)
			}
		})
	}
}

func TestDecodeOlderVersionDefaultsNewFields(t *testing.T) {
	rec := WithPayload(JobFinish, time.Unix(1700000000, 0), &JobFinishLog{
		JobID:      42,
		Status:     StatusDone,
		Queue:      "normal",
		ExitReason: reason.ExitNormal,
		UserName:   "alice",
		SLA:        "gold",
		App:        "sim",
		RunTime:    90,
	})
	rec.Version = "6.0"

	line, err := Encode(rec)
	require.NoError(t, err)

	got, err := Decode(line)
	require.NoError(t, err)
	p := got.Payload.(*JobFinishLog)
	assert.Equal(t, "gold", p.SLA)
	assert.Empty(t, p.App, "7.0 field must not be encoded at 6.0")
	assert.Zero(t, p.RunTime)
	assert.Equal(t, "alice", p.UserName)
}

func TestDecodeMissingOptionalTail(t *testing.T) {
	// QUEUE_CTRL without the 7.0 message field.
	got, err := Decode([]byte(`"7.06" 6 1700000000 2 "short" 0 "root"`))
	require.NoError(t, err)
	p := got.Payload.(*QueueCtrlLog)
	assert.Equal(t, QueueClosed, p.OpCode)
	assert.Equal(t, "short", p.Queue)
	assert.Empty(t, p.Message)
}

func TestDecodeNewerMinorUsesNewestLayout(t *testing.T) {
	got, err := Decode([]byte(`"7.08" 37 1700000000 12 0 "extra" 99`))
	require.NoError(t, err)
	assert.Equal(t, "7.08", got.Version)
	assert.Equal(t, jobid.New(12, 0), got.Payload.(*JobCleanLog).Job())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind error
	}{
		{name: "empty", line: ``, kind: ErrTruncated},
		{name: "header only", line: `"7.06" 37`, kind: ErrTruncated},
		{name: "missing field", line: `"7.06" 37 1700000000 12`, kind: ErrTruncated},
		{name: "unterminated string", line: `"7.06" 6 1700000000 2 "short`, kind: ErrTruncated},
		{name: "unknown type", line: `"7.06" 31 1700000000`, kind: ErrBadEventType},
		{name: "type out of range", line: `"7.06" 999 1700000000`, kind: ErrBadEventType},
		{name: "newer major", line: `"8.0" 37 1700000000 12 0`, kind: ErrUnsupportedVersion},
		{name: "too old", line: `"5.1" 37 1700000000 12 0`, kind: ErrUnsupportedVersion},
		{name: "garbage version", line: `"seven" 37 1700000000 12 0`, kind: ErrMalformed},
		{name: "bad number", line: `"7.06" 37 1700000000 twelve 0`, kind: ErrMalformed},
		{name: "string for number", line: `"7.06" 37 1700000000 "12" 0`, kind: ErrMalformed},
		{name: "bad time", line: `"7.06" 37 soon 12 0`, kind: ErrMalformed},
		{name: "negative count", line: `"7.06" 11 1700000000 -1`, kind: ErrMalformed},
		{name: "count past end", line: `"7.06" 11 1700000000 3 "r15s" "r1m"`, kind: ErrTruncated},
		{name: "junk after string", line: `"7.06" 6 1700000000 2 "a"b 0 "root"`, kind: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.True(t, IsCodecError(err))
			assert.Equal(t, errors.Is(tt.kind, ErrUnsupportedVersion), Fatal(err))
		})
	}
}

func TestDecodeRejectsAmbiguousStatus(t *testing.T) {
	_, err := Decode([]byte(`"7.06" 3 1700000000 12 5 0 0 0 0 0 0 0 0`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "jStatus", ce.Field)
	assert.Equal(t, JobStatus, ce.Type)
}

func TestDecodeUnknownWinsOverStateBits(t *testing.T) {
	got, err := Decode([]byte(fmt.Sprintf(`"7.06" 3 1700000000 12 %d 0 0 0 0 0 0 0 0`, WireUnkwn|WireRun)))
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, got.Payload.(*JobStatusLog).Status)
}

func TestEncodeQuoting(t *testing.T) {
	rec := WithPayload(QueueCtrl, time.Unix(100, 0), &QueueCtrlLog{
		OpCode:   QueueOpen,
		Queue:    `say "hi"`,
		UserName: "",
	})
	line, err := Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, `"7.06" 6 100 1 "say ""hi""" 0 "" ""`, string(line))

	got, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, `say "hi"`, got.Payload.(*QueueCtrlLog).Queue)
}

func TestEncodeErrors(t *testing.T) {
	at := time.Unix(100, 0)

	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(&Record{Version: CurrentVersion, Type: 31, Payload: &Legacy{}})
	assert.ErrorIs(t, err, ErrBadEventType)

	_, err = Encode(WithPayload(JobClean, at, &JobRequeueLog{JobID: 1}))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(WithPayload(JobClean, at, nil))
	assert.ErrorIs(t, err, ErrMalformed)

	rec := WithPayload(JobClean, at, &JobCleanLog{JobID: 1})
	rec.Version = "9.0"
	_, err = Encode(rec)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Encode(WithPayload(QueueCtrl, at, &QueueCtrlLog{Queue: "a\nb"}))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeIgnoresLineEndingsAndExtraTokens(t *testing.T) {
	got, err := Decode([]byte("\"7.06\" 43 1700000000 77 \"future\" 5\r\n"))
	require.NoError(t, err)
	assert.Equal(t, int32(77), got.Payload.(*LogSwitchLog).LastJobID)
}

func TestLegacyPassThrough(t *testing.T) {
	line := `"6.2" 19 1700000000 "cal one" 3 x`
	got, err := Decode([]byte(line))
	require.NoError(t, err)
	assert.True(t, got.Type.Legacy())
	assert.Equal(t, []string{`"cal one"`, "3", "x"}, got.Payload.(*Legacy).Tokens)

	out, err := Encode(got)
	require.NoError(t, err)
	assert.Equal(t, line, string(out))
}

func TestRecordJobID(t *testing.T) {
	rec := WithPayload(JobStart, time.Unix(0, 0), &JobStartLog{JobID: 9, Idx: 3})
	id, ok := rec.JobID()
	require.True(t, ok)
	assert.Equal(t, "9[3]", id.String())

	_, ok = WithPayload(MbdStart, time.Unix(0, 0), &MbdStartLog{}).JobID()
	assert.False(t, ok)

	mod := WithPayload(JobModify2, time.Unix(0, 0), &JobModLog{JobIDStr: "15[2]"})
	id, ok = mod.JobID()
	require.True(t, ok)
	assert.Equal(t, jobid.New(15, 2), id)

	chunk := &JobChunkLog{MembJobIDs: []int64{jobid.Pack(1, 20), jobid.Pack(0, 21)}}
	assert.Equal(t, []jobid.ID{jobid.New(20, 1), jobid.New(21, 0)}, chunk.Members())
}

func TestRecordMarshalJSON(t *testing.T) {
	rec := WithPayload(JobStatus, time.Unix(1700000000, 0), &JobStatusLog{JobID: 5, Status: StatusRunning})
	rec.Seq = 12
	b, err := rec.MarshalJSON()
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"type":"JOB_STATUS"`)
	assert.Contains(t, s, `"job":"5"`)
	assert.Contains(t, s, `"status":"RUN"`)
	assert.Contains(t, s, `"seq":12`)
}
