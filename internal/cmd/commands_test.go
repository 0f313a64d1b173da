package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
)

func jobNew(id int32, queue string) *event.Record {
	return event.WithPayload(event.JobNew, t0, &event.JobNewLog{
		JobID:    id,
		Queue:    queue,
		UserName: "bob",
		JobName:  "sim",
		Command:  "./sim",
	})
}

func encodeLine(t *testing.T, rec *event.Record) string {
	t.Helper()
	b, err := event.Encode(rec)
	require.NoError(t, err)
	return string(b) + "\n"
}

// records splits JSONL output into envelopes.
func records(t *testing.T, out string) []map[string]any {
	t.Helper()
	var recs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		recs = append(recs, m)
	}
	return recs
}

func countType(recs []map[string]any, typ string) int {
	n := 0
	for _, r := range recs {
		if r["type"] == typ {
			n++
		}
	}
	return n
}

func TestDecodeCommand(t *testing.T) {
	in := encodeLine(t, jobNew(1, "normal")) + "garbage\n\n" + encodeLine(t, jobNew(2, "short"))

	t.Run("reports bad lines and continues", func(t *testing.T) {
		out, err := execute(t, in, "decode")
		require.NoError(t, err)

		recs := records(t, out)
		require.Len(t, recs, 3)
		assert.Equal(t, "batchlog.event.v1", recs[0]["type"])
		assert.Equal(t, "batchlog.error.v1", recs[1]["type"])
		assert.Equal(t, "batchlog.event.v1", recs[2]["type"])

		data := recs[1]["data"].(map[string]any)
		assert.Equal(t, "MALFORMED", data["code"])
		assert.EqualValues(t, 2, data["line"])
	})

	t.Run("strict stops at first bad line", func(t *testing.T) {
		out, err := execute(t, in, "decode", "--strict")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
		assert.Equal(t, 1, countType(records(t, out), "batchlog.event.v1"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "", "decode", "/nonexistent/lsb.events.1")
		require.Error(t, err)
		var ee *exitCodeError
		require.ErrorAs(t, err, &ee)
	})
}

func TestReplayCommand(t *testing.T) {
	dir := seedLog(t)

	t.Run("summary only", func(t *testing.T) {
		out, err := execute(t, "", "--log-dir", dir, "replay")
		require.NoError(t, err)

		recs := records(t, out)
		require.Len(t, recs, 1)
		data := recs[0]["data"].(map[string]any)
		assert.EqualValues(t, 4, data["records"])
		assert.EqualValues(t, 4, data["applied"])
		assert.EqualValues(t, 3, data["jobs"])
		assert.EqualValues(t, 4, data["to"])
	})

	t.Run("running jobs", func(t *testing.T) {
		out, err := execute(t, "", "--log-dir", dir, "replay", "--jobs", "--status", "RUN")
		require.NoError(t, err)

		recs := records(t, out)
		assert.Equal(t, 1, countType(recs, "batchlog.job.v1"))
		assert.Equal(t, 1, countType(recs, "batchlog.summary.v1"))
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := execute(t, "", "--log-dir", dir, "replay", "--jobs", "--status", "SLEEPY")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid job filter")
	})
}

func TestJobsCommand(t *testing.T) {
	dir := seedLog(t)

	out, err := execute(t, "", "--log-dir", dir, "jobs", "--queue", "short")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "JOBID"))
	fields := strings.Fields(lines[1])
	assert.Equal(t, "2", fields[0])
	assert.Equal(t, "alice", fields[1])
	assert.Equal(t, "RUN", fields[2])
	assert.Contains(t, lines[1], "node01")

	_, err = execute(t, "", "--log-dir", dir, "jobs", "--output", "xml")
	require.Error(t, err)
}

func TestReasonCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "pending", args: []string{"pending", "1302"}, want: "PEND_HOST_LOCKED"},
		{name: "pending hex", args: []string{"pending", "0x516"}, want: "PEND_HOST_LOCKED"},
		{name: "bands", args: []string{"bands"}, want: "BAND"},
		{name: "unknown kind", args: []string{"weird", "1"}, wantErr: true},
		{name: "missing code", args: []string{"pending"}, wantErr: true},
		{name: "bad code", args: []string{"pending", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"reason"}, tt.args...)...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestAppendCommand(t *testing.T) {
	dir := t.TempDir()

	t.Run("assigns job id", func(t *testing.T) {
		out, err := execute(t, encodeLine(t, jobNew(0, "normal")), "--log-dir", dir, "append")
		require.NoError(t, err)

		recs := records(t, out)
		require.Len(t, recs, 1)
		data := recs[0]["data"].(map[string]any)
		assert.Equal(t, "1", data["job"])
	})

	t.Run("rejects duplicate job", func(t *testing.T) {
		_, err := execute(t, encodeLine(t, jobNew(1, "normal")), "--log-dir", dir, "append")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 1")
	})

	t.Run("continue past rejected record", func(t *testing.T) {
		in := encodeLine(t, jobNew(1, "normal")) + encodeLine(t, jobNew(5, "normal"))
		out, err := execute(t, in, "--log-dir", dir, "append", "--continue")
		require.NoError(t, err)

		recs := records(t, out)
		assert.Equal(t, 1, countType(recs, "batchlog.error.v1"))
		assert.Equal(t, 1, countType(recs, "batchlog.event.v1"))
	})

	r, err := eventlog.OpenReader(dir, 0)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	var jobs []string
	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		if rec.Type == event.JobNew {
			jobs = append(jobs, jobString(rec))
		}
	}
	assert.Equal(t, []string{"1", "5"}, jobs)
}

func jobString(rec *event.Record) string {
	id, _ := rec.JobID()
	return id.String()
}
