package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

func finishedAndRunning(t *testing.T, s *Scheduler) {
	t.Helper()
	submitAll(t, s,
		jobNew(1, 0), jobStart(1, 1), jobFinish(1, 10),
		jobNew(2, 2), jobStart(2, 3),
	)
}

func TestCleanSweep(t *testing.T) {
	n := &recordingNotifier{}
	a := &recordingArchive{}
	s := newScheduler(t, Options{
		Log:         openLog(t, t.TempDir()),
		Notifiers:   []Notifier{n},
		Archive:     a,
		CleanPeriod: time.Minute,
	})
	finishedAndRunning(t, s)

	cleaned, err := s.CleanSweep(context.Background(), at(30))
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned, "not yet past the clean period")

	cleaned, err = s.CleanSweep(context.Background(), at(70))
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, ok := s.Job(jobid.New(1, 0))
	assert.False(t, ok)
	_, ok = s.Job(jobid.New(2, 0))
	assert.True(t, ok)

	require.Len(t, a.jobs, 1)
	assert.Equal(t, jobid.New(1, 0), a.jobs[0].ID)
	assert.Equal(t, event.StatusDone, a.jobs[0].Status)
	assert.Equal(t, []uint64{6}, a.seqs)

	kinds := n.kinds()
	assert.Equal(t, jobstate.EffectCleaned, kinds[len(kinds)-1])
}

func TestCleanSweepDisabled(t *testing.T) {
	s := newScheduler(t, Options{Log: openLog(t, t.TempDir()), CleanPeriod: -1})
	finishedAndRunning(t, s)

	cleaned, err := s.CleanSweep(context.Background(), at(100000))
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)
}

func TestCleanSweepReadOnly(t *testing.T) {
	s := newScheduler(t, Options{LogDir: t.TempDir()})
	_, err := s.CleanSweep(context.Background(), at(0))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestReplayArchivesCleanedJobs(t *testing.T) {
	dir := t.TempDir()
	live := newScheduler(t, Options{Log: openLog(t, dir), CleanPeriod: time.Second})
	finishedAndRunning(t, live)
	_, err := live.CleanSweep(context.Background(), at(60))
	require.NoError(t, err)

	a := &recordingArchive{}
	replica := newScheduler(t, Options{LogDir: dir, Archive: a})
	_, err = replica.Replay(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, a.jobs, 1)
	assert.Equal(t, jobid.New(1, 0), a.jobs[0].ID)
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "*/5 * * * *"},
		{spec: "0 3 * * 1-5"},
		{spec: "@hourly"},
		{spec: "@every 90s"},
		{spec: "* * *", wantErr: true},
		{spec: "0 0 0 * * *", wantErr: true},
		{spec: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			sched, err := ParseSchedule(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, sched.Next(t0).After(t0))
		})
	}
}

func TestRunJanitor(t *testing.T) {
	s := newScheduler(t, Options{
		Log:         openLog(t, t.TempDir()),
		CleanPeriod: time.Minute,
		Now:         func() time.Time { return at(600) },
	})
	finishedAndRunning(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.RunJanitor(ctx, "@every 10ms") }()

	require.Eventually(t, func() bool {
		_, ok := s.Job(jobid.New(1, 0))
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, s.Registry().Len())
}

func TestRunJanitorInvalidSchedule(t *testing.T) {
	s := newScheduler(t, Options{Log: openLog(t, t.TempDir())})
	err := s.RunJanitor(context.Background(), "every tuesday")
	assert.Error(t, err)
}
