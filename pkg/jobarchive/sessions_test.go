package jobarchive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaySessions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	none, err := LatestSession(ctx, db, "/var/log/lsf")
	require.NoError(t, err)
	assert.Nil(t, none)

	s, err := CreateSession(ctx, db, "/var/log/lsf", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, SessionRunning, s.Status)

	s.To = 250
	s.Applied = 240
	s.Skipped = 10
	s.Status = SessionComplete
	require.NoError(t, FinishSession(ctx, db, s))

	got, err := LatestSession(ctx, db, "/var/log/lsf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, uint64(250), got.To)
	assert.Equal(t, int64(240), got.Applied)
	assert.Equal(t, int64(10), got.Skipped)
	assert.Equal(t, SessionComplete, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Empty(t, got.Error)

	s2, err := CreateSession(ctx, db, "/var/log/lsf", 250)
	require.NoError(t, err)
	s2.Status = SessionFailed
	s2.Error = "index corrupt"
	require.NoError(t, FinishSession(ctx, db, s2))

	got, err = LatestSession(ctx, db, "/var/log/lsf")
	require.NoError(t, err)
	assert.Equal(t, s2.ID, got.ID)
	assert.Equal(t, uint64(250), got.From)
	assert.Equal(t, "index corrupt", got.Error)

	other, err := LatestSession(ctx, db, "/elsewhere")
	require.NoError(t, err)
	assert.Nil(t, other)
}
