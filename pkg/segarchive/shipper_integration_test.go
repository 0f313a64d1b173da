//go:build cloudintegration

package segarchive_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/segarchive"
	"github.com/3leaps/batchlog/test/cloudtest"
)

func TestShipRotatedSegments(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)

	shipper, err := segarchive.New(ctx, cloudtest.SegmentsConfig(bucket, "cluster1/events"), zap.NewNop())
	require.NoError(t, err)
	shipper.Start(ctx)

	dir := t.TempDir()
	store, err := eventlog.Open(dir, eventlog.Options{
		OnRotate: func(path string) { _ = shipper.Enqueue(path) },
	})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for id := int32(1); id <= 3; id++ {
		_, err := store.Append(event.WithPayload(event.JobNew, at, &event.JobNewLog{JobID: id, Queue: "normal"}))
		require.NoError(t, err)
		require.NoError(t, store.Rotate())
	}
	require.NoError(t, store.Close())
	require.NoError(t, shipper.Close())

	shipped, failed := shipper.Stats()
	assert.Equal(t, 3, shipped)
	assert.Zero(t, failed)

	keys := cloudtest.ListKeys(t, ctx, bucket)
	require.Len(t, keys, 3)
	for _, key := range keys {
		assert.Equal(t, "cluster1/events", filepath.Dir(key))
	}

	body := cloudtest.GetObject(t, ctx, bucket, keys[0])
	rec, err := event.Decode(bytes.TrimSpace(body))
	require.NoError(t, err)
	assert.Equal(t, event.JobNew, rec.Type)
}

func TestShipMissingBucket(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	shipper, err := segarchive.New(ctx, cloudtest.SegmentsConfig("no-such-bucket-batchlog", ""), zap.NewNop())
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "lsb.events.1")
	require.NoError(t, os.WriteFile(p, []byte("x\n"), 0o644))

	err = shipper.Ship(ctx, p)
	assert.ErrorIs(t, err, segarchive.ErrBucketNotFound)
}
