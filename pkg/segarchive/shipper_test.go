package segarchive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

func writeSegment(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Bucket: "logs"}, false},
		{"missing bucket", Config{}, true},
		{"half credentials", Config{Bucket: "logs", AccessKeyID: "AKIA"}, true},
		{"full credentials", Config{Bucket: "logs", AccessKeyID: "AKIA", SecretAccessKey: "s"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigKey(t *testing.T) {
	assert.Equal(t, "lsb.events.1", (&Config{}).Key("lsb.events.1"))
	assert.Equal(t, "c1/events/lsb.events.1", (&Config{Prefix: "/c1/events/"}).Key("lsb.events.1"))
}

func TestShip(t *testing.T) {
	fake := &fakeS3{}
	s := NewWithClient(fake, Config{Bucket: "logs", Prefix: "c1"}, nil)

	p := writeSegment(t, t.TempDir(), "lsb.events.3", "\"7.06\" 1 100\n")
	require.NoError(t, s.Ship(context.Background(), p))

	got, ok := fake.get("logs/c1/lsb.events.3")
	require.True(t, ok)
	assert.Equal(t, "\"7.06\" 1 100\n", string(got))

	shipped, failed := s.Stats()
	assert.Equal(t, 1, shipped)
	assert.Equal(t, 0, failed)
}

func TestShipErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		s := NewWithClient(&fakeS3{}, Config{Bucket: "logs"}, nil)
		err := s.Ship(context.Background(), filepath.Join(t.TempDir(), "nope"))
		var se *ShipError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	tests := []struct {
		code string
		want error
	}{
		{"AccessDenied", ErrAccessDenied},
		{"NoSuchBucket", ErrBucketNotFound},
		{"SlowDown", ErrThrottled},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fake := &fakeS3{err: &smithy.GenericAPIError{Code: tt.code, Message: "nope"}}
			s := NewWithClient(fake, Config{Bucket: "logs"}, nil)
			p := writeSegment(t, t.TempDir(), "lsb.events.1", "x\n")
			err := s.Ship(context.Background(), p)
			assert.ErrorIs(t, err, tt.want)
			_, failed := s.Stats()
			assert.Equal(t, 1, failed)
		})
	}
}

func TestQueueDrainsOnClose(t *testing.T) {
	fake := &fakeS3{}
	s := NewWithClient(fake, Config{Bucket: "logs"}, nil)
	dir := t.TempDir()

	s.Start(context.Background())
	require.NoError(t, s.Enqueue(writeSegment(t, dir, "lsb.events.1", "a\n")))
	require.NoError(t, s.Enqueue(writeSegment(t, dir, "lsb.events.2", "b\n")))
	require.NoError(t, s.Close())

	_, ok := fake.get("logs/lsb.events.1")
	assert.True(t, ok)
	_, ok = fake.get("logs/lsb.events.2")
	assert.True(t, ok)

	assert.ErrorIs(t, s.Enqueue("x"), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestEnqueueFull(t *testing.T) {
	s := NewWithClient(&fakeS3{}, Config{Bucket: "logs", QueueSize: 1}, nil)
	require.NoError(t, s.Enqueue("a"))
	assert.ErrorIs(t, s.Enqueue("b"), ErrQueueFull)
}

type fakeIMDS struct {
	region string
	err    error
}

func (f fakeIMDS) GetRegion(ctx context.Context, _ *imds.GetRegionInput, _ ...func(*imds.Options)) (*imds.GetRegionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &imds.GetRegionOutput{Region: f.region}, nil
}

func TestInstanceRegion(t *testing.T) {
	assert.Equal(t, "eu-west-1", instanceRegion(context.Background(), fakeIMDS{region: "eu-west-1"}))
	assert.Equal(t, "", instanceRegion(context.Background(), fakeIMDS{err: errors.New("no metadata")}))
}
