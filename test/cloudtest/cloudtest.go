// Package cloudtest runs segment upload tests against a local moto server.
//
// Tests using this package should be tagged with //go:build cloudintegration
// and call SkipIfUnavailable first:
//
//	func TestShipToMoto(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    shipper, err := segarchive.New(ctx, cloudtest.SegmentsConfig(bucket, "events"), log)
//	    ...
//	}
package cloudtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/3leaps/batchlog/pkg/segarchive"
)

const (
	// DefaultEndpoint avoids port 5000, which macOS AirTunes holds.
	DefaultEndpoint = "http://localhost:5555"
	DefaultRegion   = "us-east-1"

	// moto accepts any static credentials.
	accessKeyID     = "testing"
	secretAccessKey = "testing"
)

var (
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)
	Region   = envOr("MOTO_REGION", DefaultRegion)

	client     *s3.Client
	clientOnce sync.Once
	clientErr  error
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Available reports whether the moto server answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s", Endpoint)
	}
}

// SegmentsConfig returns a shipper config pointed at moto.
func SegmentsConfig(bucket, prefix string) segarchive.Config {
	return segarchive.Config{
		Bucket:          bucket,
		Prefix:          prefix,
		Region:          Region,
		Endpoint:        Endpoint,
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		ForcePathStyle:  true,
	}
}

// Client returns a shared S3 client for moto.
func Client() (*s3.Client, error) {
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		)
		if err != nil {
			clientErr = fmt.Errorf("load config: %w", err)
			return
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	return client, clientErr
}

func clientT(t *testing.T) *s3.Client {
	t.Helper()
	c, err := Client()
	if err != nil {
		t.Fatalf("create S3 client: %v", err)
	}
	return c
}

// CreateBucket creates a bucket named after the test and removes it, with
// its segments, on cleanup.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()
	c := clientT(t)

	name := strings.NewReplacer("/", "-", "_", "-").Replace(strings.ToLower(t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)

	if _, err := c.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { deleteBucket(t, name) })
	return name
}

func deleteBucket(t *testing.T, bucket string) {
	ctx := context.Background()
	c := clientT(t)
	for _, key := range ListKeys(t, ctx, bucket) {
		if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
			t.Logf("warning: delete %s: %v", key, err)
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("warning: delete bucket %s: %v", bucket, err)
	}
}

// ListKeys returns every object key in bucket, sorted.
func ListKeys(t *testing.T, ctx context.Context, bucket string) []string {
	t.Helper()
	var keys []string
	p := s3.NewListObjectsV2Paginator(clientT(t), &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			t.Fatalf("list %s: %v", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys
}

// GetObject returns the body of bucket/key.
func GetObject(t *testing.T, ctx context.Context, bucket, key string) []byte {
	t.Helper()
	out, err := clientT(t).GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		t.Fatalf("get %s/%s: %v", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read %s/%s: %v", bucket, key, err)
	}
	return b
}
