package segarchive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

var (
	ErrAccessDenied   = errors.New("access denied")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrThrottled      = errors.New("throttled")
	ErrQueueFull      = errors.New("upload queue full")
	ErrClosed         = errors.New("shipper closed")
)

// ShipError wraps a failed upload.
type ShipError struct {
	Key string
	Err error
}

func (e *ShipError) Error() string { return fmt.Sprintf("ship %s: %v", e.Key, e.Err) }
func (e *ShipError) Unwrap() error { return e.Err }

// Putter is the subset of *s3.Client used for uploads.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Shipper uploads segments in the background. Enqueue never blocks, so it is
// safe to call from the log store's rotate hook.
type Shipper struct {
	client Putter
	cfg    Config
	log    *zap.Logger

	queue  chan string
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	shipped int
	failed  int
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Shipper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg, log), nil
}

// NewWithClient uses an existing client.
func NewWithClient(client Putter, cfg Config, log *zap.Logger) *Shipper {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Shipper{
		client: client,
		cfg:    cfg,
		log:    log,
		queue:  make(chan string, size),
	}
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		if cfg.IMDSRegion {
			awsCfg.Region = instanceRegion(ctx, imds.NewFromConfig(awsCfg))
		}
		if awsCfg.Region == "" {
			awsCfg.Region = DefaultAWSRegion
		}
	}
	return awsCfg, nil
}

type regionGetter interface {
	GetRegion(ctx context.Context, in *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// instanceRegion asks instance metadata for the region. Off EC2 the call
// fails fast and the empty string is returned.
func instanceRegion(ctx context.Context, c regionGetter) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := c.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return ""
	}
	return out.Region
}

// Start uploads queued segments in the background until Close is called
// or ctx ends.
func (s *Shipper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Shipper) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-s.queue:
			if !ok {
				return
			}
			if err := s.Ship(ctx, p); err != nil {
				s.log.Warn("segment upload failed", zap.String("path", p), zap.Error(err))
			}
		}
	}
}

// Enqueue schedules a closed segment for upload.
func (s *Shipper) Enqueue(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- path:
		return nil
	default:
		s.log.Warn("segment upload queue full", zap.String("path", path))
		return ErrQueueFull
	}
}

// Ship uploads one segment file synchronously.
func (s *Shipper) Ship(ctx context.Context, path string) error {
	key := s.cfg.Key(filepath.Base(path))
	f, err := os.Open(path)
	if err != nil {
		s.count(false)
		return &ShipError{Key: key, Err: err}
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		s.count(false)
		return &ShipError{Key: key, Err: err}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		s.count(false)
		return &ShipError{Key: key, Err: classify(err)}
	}
	s.count(true)
	s.log.Info("segment shipped",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("bytes", info.Size()))
	return nil
}

func (s *Shipper) count(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.shipped++
	} else {
		s.failed++
	}
}

// Stats returns uploaded and failed segment counts.
func (s *Shipper) Stats() (shipped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shipped, s.failed
}

// Close stops accepting segments and waits for queued uploads to finish.
func (s *Shipper) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "AccessDenied"), strings.Contains(msg, "403"):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case strings.Contains(msg, "NoSuchBucket"):
		return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
	}
	return err
}
