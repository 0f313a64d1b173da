// Package segarchive ships closed event log segments to S3-compatible storage.
package segarchive

import (
	"errors"
	"path"
	"strings"
)

// DefaultAWSRegion is used for AWS S3 when no region resolves.
const DefaultAWSRegion = "us-east-1"

// Config configures a Shipper.
//
// Credentials follow the AWS SDK default chain unless AccessKeyID and
// SecretAccessKey are both set. With IMDSRegion, an unset region is read
// from EC2 instance metadata before falling back to DefaultAWSRegion.
type Config struct {
	Bucket string
	// Prefix is prepended to segment names, e.g. "cluster1/events/".
	Prefix string

	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	IMDSRegion      bool

	// QueueSize bounds segments waiting for upload. Zero uses 64.
	QueueSize int
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("segarchive: bucket is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return errors.New("segarchive: access key id and secret access key must be set together")
	}
	return nil
}

// Key returns the object key for a segment file name.
func (c *Config) Key(name string) string {
	p := strings.Trim(c.Prefix, "/")
	if p == "" {
		return name
	}
	return path.Join(p, name)
}
