// Package config loads batchlog configuration from defaults, an optional
// YAML file, BATCHLOG_ environment variables and runtime overrides.
package config

import (
	"path/filepath"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
)

// Config is the full node configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Segments  SegmentsConfig  `mapstructure:"segments"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Profile is STRUCTURED (JSON) or CONSOLE.
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls the Prometheus endpoint. Port 0 serves /metrics on
// the main server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig locates and sizes the event log.
type LogConfig struct {
	Dir             string `mapstructure:"dir"`
	MaxSegmentBytes int64  `mapstructure:"max_segment_bytes"`
	Sync            bool   `mapstructure:"sync"`
}

type SchedulerConfig struct {
	MaxJobID        int32         `mapstructure:"max_job_id"`
	CleanPeriod     time.Duration `mapstructure:"clean_period"`
	ShardCount      int           `mapstructure:"shard_count"`
	OrphanWindow    uint64        `mapstructure:"orphan_window"`
	RequeueDone     bool          `mapstructure:"requeue_done"`
	RequeueExit     bool          `mapstructure:"requeue_exit"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"`
}

type ReplayConfig struct {
	// RateLimit caps records per second; 0 is unlimited.
	RateLimit float64       `mapstructure:"rate_limit"`
	Poll      time.Duration `mapstructure:"poll"`
	Notify    bool          `mapstructure:"notify"`
}

type NATSConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	URL           string   `mapstructure:"url"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	Effects       []string `mapstructure:"effects"`
}

// ArchiveConfig selects the cleaned-job archive. An empty Path and URL
// disables it.
type ArchiveConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type SegmentsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	IMDSRegion     bool   `mapstructure:"imds_region"`
	QueueSize      int    `mapstructure:"queue_size"`
}

// AppName names the application data directory and config file.
const AppName = "batchlog"

// DefaultLogDir is the event log directory under the application data dir.
func DefaultLogDir() string {
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "events")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)

	v.SetDefault("log.dir", DefaultLogDir())
	v.SetDefault("log.max_segment_bytes", 64<<20)
	v.SetDefault("log.sync", true)

	v.SetDefault("scheduler.max_job_id", 999999)
	v.SetDefault("scheduler.clean_period", "1h")
	v.SetDefault("scheduler.shard_count", 16)
	v.SetDefault("scheduler.orphan_window", 10000)
	v.SetDefault("scheduler.requeue_done", true)
	v.SetDefault("scheduler.requeue_exit", true)
	v.SetDefault("scheduler.janitor_schedule", "@every 5m")

	v.SetDefault("replay.rate_limit", 0)
	v.SetDefault("replay.poll", "1s")
	v.SetDefault("replay.notify", false)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "batchlog.events")
	v.SetDefault("nats.effects", []string{})

	v.SetDefault("archive.path", "")
	v.SetDefault("archive.url", "")
	v.SetDefault("archive.auth_token", "")

	v.SetDefault("segments.enabled", false)
	v.SetDefault("segments.bucket", "")
	v.SetDefault("segments.prefix", "")
	v.SetDefault("segments.region", "")
	v.SetDefault("segments.endpoint", "")
	v.SetDefault("segments.profile", "")
	v.SetDefault("segments.force_path_style", false)
	v.SetDefault("segments.imds_region", false)
	v.SetDefault("segments.queue_size", 64)
}
