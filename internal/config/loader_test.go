package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRepoRootForTest(t *testing.T) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("could not locate repo root containing go.mod from %s", cwd)
	return ""
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// In CI containers the repo checkout may be outside $HOME; the workspace
	// variable must still resolve the project root.
	t.Run("CIBoundaryHint", func(t *testing.T) {
		repoRoot := findRepoRootForTest(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("CI", "true")
		t.Setenv("FULMEN_WORKSPACE_ROOT", repoRoot)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

		// Verify metrics defaults
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		// Verify health defaults
		assert.True(t, cfg.Health.Enabled)

		// Verify event log and scheduler defaults
		assert.Equal(t, int64(64<<20), cfg.Log.MaxSegmentBytes)
		assert.True(t, cfg.Log.Sync)
		assert.NotEmpty(t, cfg.Log.Dir)
		assert.Equal(t, int32(999999), cfg.Scheduler.MaxJobID)
		assert.Equal(t, time.Hour, cfg.Scheduler.CleanPeriod)
		assert.Equal(t, 16, cfg.Scheduler.ShardCount)
		assert.Equal(t, uint64(10000), cfg.Scheduler.OrphanWindow)
		assert.True(t, cfg.Scheduler.RequeueDone)
		assert.True(t, cfg.Scheduler.RequeueExit)
		assert.Equal(t, "@every 5m", cfg.Scheduler.JanitorSchedule)
		assert.Zero(t, cfg.Replay.RateLimit)
		assert.Equal(t, time.Second, cfg.Replay.Poll)

		// Collaborators are off by default
		assert.False(t, cfg.NATS.Enabled)
		assert.Equal(t, "batchlog.events", cfg.NATS.SubjectPrefix)
		assert.Empty(t, cfg.Archive.Path)
		assert.False(t, cfg.Segments.Enabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify overrides were applied
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Verify non-overridden values remain default
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		tests := []struct {
			env   map[string]string
			check func(t *testing.T, cfg *Config)
		}{
			{
				env: map[string]string{"BATCHLOG_PORT": "3000", "BATCHLOG_LOG_LEVEL": "warn"},
				check: func(t *testing.T, cfg *Config) {
					assert.Equal(t, 3000, cfg.Server.Port)
					assert.Equal(t, "warn", cfg.Logging.Level)
				},
			},
			{
				env:   map[string]string{"BATCHLOG_METRICS_ENABLED": "false"},
				check: func(t *testing.T, cfg *Config) { assert.False(t, cfg.Metrics.Enabled) },
			},
			{
				env: map[string]string{"BATCHLOG_READ_TIMEOUT": "45s", "BATCHLOG_SHUTDOWN_TIMEOUT": "5m"},
				check: func(t *testing.T, cfg *Config) {
					assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
					assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
				},
			},
			{
				env: map[string]string{
					"BATCHLOG_SCHEDULER_CLEAN_PERIOD": "15m",
					"BATCHLOG_LOG_DIR":                "/var/spool/batchlog",
				},
				check: func(t *testing.T, cfg *Config) {
					assert.Equal(t, 15*time.Minute, cfg.Scheduler.CleanPeriod)
					assert.Equal(t, "/var/spool/batchlog", cfg.Log.Dir)
				},
			},
		}

		for _, tt := range tests {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(ctx)
			require.NoError(t, err)
			tt.check(t, cfg)
		}
	})

	// runtime > env > defaults
	t.Run("Precedence", func(t *testing.T) {
		t.Setenv("BATCHLOG_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Same(t, cfg, GetConfig())

		cfg, err = Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
		assert.Same(t, cfg, GetConfig(), "reload replaces the current config")
	})
}

func TestEnvSpecs(t *testing.T) {
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		assert.True(t, strings.HasPrefix(spec.Name, "BATCHLOG_"), spec.Name)
		assert.NotEmpty(t, spec.Path, "env var %s has no path", spec.Name)
		names[spec.Name] = true
	}

	for _, name := range []string{
		"BATCHLOG_LOG_LEVEL",
		"BATCHLOG_PORT",
		"BATCHLOG_HOST",
		"BATCHLOG_METRICS_PORT",
		"BATCHLOG_LOG_DIR",
		"BATCHLOG_SCHEDULER_CLEAN_PERIOD",
		"BATCHLOG_NATS_URL",
	} {
		assert.True(t, names[name], "%s not mapped", name)
	}
}

func TestAliasWinsOverDerivedName(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want int
	}{
		{name: "alias and derived", env: map[string]string{"BATCHLOG_PORT": "7001", "BATCHLOG_SERVER_PORT": "7002"}, want: 7001},
		{name: "derived only", env: map[string]string{"BATCHLOG_SERVER_PORT": "7002"}, want: 7002},
		{name: "alias only", env: map[string]string{"BATCHLOG_PORT": "7001"}, want: 7001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Server.Port)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  dir: /data/events
  max_segment_bytes: 1048576
scheduler:
  max_job_id: 50000
  clean_period: 30m
nats:
  enabled: true
  effects: [terminal, cleaned]
`), 0o644))

	SetConfigFile(path)
	defer SetConfigFile("")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/data/events", cfg.Log.Dir)
	assert.Equal(t, int64(1<<20), cfg.Log.MaxSegmentBytes)
	assert.Equal(t, int32(50000), cfg.Scheduler.MaxJobID)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.CleanPeriod)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"terminal", "cleaned"}, cfg.NATS.Effects)
	assert.Equal(t, 8080, cfg.Server.Port, "unset keys keep defaults")
}

func TestLoadConfigFileMissing(t *testing.T) {
	SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	defer SetConfigFile("")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"unknown profile", map[string]any{"logging": map[string]any{"profile": "fancy"}}},
		{"port out of range", map[string]any{"server": map[string]any{"port": 70000}}},
		{"zero segment size", map[string]any{"log": map[string]any{"max_segment_bytes": 0}}},
		{"zero job ceiling", map[string]any{"scheduler": map[string]any{"max_job_id": 0}}},
		{"negative rate", map[string]any{"replay": map[string]any{"rate_limit": -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestLoadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// resetAppIdentity clears package state. Tests only.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	t.Cleanup(func() { _, _ = Load(context.Background()) })

	assert.Empty(t, getUserConfigPaths())
	assert.Empty(t, getEnvSpecs())
	assert.Nil(t, GetConfig())
}

func TestFindProjectRootCIBoundary(t *testing.T) {
	repoRoot := findRepoRootForTest(t)

	tests := []struct {
		name     string
		env      map[string]string
		wantRoot string
	}{
		{
			name: "empty boundary vars",
			env: map[string]string{
				"CI": "true", "FULMEN_WORKSPACE_ROOT": "", "GITHUB_WORKSPACE": "",
				"CI_PROJECT_DIR": "", "WORKSPACE": "",
			},
		},
		{name: "relative boundary", env: map[string]string{"CI": "true", "FULMEN_WORKSPACE_ROOT": "./events"}},
		{name: "missing boundary", env: map[string]string{"CI": "true", "FULMEN_WORKSPACE_ROOT": "/nonexistent/batchlog"}},
		{name: "boundary not containing cwd", env: map[string]string{"CI": "true", "FULMEN_WORKSPACE_ROOT": os.TempDir()}},
		{
			name:     "github workspace",
			env:      map[string]string{"GITHUB_ACTIONS": "true", "GITHUB_WORKSPACE": repoRoot},
			wantRoot: repoRoot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			root, err := findProjectRoot()
			require.NoError(t, err)
			if tt.wantRoot != "" {
				assert.Equal(t, tt.wantRoot, root)
			} else {
				assert.NotEmpty(t, root)
			}
		})
	}
}
