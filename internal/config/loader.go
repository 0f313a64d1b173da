package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// identity names the environment prefix and config file of the binary.
type identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var defaultIdentity = identity{BinaryName: AppName, EnvPrefix: "BATCHLOG_", ConfigName: AppName}

var (
	configMu    sync.RWMutex
	appIdentity *identity
	appConfig   *Config
	configFile  string
)

// EnvSpec maps one environment variable to a config key.
type EnvSpec struct {
	Name string
	Path string
}

// Short names kept alongside the derived BATCHLOG_<SECTION>_<KEY> form.
var envAliases = map[string]string{
	"PORT":             "server.port",
	"HOST":             "server.host",
	"READ_TIMEOUT":     "server.read_timeout",
	"WRITE_TIMEOUT":    "server.write_timeout",
	"SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"LOG_LEVEL":        "logging.level",
	"LOG_PROFILE":      "logging.profile",
	"LOG_DIR":          "log.dir",
	"MAX_JOB_ID":       "scheduler.max_job_id",
}

// SetConfigFile selects an explicit YAML file for subsequent Load calls. An
// empty path restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// Load builds the configuration. Precedence, highest first: overrides,
// environment, config file, defaults. The result is also kept for
// GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()
	if appIdentity == nil {
		id := defaultIdentity
		appIdentity = &id
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Explicit bindings only. AutomaticEnv would consult the derived name
	// before any alias.
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// bindEnv binds every key to its short aliases followed by the derived
// BATCHLOG_<SECTION>_<KEY> name; the first one set wins.
func bindEnv(v *viper.Viper) error {
	names := map[string][]string{}
	for _, spec := range envSpecsLocked() {
		names[spec.Path] = append(names[spec.Path], spec.Name)
	}
	prefix := appIdentity.EnvPrefix
	for path, list := range names {
		derived := prefix + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
		sort.SliceStable(list, func(i, j int) bool { return list[j] == derived && list[i] != derived })
		if err := v.BindEnv(append([]string{path}, list...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", path, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
		return nil
	}
	if env := os.Getenv(appIdentity.EnvPrefix + "CONFIG"); env != "" {
		v.SetConfigFile(env)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", env, err)
		}
		return nil
	}

	for _, path := range getUserConfigPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func normalize(cfg *Config) error {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToUpper(strings.TrimSpace(cfg.Logging.Profile))
	switch cfg.Logging.Profile {
	case "STRUCTURED", "CONSOLE":
	default:
		return fmt.Errorf("logging.profile: unknown profile %q", cfg.Logging.Profile)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", cfg.Server.Port)
	}
	if cfg.Log.Dir == "" {
		return errors.New("log.dir must not be empty")
	}
	if cfg.Log.MaxSegmentBytes <= 0 {
		return fmt.Errorf("log.max_segment_bytes: must be positive, got %d", cfg.Log.MaxSegmentBytes)
	}
	if cfg.Scheduler.MaxJobID <= 0 {
		return fmt.Errorf("scheduler.max_job_id: must be positive, got %d", cfg.Scheduler.MaxJobID)
	}
	if cfg.Replay.RateLimit < 0 {
		return fmt.Errorf("replay.rate_limit: must not be negative")
	}
	return nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

func getEnvSpecs() []EnvSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return envSpecsLocked()
}

func envSpecsLocked() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	prefix := appIdentity.EnvPrefix

	specs := make([]EnvSpec, 0, len(envAliases)*2)
	for alias, path := range envAliases {
		specs = append(specs, EnvSpec{Name: prefix + alias, Path: path})
	}
	v := viper.New()
	SetDefaults(v)
	for _, key := range v.AllKeys() {
		specs = append(specs, EnvSpec{Name: prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_")), Path: key})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// getUserConfigPaths lists candidate config files, most specific first.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}
	name := appIdentity.ConfigName + ".yaml"

	var paths []string
	if root, err := findProjectRoot(); err == nil {
		paths = append(paths, filepath.Join(root, "config", name))
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, appIdentity.ConfigName, name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appIdentity.ConfigName, name))
	}
	return paths
}

// findProjectRoot returns the nearest ancestor of the working directory
// holding go.mod. On CI a workspace variable naming an absolute directory
// that contains the working directory wins. Without go.mod the working
// directory itself is returned.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}

	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		for _, name := range []string{"FULMEN_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"} {
			if root := boundary(os.Getenv(name), cwd); root != "" {
				return root, nil
			}
		}
	}

	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

func boundary(root, cwd string) string {
	if root == "" || !filepath.IsAbs(root) {
		return ""
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return ""
	}
	rel, err := filepath.Rel(root, cwd)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.Clean(root)
}
