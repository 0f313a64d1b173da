// Package cmd implements the batchlog command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/config"
	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/internal/server/handlers"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

var (
	cfgFile  string
	verbose  bool
	readOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "batchlog",
	Short: "Batch scheduler event log tooling",
	Long: `batchlog keeps the event log of a batch scheduler and rebuilds job and
cluster state from it.

It can run as a node (serve) that owns the log, replay or follow a log
written elsewhere, decode individual log files and explain reason codes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger(config.AppName, verbose)
		config.SetConfigFile(cfgFile)
		setDefaults()
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: discovered batchlog.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose CLI logging")
	pf.BoolVar(&readOnly, "readonly", false, "Never write to the event log")
	pf.String("log-dir", "", "Event log directory")
	pf.String("log-level", "", "Service log level (debug|info|warn|error)")

	_ = viper.BindPFlag("readonly", pf.Lookup("readonly"))
	_ = viper.BindPFlag("log.dir", pf.Lookup("log-dir"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
}

// SetVersionInfo records build metadata for the version command and the
// /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetBuildInfo(version, commit, buildDate)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signalContext(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitCodeError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

// setDefaults registers config defaults on the global viper so flags bound
// to it resolve against them.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

// loadConfig loads configuration with explicitly set persistent flags as
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	for flag, key := range map[string]string{"log-dir": "log.dir", "log-level": "logging.level"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	return cfg, nil
}

type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.msg, e.code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, msg: message, err: err}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ExitWithCode logs msg and err and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
	_ = logger.Sync()
	os.Exit(code)
}
