package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/config"
	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/notify"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration, the event log and the
configured sinks, and suggest fixes for common issues.

Examples:
  batchlog doctor
  batchlog doctor --log-dir /var/lib/batchlog/events`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) (string, error)
	// skip reports whether the check does not apply to cfg.
	skip func(cfg *config.Config) bool
}

var doctorChecks = []doctorCheck{
	{name: "Go version", run: checkGoVersion},
	{name: "Gofulmen access", run: checkGofulmen},
	{name: "event log", run: checkEventLog},
	{
		name: "job archive",
		run:  checkArchive,
		skip: func(cfg *config.Config) bool { return cfg.Archive.Path == "" && cfg.Archive.URL == "" },
	},
	{
		name: "NATS",
		run:  checkNATS,
		skip: func(cfg *config.Config) bool { return !cfg.NATS.Enabled },
	},
	{
		name: "AWS credentials",
		run:  checkAWSCredentials,
		skip: func(cfg *config.Config) bool { return !cfg.Segments.Enabled },
	},
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := observability.CLILogger
	log.Info("=== batchlog doctor ===")

	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Error("Checking configuration... ❌", zap.Error(err))
		return err
	}
	log.Info("Checking configuration... ✅", zap.String("log_dir", cfg.Log.Dir))

	failed := 0
	total := len(doctorChecks)
	for i, c := range doctorChecks {
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, total, c.name)
		if c.skip != nil && c.skip(cfg) {
			log.Info(prefix + " skipped (not configured)")
			continue
		}
		detail, err := c.run(cmd.Context(), cfg)
		if err != nil {
			failed++
			log.Error(prefix+" ❌", zap.Error(err))
			if c.name == "AWS credentials" {
				printAWSCredentialsHelp(log)
			}
			continue
		}
		log.Info(prefix + " ✅ " + detail)
	}

	if failed > 0 {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(1, "Diagnostics failed", fmt.Errorf("%d of %d checks failed", failed, total))
	}
	log.Info("✅ All checks passed!")
	return nil
}

func checkGoVersion(context.Context, *config.Config) (string, error) {
	v := runtime.Version()
	return fmt.Sprintf("%s %s/%s", v, runtime.GOOS, runtime.GOARCH), nil
}

func checkGofulmen(context.Context, *config.Config) (string, error) {
	v := crucible.GetVersion()
	if v.Gofulmen == "" {
		return "", errors.New("cannot access gofulmen version information")
	}
	return fmt.Sprintf("gofulmen v%s, crucible v%s", v.Gofulmen, v.Crucible), nil
}

// checkEventLog reads the whole log through a reader, which validates the
// index and every segment.
func checkEventLog(ctx context.Context, cfg *config.Config) (string, error) {
	r, err := eventlog.OpenReader(cfg.Log.Dir, 0)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	var records, malformed int
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *eventlog.RecordError
		if errors.As(err, &recErr) {
			malformed++
			continue
		}
		if err != nil {
			return "", err
		}
		records++
	}
	detail := fmt.Sprintf("%d records up to position %d in %s", records, r.Position(), cfg.Log.Dir)
	if malformed > 0 {
		return "", fmt.Errorf("%s; %d undecodable", detail, malformed)
	}
	return detail, nil
}

func checkArchive(ctx context.Context, cfg *config.Config) (string, error) {
	db, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	n, err := jobarchive.CountArchivedJobs(ctx, db)
	if err != nil {
		return "", err
	}
	detail := fmt.Sprintf("%d archived jobs", n)
	sess, err := jobarchive.LatestSession(ctx, db, cfg.Log.Dir)
	if err != nil {
		return "", err
	}
	if sess != nil {
		detail += fmt.Sprintf(", last replay %s to position %d", sess.Status, sess.To)
	}
	return detail, nil
}

func checkNATS(_ context.Context, cfg *config.Config) (string, error) {
	if _, err := notify.ParseKinds(cfg.NATS.Effects); err != nil {
		return "", err
	}
	nc, err := notify.Connect(cfg.NATS.URL, config.AppName+"-doctor")
	if err != nil {
		return "", err
	}
	defer nc.Close()
	return "connected to " + nc.ConnectedUrlRedacted(), nil
}

func checkAWSCredentials(ctx context.Context, cfg *config.Config) (string, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Segments.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Segments.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve credentials: %w", err)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s from %s", maskAccessKey(creds.AccessKeyID), source), nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp(log *zap.Logger) {
	log.Info("To configure AWS credentials for segment upload:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Set segments.profile to a shared config profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
}
