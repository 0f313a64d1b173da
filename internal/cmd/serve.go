package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/config"
	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/internal/server"
	"github.com/3leaps/batchlog/internal/server/handlers"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/scheduler"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node: replay the event log and serve job state over HTTP",
	Long: `Open the event log, replay it into memory and serve health, metrics and
job queries over HTTP.

The node owns the log unless --readonly is set; a read-only node follows a
log written by another process and never appends to it. The janitor that
cleans finished jobs runs only on a writing node.

Examples:
  batchlog serve
  batchlog serve --port 9000 --log-dir /var/lib/batchlog/events
  batchlog --readonly serve --log-dir /mnt/shared/events`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	if err := observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer func() { _ = logger.Sync() }()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.InitMetrics()
	}

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signals", signalHealthChecker{})
	health.RegisterChecker("identity", identityHealthChecker{
		binaryName: config.AppName,
		envPrefix:  "BATCHLOG_",
		configName: config.AppName,
	})
	if metrics != nil {
		health.RegisterChecker("metrics", metricsHealthChecker{metrics: metrics})
	}

	n, err := openNode(ctx, cfg, logger, nodeOptions{writable: !readOnly, sinks: true, metrics: metrics})
	if err != nil {
		return err
	}
	defer n.close()

	health.RegisterChecker("eventlog", eventLogHealthChecker{dir: cfg.Log.Dir, store: n.store})
	if n.archive != nil {
		health.RegisterChecker("archive", handlers.HealthCheckerFunc(n.archive.PingContext))
	}
	if n.nc != nil {
		health.RegisterChecker("nats", natsHealthChecker{conn: n.nc})
	}

	opts := []server.Option{
		server.WithAPI(handlers.NewAPI(n.sched, n.archive)),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	}
	var metricsSrv *http.Server
	if metrics != nil {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
			opts = append(opts, server.WithMetrics(metrics.Handler()))
		} else {
			metricsSrv = newMetricsServer(cfg.Server.Host, cfg.Metrics.Port, metrics.Handler())
		}
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	errCh := make(chan error, 4)
	go func() { errCh <- srv.Start() }()
	if metricsSrv != nil {
		go func() {
			logger.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	shutdown := func() {
		health.SetReady(false)
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("HTTP server shutdown", zap.Error(err))
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(sctx)
		}
	}

	stats, err := replayLog(ctx, n, 0)
	if err != nil {
		shutdown()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return exitError(foundry.ExitFileReadError, "Replay of event log failed", err)
	}
	health.SetReady(true)
	logger.Info("node ready",
		zap.Bool("readonly", readOnly),
		zap.Uint64("position", uint64(stats.To)),
		zap.Int("jobs", n.sched.Registry().Len()))

	bg, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if readOnly {
		go func() {
			err := n.sched.Follow(bg, stats.To, cfg.Replay.Poll, nil)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("follow event log: %w", err)
			}
		}()
	} else if cfg.Scheduler.CleanPeriod >= 0 && cfg.Scheduler.JanitorSchedule != "" {
		go func() {
			err := n.sched.RunJanitor(bg, cfg.Scheduler.JanitorSchedule)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("janitor: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
	}
	stopBackground()
	shutdown()

	if err != nil {
		logger.Error("node stopped", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Node failed", err)
	}
	logger.Info("node stopped", zap.Uint64("position", uint64(n.sched.Position())))
	return nil
}

func newMetricsServer(host string, port int, h http.Handler) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", h)
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// replayLog replays from position from, recording the pass as a session
// when the job archive is configured.
func replayLog(ctx context.Context, n *node, from eventlog.Position) (scheduler.ReplayStats, error) {
	var sess *jobarchive.Session
	if n.archive != nil {
		var err error
		sess, err = jobarchive.CreateSession(ctx, n.archive, n.cfg.Log.Dir, uint64(from))
		if err != nil {
			n.log.Warn("replay session not recorded", zap.Error(err))
		}
	}

	stats, err := n.sched.Replay(ctx, from)
	n.log.Info("replay finished",
		zap.Uint64("from", uint64(stats.From)),
		zap.Uint64("to", uint64(stats.To)),
		zap.Int("records", stats.Records),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped()),
		zap.Duration("duration", stats.Duration),
		zap.Error(err))

	if sess != nil {
		sess.To = uint64(stats.To)
		sess.Applied = int64(stats.Applied)
		sess.Skipped = int64(stats.Skipped())
		switch {
		case err == nil:
			sess.Status = jobarchive.SessionComplete
		case errors.Is(err, context.Canceled):
			sess.Status = jobarchive.SessionInterrupted
		default:
			sess.Status = jobarchive.SessionFailed
			sess.Error = err.Error()
		}
		if ferr := jobarchive.FinishSession(context.WithoutCancel(ctx), n.archive, sess); ferr != nil {
			n.log.Warn("replay session not finished", zap.Error(ferr))
		}
	}
	return stats, err
}

// signalHealthChecker is registered once the signal context is installed.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

type metricsHealthChecker struct {
	metrics *observability.Metrics
}

func (c metricsHealthChecker) CheckHealth(ctx context.Context) error {
	if c.metrics == nil || c.metrics.Registry() == nil {
		return errors.New("metrics registry not initialized")
	}
	if _, err := c.metrics.Registry().Gather(); err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return nil
}

type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("missing binary name")
	case c.envPrefix == "":
		return errors.New("missing env prefix")
	case c.configName == "":
		return errors.New("missing config name")
	}
	return nil
}

// eventLogHealthChecker checks that the log directory is reachable. A
// writing node's store must still be open.
type eventLogHealthChecker struct {
	dir   string
	store *eventlog.Store
}

func (c eventLogHealthChecker) CheckHealth(ctx context.Context) error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("event log directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("event log directory %s is not a directory", c.dir)
	}
	if c.store != nil {
		if err := c.store.Sync(); err != nil {
			return fmt.Errorf("event log: %w", err)
		}
	}
	return nil
}

type natsHealthChecker struct {
	conn *nats.Conn
}

func (c natsHealthChecker) CheckHealth(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("nats connection not initialized")
	}
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats %s", c.conn.Status())
	}
	return nil
}
