package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/config"
	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/notify"
	"github.com/3leaps/batchlog/pkg/registry"
	"github.com/3leaps/batchlog/pkg/scheduler"
	"github.com/3leaps/batchlog/pkg/segarchive"
)

// node is the set of components one command runs against: the event log,
// the scheduler and whatever sinks the configuration enables.
type node struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *eventlog.Store
	sched   *scheduler.Scheduler
	archive *sql.DB
	shipper *segarchive.Shipper
	nc      *nats.Conn
	metrics *observability.Metrics
}

type nodeOptions struct {
	// writable opens the event log for appending. Otherwise the scheduler
	// only replays.
	writable bool
	// sinks enables NATS notification and segment upload.
	sinks   bool
	metrics *observability.Metrics
}

func openNode(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts nodeOptions) (_ *node, err error) {
	n := &node{cfg: cfg, log: logger, metrics: opts.metrics}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	if n.archive, err = openArchive(ctx, cfg.Archive); err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Cannot open job archive", err)
	}

	var notifiers []scheduler.Notifier
	if opts.sinks && cfg.NATS.Enabled {
		kinds, err := notify.ParseKinds(cfg.NATS.Effects)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid nats.effects", err)
		}
		if n.nc, err = notify.Connect(cfg.NATS.URL, config.AppName); err != nil {
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Cannot connect to NATS", err)
		}
		notifiers = append(notifiers, notify.New(n.nc, notify.Options{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Kinds:         kinds,
			Logger:        logger.Named("notify"),
		}))
	}

	if opts.sinks && opts.writable && cfg.Segments.Enabled {
		n.shipper, err = segarchive.New(ctx, segmentsConfig(cfg.Segments), logger.Named("segarchive"))
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid segment upload configuration", err)
		}
		n.shipper.Start(ctx)
	}

	sopts := schedulerOptions(cfg, logger)
	sopts.Notifiers = notifiers
	if n.archive != nil {
		sopts.Archive = jobarchive.NewArchiver(n.archive)
	}
	if n.metrics != nil {
		sopts.Metrics = n.metrics
	}

	if opts.writable {
		n.store, err = eventlog.Open(cfg.Log.Dir, eventlog.Options{
			MaxSegmentBytes: cfg.Log.MaxSegmentBytes,
			Sync:            cfg.Log.Sync,
			SwitchRecord:    n.switchRecord,
			OnRotate:        n.segmentClosed,
			Logger:          logger.Named("eventlog"),
		})
		if err != nil {
			return nil, exitError(foundry.ExitFileWriteError, "Cannot open event log", err)
		}
		sopts.Log = n.store
	}

	if n.sched, err = scheduler.New(sopts); err != nil {
		return nil, err
	}
	return n, nil
}

// switchRecord opens every new segment. Before the scheduler exists there
// is no job id to carry.
func (n *node) switchRecord() *event.Record {
	if n.sched == nil {
		return nil
	}
	return n.sched.SwitchRecord()
}

func (n *node) segmentClosed(path string) {
	if n.metrics != nil {
		n.metrics.LogRotated()
	}
	if n.shipper == nil {
		return
	}
	if err := n.shipper.Enqueue(path); err != nil {
		n.log.Warn("segment not queued for upload", zap.String("segment", path), zap.Error(err))
	}
}

func (n *node) close() {
	if n.store != nil {
		if err := n.store.Close(); err != nil && !errors.Is(err, eventlog.ErrClosed) {
			n.log.Warn("closing event log", zap.Error(err))
		}
	}
	if n.shipper != nil {
		if err := n.shipper.Close(); err != nil {
			n.log.Warn("closing segment uploader", zap.Error(err))
		}
		shipped, failed := n.shipper.Stats()
		n.log.Info("segment uploader stopped", zap.Int("shipped", shipped), zap.Int("failed", failed))
	}
	if n.nc != nil {
		if err := n.nc.Drain(); err != nil {
			n.nc.Close()
		}
	}
	if n.archive != nil {
		_ = n.archive.Close()
	}
}

// openArchive opens and migrates the job archive. It returns nil when no
// archive is configured.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (*sql.DB, error) {
	if cfg.Path == "" && cfg.URL == "" {
		return nil, nil
	}
	db, err := jobarchive.Open(ctx, jobarchive.Config{Path: cfg.Path, URL: cfg.URL, AuthToken: cfg.AuthToken})
	if err != nil {
		return nil, err
	}
	if err := jobarchive.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate job archive: %w", err)
	}
	return db, nil
}

func schedulerOptions(cfg *config.Config, logger *zap.Logger) scheduler.Options {
	policy := jobstate.Policy{
		RequeueDone: cfg.Scheduler.RequeueDone,
		RequeueExit: cfg.Scheduler.RequeueExit,
	}
	return scheduler.Options{
		Registry: registry.New(registry.Options{
			ShardCount:   cfg.Scheduler.ShardCount,
			OrphanWindow: cfg.Scheduler.OrphanWindow,
			Policy:       policy,
			Logger:       logger.Named("registry"),
		}),
		Policy:       &policy,
		LogDir:       cfg.Log.Dir,
		NotifyReplay: cfg.Replay.Notify,
		MaxJobID:     cfg.Scheduler.MaxJobID,
		CleanPeriod:  cfg.Scheduler.CleanPeriod,
		RateLimit:    cfg.Replay.RateLimit,
		Logger:       logger.Named("scheduler"),
	}
}

func segmentsConfig(c config.SegmentsConfig) segarchive.Config {
	return segarchive.Config{
		Bucket:         c.Bucket,
		Prefix:         c.Prefix,
		Region:         c.Region,
		Endpoint:       c.Endpoint,
		Profile:        c.Profile,
		ForcePathStyle: c.ForcePathStyle,
		IMDSRegion:     c.IMDSRegion,
		QueueSize:      c.QueueSize,
	}
}
