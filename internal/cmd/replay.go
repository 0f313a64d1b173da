package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/output"
	"github.com/3leaps/batchlog/pkg/scheduler"
)

var (
	replayFrom   uint64
	replayJobs   bool
	replayNotify bool
	replayLimit  int
	replayFilter jobFilterFlags
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the event log and report what it contains",
	Long: `Replay the event log read-only into memory and write a JSONL summary.

Records already applied are skipped, so replaying twice is harmless. When
the job archive is configured, jobs cleaned during the replay are archived
and the pass is recorded as a replay session.

Examples:
  batchlog replay
  batchlog replay --jobs --status RUN,PEND --queue 'night*'
  batchlog replay --from 120000 --log-dir /mnt/shared/events
  batchlog replay --notify   # republish effects to NATS`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Uint64Var(&replayFrom, "from", 0, "Start after this log position")
	replayCmd.Flags().BoolVar(&replayJobs, "jobs", false, "Also emit a record per live job")
	replayCmd.Flags().BoolVar(&replayNotify, "notify", false, "Publish effects of replayed events to NATS")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "Max jobs to emit with --jobs (0=all)")
	replayFilter.register(replayCmd)
}

func runReplay(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if replayNotify {
		cfg.Replay.Notify = true
	}

	filter, err := replayFilter.build()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job filter", err)
	}

	logger := observability.CLILogger
	n, err := openNode(ctx, cfg, logger, nodeOptions{sinks: replayNotify})
	if err != nil {
		return err
	}
	defer n.close()

	if n.archive != nil {
		if prev, err := jobarchive.LatestSession(ctx, n.archive, cfg.Log.Dir); err == nil && prev != nil {
			logger.Debug("previous replay",
				zap.String("session", prev.ID),
				zap.Uint64("to", prev.To),
				zap.String("status", string(prev.Status)))
		}
	}

	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), cfg.Log.Dir)
	defer func() { _ = w.Close() }()

	stats, replayErr := replayLog(ctx, n, eventlog.Position(replayFrom))
	if replayErr != nil && errors.Is(replayErr, context.Canceled) {
		return exitError(foundry.ExitSignalInt, "Replay interrupted", replayErr)
	}

	if replayJobs && replayErr == nil {
		var m scheduler.JobMatcher
		if filter != nil {
			m = filter
		}
		for _, job := range n.sched.Jobs(m, replayLimit) {
			if err := w.WriteJob(ctx, job); err != nil {
				return exitError(foundry.ExitFileWriteError, "Cannot write output", err)
			}
		}
	}

	sum := summaryRecord(stats, n.sched.Registry().Len())
	if replayErr != nil {
		sum.Error = replayErr.Error()
	}
	if err := w.WriteSummary(ctx, sum); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write output", err)
	}
	if replayErr != nil {
		return exitError(foundry.ExitFileReadError, "Replay of event log failed", replayErr)
	}
	return nil
}

func summaryRecord(st scheduler.ReplayStats, jobs int) *output.SummaryRecord {
	return &output.SummaryRecord{
		From:          uint64(st.From),
		To:            uint64(st.To),
		Records:       st.Records,
		Applied:       st.Applied,
		Stale:         st.Stale,
		Orphaned:      st.Orphaned,
		Drained:       st.Drained,
		Expired:       st.Expired,
		Rejected:      st.Rejected,
		Ignored:       st.Ignored,
		Malformed:     st.Malformed,
		Jobs:          jobs,
		Duration:      st.Duration,
		DurationHuman: st.Duration.Round(time.Millisecond).String(),
	}
}
