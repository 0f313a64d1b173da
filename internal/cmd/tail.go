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
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/output"
	"github.com/3leaps/batchlog/pkg/registry"
)

var (
	tailFrom   uint64
	tailPoll   time.Duration
	tailTypes  []string
	tailErrors bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the event log and print records as JSONL",
	Long: `Replay the event log and keep following it, printing each record after
the given position as it is applied. Segment switches are followed
transparently.

Examples:
  batchlog tail
  batchlog tail --from 5000 --type JOB_START,JOB_FINISH
  batchlog tail --errors   # also print stale, orphan and rejected records`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().Uint64Var(&tailFrom, "from", 0, "Print records after this position (earlier records are applied silently)")
	tailCmd.Flags().DurationVar(&tailPoll, "poll", 0, "Poll interval at end of log (default from config)")
	tailCmd.Flags().StringSliceVar(&tailTypes, "type", nil, "Only print these event types")
	tailCmd.Flags().BoolVar(&tailErrors, "errors", false, "Print records that were not applied as error records")
}

func runTail(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if tailPoll <= 0 {
		tailPoll = cfg.Replay.Poll
	}

	types, err := parseTypes(tailTypes)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid event type", err)
	}

	logger := observability.CLILogger
	n, err := openNode(ctx, cfg, logger, nodeOptions{})
	if err != nil {
		return err
	}
	defer n.close()

	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), cfg.Log.Dir)
	defer func() { _ = w.Close() }()

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	each := func(rec *event.Record, _ registry.Result, applyErr error) {
		if writeErr != nil || rec.Seq <= tailFrom {
			return
		}
		if len(types) > 0 && !types[rec.Type] {
			return
		}
		// Cluster records are not job events but are still printed.
		if applyErr == nil || errors.Is(applyErr, registry.ErrNotJobEvent) {
			writeErr = w.WriteEvent(fctx, rec)
		} else if tailErrors {
			writeErr = w.WriteError(fctx, errorRecord(rec, applyErr))
		}
		if writeErr != nil {
			cancel()
		}
	}

	// Follow replays from the start so state is complete before the first
	// printed record.
	err = n.sched.Follow(fctx, 0, tailPoll, each)
	if writeErr != nil && !errors.Is(writeErr, context.Canceled) {
		return exitError(foundry.ExitFileWriteError, "Cannot write output", writeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return exitError(foundry.ExitFileReadError, "Following event log failed", err)
	}
	logger.Debug("tail stopped", zap.Uint64("position", uint64(n.sched.Position())))
	return nil
}

func parseTypes(names []string) (map[event.Type]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make(map[event.Type]bool, len(names))
	for _, name := range names {
		t, ok := event.ParseType(name)
		if !ok {
			return nil, errors.New("unknown event type " + name)
		}
		out[t] = true
	}
	return out, nil
}

func errorRecord(rec *event.Record, err error) *output.ErrorRecord {
	out := &output.ErrorRecord{Message: err.Error()}
	if rec != nil {
		out.Seq = rec.Seq
		if id, ok := rec.JobID(); ok {
			out.Job = id.String()
		}
	}
	switch {
	case errors.Is(err, registry.ErrStaleEvent):
		out.Code = output.ErrCodeStale
	case errors.Is(err, registry.ErrOrphanEvent):
		out.Code = output.ErrCodeOrphan
	case event.IsCodecError(err):
		out.Code = output.ErrCodeMalformed
	default:
		out.Code = output.ErrCodeRejected
	}
	return out
}
