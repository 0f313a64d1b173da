package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/output"
)

var appendContinue bool

var appendCmd = &cobra.Command{
	Use:   "append [file]",
	Short: "Append encoded event records to the event log",
	Long: `Read encoded event records (one per line) and append them to the event log
through the scheduler, so every record is checked against current job state
before it is written. JOB_NEW records with job id 0 receive the next free id.

The log must not be owned by a running node. Refused with --readonly.

Examples:
  batchlog append events.txt
  cat requeued.events | batchlog append --continue`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAppend,
}

func init() {
	rootCmd.AddCommand(appendCmd)
	appendCmd.Flags().BoolVar(&appendContinue, "continue", false, "Keep going after a rejected record")
}

func runAppend(cmd *cobra.Command, args []string) error {
	if readOnly {
		return exitError(foundry.ExitInvalidArgument, "append is disabled in readonly mode", errors.New("readonly"))
	}
	ctx := cmd.Context()

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot open input", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.CLILogger
	n, err := openNode(ctx, cfg, logger, nodeOptions{writable: true, sinks: true})
	if err != nil {
		return err
	}
	defer n.close()

	if _, err := replayLog(ctx, n, 0); err != nil {
		return exitError(foundry.ExitFileReadError, "Replay of event log failed", err)
	}

	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), cfg.Log.Dir)
	defer func() { _ = w.Close() }()

	br := bufio.NewReader(in)
	var appended, rejected, line int
	for {
		raw, readErr := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			line++
			rec, err := event.Decode(trimmed)
			if err == nil {
				err = assignJobID(n, rec)
			}
			if err == nil {
				_, _, err = n.sched.Submit(ctx, rec)
			}
			if err != nil {
				rejected++
				logger.Warn("record not appended", zap.Int("line", line), zap.Error(err))
				errRec := errorRecord(rec, err)
				errRec.Line = line
				if werr := w.WriteError(ctx, errRec); werr != nil {
					return exitError(foundry.ExitFileWriteError, "Cannot write output", werr)
				}
				if !appendContinue {
					return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Record at line %d rejected", line), err)
				}
			} else {
				appended++
				if werr := w.WriteEvent(ctx, rec); werr != nil {
					return exitError(foundry.ExitFileWriteError, "Cannot write output", werr)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read input", readErr)
		}
	}

	logger.Info("append finished",
		zap.Int("appended", appended),
		zap.Int("rejected", rejected),
		zap.Uint64("position", uint64(n.sched.Position())))
	return nil
}

func assignJobID(n *node, rec *event.Record) error {
	p, ok := rec.Payload.(*event.JobNewLog)
	if !ok || p.JobID != 0 {
		return nil
	}
	id, err := n.sched.NextJobID()
	if err != nil {
		return err
	}
	p.JobID = id
	return nil
}
