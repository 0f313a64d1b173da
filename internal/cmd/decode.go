package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/output"
)

var decodeStrict bool

var decodeCmd = &cobra.Command{
	Use:   "decode [file...]",
	Short: "Decode event log files to JSONL",
	Long: `Decode event records line by line and print them as JSONL. With no file,
or "-", records are read from stdin.

Undecodable lines are reported as error records and decoding continues,
unless --strict is set. Seq is the record's ordinal within its file.

Examples:
  batchlog decode lsb.events.3
  tail -n 100 lsb.events.7 | batchlog decode
  batchlog decode --strict lsb.events`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeStrict, "strict", false, "Stop at the first undecodable line")
}

func runDecode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 0 {
		args = []string{"-"}
	}

	for _, path := range args {
		var (
			r    io.Reader
			name = path
		)
		if path == "-" {
			r, name = cmd.InOrStdin(), "stdin"
		} else {
			f, err := os.Open(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return exitError(foundry.ExitFileNotFound, "Event file not found", err)
				}
				return exitError(foundry.ExitFileReadError, "Cannot open event file", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), name)
		err := decodeStream(ctx, r, w, decodeStrict)
		_ = w.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeStream writes every line of r as an event or error record.
func decodeStream(ctx context.Context, r io.Reader, w output.Writer, strict bool) error {
	br := bufio.NewReader(r)
	var line, seq int
	for {
		raw, readErr := br.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
				seq++
				if err := decodeLine(ctx, w, trimmed, line, seq, strict); err != nil {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read event file", readErr)
		}
	}
}

func decodeLine(ctx context.Context, w output.Writer, raw []byte, line, seq int, strict bool) error {
	rec, err := event.Decode(raw)
	if err != nil {
		if strict || event.Fatal(err) {
			return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Undecodable record at line %d", line), err)
		}
		werr := w.WriteError(ctx, &output.ErrorRecord{
			Code:    output.ErrCodeMalformed,
			Message: err.Error(),
			Seq:     uint64(seq),
			Line:    line,
		})
		if werr != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot write output", werr)
		}
		return nil
	}
	rec.Seq = uint64(seq)
	if err := w.WriteEvent(ctx, rec); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write output", err)
	}
	return nil
}
