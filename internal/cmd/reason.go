package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/batchlog/pkg/reason"
)

var reasonSubreasons string

var reasonCmd = &cobra.Command{
	Use:   "reason <pending|suspending|exit|term|bands> [code]",
	Short: "Explain a reason code",
	Long: `Look up pending, suspending, exit and termination reason codes in the
built-in catalog.

Suspending codes are bit masks; every set flag is listed. Codes may be
decimal or 0x-prefixed hex.

Examples:
  batchlog reason pending 1302
  batchlog reason pending 1302 --subreasons 0x5
  batchlog reason suspending 0x41
  batchlog reason exit 0x400
  batchlog reason bands`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReason,
}

func init() {
	rootCmd.AddCommand(reasonCmd)
	reasonCmd.Flags().StringVar(&reasonSubreasons, "subreasons", "", "Subreason mask to resolve against a pending reason")
}

func runReason(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	kind := strings.ToLower(args[0])
	if kind == "bands" {
		return printBands(out)
	}
	if len(args) != 2 {
		return exitError(foundry.ExitInvalidArgument, "Missing reason code", errors.New("usage: reason <kind> <code>"))
	}
	code, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid reason code", err)
	}

	switch reason.Kind(kind) {
	case reason.Pending:
		var mask uint64
		if reasonSubreasons != "" {
			if mask, err = strconv.ParseUint(reasonSubreasons, 0, 32); err != nil {
				return exitError(foundry.ExitInvalidArgument, "Invalid subreason mask", err)
			}
		}
		d, err := reason.Lookup(reason.Pending, int(code))
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Unknown pending reason", err)
		}
		_, _ = fmt.Fprintf(out, "%d %s [%s]\n  %s\n", d.Code, d.Name, d.Band, d.Text)
		subs, unknown := reason.ResolveSubreasons(d, uint32(mask))
		for _, s := range subs {
			_, _ = fmt.Fprintf(out, "  - %s: %s\n", s.Name, s.Text)
		}
		if unknown != 0 {
			_, _ = fmt.Fprintf(out, "  - unresolved bits %#x\n", unknown)
		}
		return nil

	case reason.Suspending:
		flags, unknown := reason.SuspendFlags(int(code))
		if len(flags) == 0 {
			return exitError(foundry.ExitInvalidArgument, "Unknown suspending reason", fmt.Errorf("%w: %#x", reason.ErrUnknownReason, code))
		}
		for _, d := range flags {
			_, _ = fmt.Fprintf(out, "%#x %s\n  %s\n", d.Code, d.Name, d.Text)
		}
		if unknown != 0 {
			_, _ = fmt.Fprintf(out, "unresolved bits %#x\n", unknown)
		}
		return nil

	case "exit":
		e := reason.ExitReason(code)
		if !e.Known() {
			return exitError(foundry.ExitInvalidArgument, "Unknown exit reason", fmt.Errorf("%w: %#x", reason.ErrUnknownReason, code))
		}
		_, _ = fmt.Fprintf(out, "%#x %s\n  %s\n", int(e), e, e.Text())
		return nil

	case "term":
		t, err := reason.LookupTerm(int(code))
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Unknown termination reason", err)
		}
		_, _ = fmt.Fprintf(out, "%d %s\n  %s\n", t.Code, t.Name, t.Text)
		return nil
	}
	return exitError(foundry.ExitInvalidArgument, "Unknown reason kind", fmt.Errorf("%q", kind))
}

func printBands(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BAND\tMIN\tMAX")
	for _, b := range reason.Bands() {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", b.Name, b.Min, b.Max)
	}
	return w.Flush()
}
