package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/batchlog/internal/observability"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/output"
	"github.com/3leaps/batchlog/pkg/scheduler"
)

var (
	jobsOutput string
	jobsLimit  int
	jobsFilter jobFilterFlags
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs rebuilt from the event log",
	Long: `Replay the event log and list the live jobs that match the filters.

Examples:
  batchlog jobs
  batchlog jobs --status RUN --host 'node0*'
  batchlog jobs --user alice --submitted-after 2026-03-01 --output jsonl`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsOutput, "output", "table", "Output format (table|jsonl)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 0, "Max jobs to list (0=all)")
	jobsFilter.register(jobsCmd)
}

func runJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if jobsOutput != "table" && jobsOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid output format", fmt.Errorf("unknown format %q", jobsOutput))
	}
	filter, err := jobsFilter.build()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job filter", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	n, err := openNode(ctx, cfg, observability.CLILogger, nodeOptions{})
	if err != nil {
		return err
	}
	defer n.close()

	if _, err := n.sched.Replay(ctx, 0); err != nil {
		return exitError(foundry.ExitFileReadError, "Replay of event log failed", err)
	}

	var m scheduler.JobMatcher
	if filter != nil {
		m = filter
	}
	jobs := n.sched.Jobs(m, jobsLimit)

	if jobsOutput == "jsonl" {
		w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), cfg.Log.Dir)
		defer func() { _ = w.Close() }()
		for _, job := range jobs {
			if err := w.WriteJob(ctx, job); err != nil {
				return exitError(foundry.ExitFileWriteError, "Cannot write output", err)
			}
		}
		return nil
	}
	return printJobsTable(cmd.OutOrStdout(), jobs)
}

func printJobsTable(out io.Writer, jobs []*jobstate.JobRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOBID\tUSER\tSTAT\tQUEUE\tFROM_HOST\tEXEC_HOST\tJOB_NAME\tSUBMIT_TIME")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, dash(j.User), j.Status, dash(j.Queue), dash(j.FromHost),
			dash(strings.Join(j.ExecHosts, ",")), dash(j.JobName), formatOptionalTime(j.SubmitTime))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
