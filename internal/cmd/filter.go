package cmd

import (
	"github.com/spf13/cobra"

	"github.com/3leaps/batchlog/pkg/match"
)

// jobFilterFlags are the job selection flags shared by replay and jobs.
type jobFilterFlags struct {
	queue, user, host, group, status []string

	name                            string
	submittedAfter, submittedBefore string
	endedAfter, endedBefore         string
	memMin, memMax                  string
}

func (f *jobFilterFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVar(&f.queue, "queue", nil, "Queue glob (repeatable or comma separated)")
	fl.StringSliceVar(&f.user, "user", nil, "User glob")
	fl.StringSliceVar(&f.host, "host", nil, "Execution host glob")
	fl.StringSliceVar(&f.group, "group", nil, "Job group glob")
	fl.StringSliceVar(&f.status, "status", nil, "Job status (PEND, RUN, DONE, EXIT, ...)")
	fl.StringVar(&f.name, "name", "", "Job name regular expression")
	fl.StringVar(&f.submittedAfter, "submitted-after", "", "Submitted after date (ISO 8601)")
	fl.StringVar(&f.submittedBefore, "submitted-before", "", "Submitted before date (ISO 8601)")
	fl.StringVar(&f.endedAfter, "ended-after", "", "Ended after date (ISO 8601)")
	fl.StringVar(&f.endedBefore, "ended-before", "", "Ended before date (ISO 8601)")
	fl.StringVar(&f.memMin, "mem-min", "", "Minimum peak memory (e.g. 512MiB)")
	fl.StringVar(&f.memMax, "mem-max", "", "Maximum peak memory")
}

func (f *jobFilterFlags) config() *match.FilterConfig {
	cfg := &match.FilterConfig{
		Queue:     f.queue,
		User:      f.user,
		Host:      f.host,
		Group:     f.group,
		Status:    f.status,
		NameRegex: f.name,
	}
	if f.submittedAfter != "" || f.submittedBefore != "" {
		cfg.Submitted = &match.DateFilterConfig{After: f.submittedAfter, Before: f.submittedBefore}
	}
	if f.endedAfter != "" || f.endedBefore != "" {
		cfg.Ended = &match.DateFilterConfig{After: f.endedAfter, Before: f.endedBefore}
	}
	if f.memMin != "" || f.memMax != "" {
		cfg.Mem = &match.SizeFilterConfig{Min: f.memMin, Max: f.memMax}
	}
	return cfg
}

// build returns nil when no flag selects anything.
func (f *jobFilterFlags) build() (*match.CompositeFilter, error) {
	return match.NewFilterFromConfig(f.config())
}
