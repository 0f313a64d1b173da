package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/3leaps/batchlog/pkg/event"
)

var versionExtended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "batchlog %s\n", versionInfo.Version)
		if !versionExtended {
			return
		}
		_, _ = fmt.Fprintf(out, "commit:        %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(out, "built:         %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(out, "go:            %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		_, _ = fmt.Fprintf(out, "event format:  %s\n", event.CurrentVersion)
		v := crucible.GetVersion()
		_, _ = fmt.Fprintf(out, "gofulmen:      %s\n", v.Gofulmen)
		_, _ = fmt.Fprintf(out, "crucible:      %s\n", v.Crucible)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionExtended, "extended", false, "Include build and dependency versions")
}
