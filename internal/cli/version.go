package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"cryptospread/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cryptospread %s\n", version.Version)
		fmt.Fprintf(out, "  commit: %s\n", version.Commit)
		fmt.Fprintf(out, "  built:  %s\n", version.BuildDate)
		fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
	},
}
