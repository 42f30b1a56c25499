package cli

import (
	"github.com/spf13/cobra"

	"cryptospread/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show PAIR",
	Short: "Print recent recorded spreads for a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Pair: args[0], Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Samples to show per venue")
}
