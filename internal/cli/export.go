package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cryptospread/internal/app"
)

var (
	exportVenue     string
	exportSince     string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export PAIR",
	Short: "Export recorded spread history as CSV and/or PNG chart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Pair:      args[0],
			Venue:     exportVenue,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportSince != "" {
			since, err := time.Parse(time.RFC3339, exportSince)
			if err != nil {
				return fmt.Errorf("invalid --since value: %w", err)
			}
			opts.Since = &since
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportVenue, "venue", "", "Restrict to one venue (pancake, jupiter, matcha)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points per venue (defaults to config)")
}
