package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"cryptospread/internal/spread"
	"cryptospread/internal/storage"
)

// ShowOptions select which history slice to print.
type ShowOptions struct {
	Pair  string
	Limit int
}

// Show prints the most recent recorded spreads for a pair from the local
// history file. When the archive database is configured it also prints the
// latest archived alerts, and falls back to archived samples when no local
// history exists yet.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	comps, err := a.buildComponents()
	if err != nil {
		return err
	}

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	pairName := strings.ToUpper(opts.Pair)
	if _, ok := comps.registry.Get(pairName); !ok {
		return fmt.Errorf("pair %s not found", pairName)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("archive unavailable, showing local history only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	venues := comps.history.Venues(pairName)
	if len(venues) == 0 {
		if store == nil {
			fmt.Fprintln(os.Stdout, "no history recorded for", pairName)
			return nil
		}
		if err := a.showArchivedSamples(ctx, store, pairName, opts.Limit); err != nil {
			return err
		}
	} else {
		sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tVenue\tDirect\tReverse")

		for _, venue := range venues {
			samples := comps.history.Query(pairName, venue, 0)
			if len(samples) > opts.Limit {
				samples = samples[len(samples)-opts.Limit:]
			}
			for _, sample := range samples {
				ts := time.Unix(int64(sample.Timestamp), 0).UTC()
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					ts.Format(time.RFC3339),
					venue,
					spread.FormatPercent(sample.Direct),
					spread.FormatPercent(sample.Reverse),
				)
			}
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if store != nil {
		if err := a.showArchivedAlerts(ctx, store, opts.Limit); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showArchivedSamples(ctx context.Context, store *storage.Store, pairName string, limit int) error {
	rows, err := store.ListRecentSpreadRows(ctx, pairName, limit)
	if err != nil {
		return fmt.Errorf("list archived samples: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no history recorded for", pairName)
		return nil
	}

	fmt.Fprintln(os.Stdout, "Archived samples:")
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tVenue\tDirect\tReverse")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			row.TakenAt.UTC().Format(time.RFC3339),
			row.Venue,
			spread.FormatPercent(row.Direct),
			spread.FormatPercent(row.Reverse),
		)
	}
	return writer.Flush()
}

func (a *App) showArchivedAlerts(ctx context.Context, store *storage.Store, limit int) error {
	rows, err := store.ListRecentAlertRows(ctx, limit)
	if err != nil {
		return fmt.Errorf("list archived alerts: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "Recent alerts:")
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tVenue\tDirection\tValue\tThreshold")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%.2f%%\t%.2f%%\n",
			row.TakenAt.UTC().Format(time.RFC3339),
			row.Pair,
			row.Venue,
			row.Direction,
			row.Value,
			row.Threshold,
		)
	}
	return writer.Flush()
}
