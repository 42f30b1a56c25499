package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"cryptospread/internal/pairs"
	"cryptospread/internal/spread"
)

// ExportOptions select what to export and where.
type ExportOptions struct {
	Pair      string
	Venue     string
	CSVPath   string
	PNGPath   string
	Since     *time.Time
	MaxPoints int
}

// Export renders a pair's recorded spread history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	_ = ctx

	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	comps, err := a.buildComponents()
	if err != nil {
		return err
	}

	pairName := strings.ToUpper(opts.Pair)
	if _, ok := comps.registry.Get(pairName); !ok {
		return fmt.Errorf("pair %s not found", pairName)
	}

	since := float64(0)
	if opts.Since != nil {
		since = float64(opts.Since.Unix())
	}

	venues := comps.history.Venues(pairName)
	if opts.Venue != "" {
		venues = []pairs.Venue{pairs.Venue(opts.Venue)}
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

	series := make([]venueSeries, 0, len(venues))
	total := 0
	for _, venue := range venues {
		samples := comps.history.Query(pairName, venue, since)
		samples = downsampleSamples(samples, opts.MaxPoints)
		if len(samples) == 0 {
			continue
		}
		total += len(samples)
		series = append(series, venueSeries{venue: venue, samples: samples})
	}
	if total == 0 {
		a.Logger.Info().Str("pair", pairName).Msg("no history found for export window")
		return nil
	}
	a.Logger.Info().Str("pair", pairName).Int("points", total).Msg("exporting spread history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, series); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		var chartSeries []chart.Series
		for _, vs := range series {
			chartSeries = append(chartSeries, historyTimeSeries(vs.venue, vs.samples)...)
		}
		if err := writeHistoryPNG(opts.PNGPath, pairName, chartSeries); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []spread.Sample, max int) []spread.Sample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]spread.Sample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

// venueSeries pairs a venue with its exported samples.
type venueSeries struct {
	venue   pairs.Venue
	samples []spread.Sample
}

func writeHistoryCSV(path string, series []venueSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"time_utc", "venue", "direct_pct", "reverse_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, vs := range series {
		for _, sample := range vs.samples {
			record := []string{
				time.Unix(int64(sample.Timestamp), 0).UTC().Format(time.RFC3339),
				string(vs.venue),
				csvPercent(sample.Direct),
				csvPercent(sample.Reverse),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	return writer.Error()
}

func csvPercent(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}

func historyTimeSeries(venue pairs.Venue, samples []spread.Sample) []chart.Series {
	var directX, reverseX []time.Time
	var directY, reverseY []float64
	for _, sample := range samples {
		ts := time.Unix(int64(sample.Timestamp), 0).UTC()
		if sample.Direct != nil {
			directX = append(directX, ts)
			directY = append(directY, *sample.Direct)
		}
		if sample.Reverse != nil {
			reverseX = append(reverseX, ts)
			reverseY = append(reverseY, *sample.Reverse)
		}
	}

	var out []chart.Series
	if len(directX) > 1 {
		out = append(out, chart.TimeSeries{
			Name:    fmt.Sprintf("%s direct", venue),
			XValues: directX,
			YValues: directY,
		})
	}
	if len(reverseX) > 1 {
		out = append(out, chart.TimeSeries{
			Name:    fmt.Sprintf("%s reverse", venue),
			XValues: reverseX,
			YValues: reverseY,
		})
	}
	return out
}

func writeHistoryPNG(path, pairName string, series []chart.Series) error {
	if len(series) == 0 {
		return errors.New("not enough data points for a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f%%")
	}
	graph := chart.Chart{
		Title:  pairName,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spread (%)",
			ValueFormatter: pctFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
