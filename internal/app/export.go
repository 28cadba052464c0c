package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ratewatcher/internal/market"
)

// Export renders one currency's tick history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Code == "" {
		return errors.New("--code must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(ctx, store)
	if err != nil {
		return err
	}

	ticks, err := svc.Window(ctx, opts.Code, market.WindowFull)
	if err != nil {
		return err
	}

	ticks = clipTicks(ticks, opts.From, opts.To)
	if len(ticks) == 0 {
		a.Logger.Info().Str("code", opts.Code).Msg("no ticks found for export window")
		return nil
	}

	downsampled := downsampleTicks(ticks, opts.MaxPoints)
	a.Logger.Info().Int("total", len(ticks)).Int("exported", len(downsampled)).Msg("exporting ticks")

	if opts.CSVPath != "" {
		if err := writeTicksCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTicksPNG(opts.PNGPath, opts.Code, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func clipTicks(ticks []market.RateTick, from, to *time.Time) []market.RateTick {
	out := ticks[:0:0]
	for _, tick := range ticks {
		if from != nil && tick.Timestamp.Before(from.UTC()) {
			continue
		}
		if to != nil && !tick.Timestamp.Before(to.UTC()) {
			continue
		}
		out = append(out, tick)
	}
	return out
}

func downsampleTicks(ticks []market.RateTick, max int) []market.RateTick {
	if max <= 0 || len(ticks) <= max {
		return ticks
	}

	result := make([]market.RateTick, 0, max)
	step := float64(len(ticks)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(ticks) {
			idx = len(ticks) - 1
		}
		result = append(result, ticks[idx])
	}
	return result
}

func writeTicksCSV(path string, ticks []market.RateTick) error {
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

	if err := writer.Write([]string{"ts", "code", "rate"}); err != nil {
		return err
	}

	for _, tick := range ticks {
		record := []string{
			tick.Timestamp.UTC().Format(time.RFC3339),
			tick.Code,
			tick.Rate.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTicksPNG(path, code string, ticks []market.RateTick) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(ticks))
	rates := make([]float64, len(ticks))
	for i, tick := range ticks {
		x[i] = tick.Timestamp
		rates[i] = tick.Rate.InexactFloat64()
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate (" + code + ")",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    code,
				XValues: x,
				YValues: rates,
			},
		},
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
