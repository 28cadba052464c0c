package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"ratewatcher/internal/market"
)

// Show prints a currency's most recent ticks.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Code == "" {
		return errors.New("--code must be provided")
	}

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
	if len(ticks) > opts.Limit {
		ticks = ticks[len(ticks)-opts.Limit:]
	}
	if len(ticks) == 0 {
		fmt.Fprintln(os.Stdout, "no ticks found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tCode\tRate")

	for _, tick := range ticks {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			tick.Timestamp.UTC().Format(time.RFC3339),
			tick.Code,
			tick.Rate.StringFixed(4),
		)
	}

	return writer.Flush()
}
