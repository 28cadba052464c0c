package app

import (
	"context"

	"github.com/shopspring/decimal"
)

// SimulateTick appends one synthetic tick through the facade, exercising
// the full evaluation path against the stored alert set.
func (a *App) SimulateTick(ctx context.Context, code string, rate decimal.Decimal) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(ctx, store)
	if err != nil {
		return err
	}

	tick, err := svc.AppendTick(ctx, code, rate)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("code", tick.Code).
		Time("ts", tick.Timestamp).
		Str("rate", tick.Rate.String()).
		Msg("synthetic tick appended")
	return nil
}
