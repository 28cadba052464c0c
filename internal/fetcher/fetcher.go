package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateSource retrieves the latest exchange rates for a set of currency codes.
type RateSource interface {
	FetchRates(ctx context.Context, codes []string) (map[string]decimal.Decimal, error)
}
