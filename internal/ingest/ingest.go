// Package ingest pulls rates from the upstream source and feeds them into
// the currency service, which drives alert evaluation.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ratewatcher/internal/fetcher"
	"ratewatcher/internal/service"
)

// Ingestor runs one fetch-and-append pass per scheduler bucket.
type Ingestor struct {
	source fetcher.RateSource
	svc    *service.Service
	codes  []string
	logger zerolog.Logger
}

// New constructs the ingestor for the configured currency codes.
func New(source fetcher.RateSource, svc *service.Service, codes []string, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		source: source,
		svc:    svc,
		codes:  codes,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// ProcessBucket fetches the latest rates and appends one tick per currency.
// A failed append for one code does not stop the others.
func (i *Ingestor) ProcessBucket(ctx context.Context, bucket time.Time) error {
	rates, err := i.source.FetchRates(ctx, i.codes)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}

	appended := 0
	for _, code := range i.codes {
		rate, present := rates[code]
		if !present {
			continue
		}
		tick, err := i.svc.AppendTick(ctx, code, rate)
		if err != nil {
			i.logger.Error().Err(err).Str("code", code).Msg("failed to append tick")
			continue
		}
		appended++
		i.logger.Debug().
			Str("code", code).
			Time("ts", tick.Timestamp).
			Str("rate", tick.Rate.String()).
			Msg("tick appended")
	}

	i.logger.Info().Time("bucket", bucket).Int("appended", appended).Msg("ingestion pass complete")
	return nil
}
