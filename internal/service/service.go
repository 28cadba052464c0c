package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatcher/internal/alerting"
	"ratewatcher/internal/market"
	"ratewatcher/internal/storage"
	"ratewatcher/internal/users"
)

// CurrencyQuote is a list entry: reference data plus the latest tick, which
// is absent when the series is empty.
type CurrencyQuote struct {
	market.Currency
	CurrentRate *market.RateTick `json:"currentRate"`
}

// CurrencyDetail is the single-currency view. CallerPrediction is only set
// for identified callers.
type CurrencyDetail struct {
	market.Currency
	CurrentRate      *market.RateTick            `json:"currentRate"`
	Tally            market.Tally                `json:"tally"`
	CallerPrediction *market.PredictionDirection `json:"callerPrediction,omitempty"`
}

// Service composes the stores, the evaluator, and the user directory into
// the operations the route layer calls.
type Service struct {
	store     storage.Store
	directory users.Directory
	evaluator *alerting.Evaluator
	logger    zerolog.Logger
}

// New constructs the currency service.
func New(store storage.Store, directory users.Directory, evaluator *alerting.Evaluator, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		evaluator: evaluator,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// AppendTick durably appends a rate observation and synchronously evaluates
// the currency's active alerts against it. Evaluation faults are logged and
// do not undo the append.
func (s *Service) AppendTick(ctx context.Context, code string, rate decimal.Decimal) (market.RateTick, error) {
	tick, err := s.store.AppendTick(ctx, code, rate)
	if err != nil {
		return market.RateTick{}, err
	}

	if s.evaluator != nil {
		if err := s.evaluator.HandleTick(ctx, tick); err != nil {
			s.logger.Error().Err(err).Str("code", code).Msg("alert evaluation failed for tick")
		}
	}

	return tick, nil
}

// GetAll lists every currency with its current rate; empty series report a
// null rate instead of failing the call.
func (s *Service) GetAll(ctx context.Context) ([]CurrencyQuote, error) {
	currencies, err := s.store.Currencies(ctx)
	if err != nil {
		return nil, err
	}

	quotes := make([]CurrencyQuote, 0, len(currencies))
	for _, c := range currencies {
		quote := CurrencyQuote{Currency: c}
		tick, err := s.store.CurrentRate(ctx, c.Code)
		switch {
		case err == nil:
			quote.CurrentRate = &tick
		case errors.Is(err, market.ErrNoData):
			// leave the rate absent
		default:
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// Get returns the detail view for one currency. callerUserID may be empty
// for anonymous callers; no caller-specific data is attached then.
func (s *Service) Get(ctx context.Context, code, callerUserID string) (CurrencyDetail, error) {
	currency, err := s.currency(ctx, code)
	if err != nil {
		return CurrencyDetail{}, err
	}

	detail := CurrencyDetail{Currency: currency}

	tick, err := s.store.CurrentRate(ctx, code)
	switch {
	case err == nil:
		detail.CurrentRate = &tick
	case errors.Is(err, market.ErrNoData):
	default:
		return CurrencyDetail{}, err
	}

	tally, err := s.store.Tally(ctx, code)
	if err != nil {
		return CurrencyDetail{}, err
	}
	detail.Tally = tally

	if callerUserID != "" {
		prediction, err := s.store.PredictionFor(ctx, code, callerUserID)
		if err != nil {
			return CurrencyDetail{}, err
		}
		if prediction != nil {
			detail.CallerPrediction = &prediction.Direction
		}
	}

	return detail, nil
}

// Predict upserts the caller's directional vote for the currency.
func (s *Service) Predict(ctx context.Context, code, userID string, direction market.PredictionDirection) error {
	_, err := s.store.CastPrediction(ctx, code, userID, direction)
	return err
}

// ClearPrediction removes the caller's vote; absent votes are a no-op.
func (s *Service) ClearPrediction(ctx context.Context, code, userID string) error {
	return s.store.ClearPrediction(ctx, code, userID)
}

// Window returns the currency's ticks for the named policy, ascending.
func (s *Service) Window(ctx context.Context, code string, policy market.WindowPolicy) ([]market.RateTick, error) {
	return s.store.Window(ctx, code, policy)
}

// Tally returns the live prediction counts for the currency.
func (s *Service) Tally(ctx context.Context, code string) (market.Tally, error) {
	return s.store.Tally(ctx, code)
}

// SaveAlert validates and registers a new threshold alert for the user.
func (s *Service) SaveAlert(ctx context.Context, code, userID string, direction market.AlertDirection, targetRate decimal.Decimal) (market.Alert, error) {
	if _, err := s.currency(ctx, code); err != nil {
		return market.Alert{}, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return market.Alert{}, err
	}
	if targetRate.Sign() <= 0 {
		return market.Alert{}, market.ErrInvalidAlert
	}
	return s.store.CreateAlert(ctx, code, userID, direction, targetRate)
}

// DeleteAlert soft-deletes one of the user's alerts.
func (s *Service) DeleteAlert(ctx context.Context, code, userID, alertID string) error {
	if _, err := s.currency(ctx, code); err != nil {
		return err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteAlert(ctx, code, userID, alertID)
}

func (s *Service) currency(ctx context.Context, code string) (market.Currency, error) {
	currencies, err := s.store.Currencies(ctx)
	if err != nil {
		return market.Currency{}, err
	}
	for _, c := range currencies {
		if c.Code == code {
			return c, nil
		}
	}
	return market.Currency{}, market.ErrInvalidCurrencyCode
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if s.directory == nil {
		return nil
	}
	exists, err := s.directory.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return market.ErrUserNotFound
	}
	return nil
}
