package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ratewatcher/internal/market"
)

// RateStore is the append-only tick series per currency with windowed reads.
type RateStore interface {
	SeedCurrencies(ctx context.Context, currencies []market.Currency) error
	Currencies(ctx context.Context) ([]market.Currency, error)
	CurrencyExists(ctx context.Context, code string) (bool, error)
	// AppendTick stores a tick with a server-assigned timestamp. Appends for
	// one code are serialized so timestamps stay monotonically non-decreasing.
	AppendTick(ctx context.Context, code string, rate decimal.Decimal) (market.RateTick, error)
	CurrentRate(ctx context.Context, code string) (market.RateTick, error)
	// Window returns ticks selected by the policy in ascending timestamp
	// order. A registered currency with no matching ticks yields an empty
	// slice, not an error.
	Window(ctx context.Context, code string, policy market.WindowPolicy) ([]market.RateTick, error)
}

// PredictionStore keeps at most one live prediction per (code, user) pair.
type PredictionStore interface {
	CastPrediction(ctx context.Context, code, userID string, direction market.PredictionDirection) (market.Prediction, error)
	// ClearPrediction is a no-op when no prediction exists.
	ClearPrediction(ctx context.Context, code, userID string) error
	// PredictionFor returns nil when the user has no live prediction.
	PredictionFor(ctx context.Context, code, userID string) (*market.Prediction, error)
	Tally(ctx context.Context, code string) (market.Tally, error)
}

// AlertStore manages alert records and their lifecycle transitions.
type AlertStore interface {
	CreateAlert(ctx context.Context, code, userID string, direction market.AlertDirection, targetRate decimal.Decimal) (market.Alert, error)
	// DeleteAlert soft-deletes an active or triggered alert owned by userID.
	// A missing id and an id owned by someone else are indistinguishable.
	DeleteAlert(ctx context.Context, code, userID, alertID string) error
	ActiveAlerts(ctx context.Context, code string) ([]market.Alert, error)
	// TriggerAlert performs the atomic active->triggered transition and
	// reports whether this call won it. A false return with nil error means
	// the alert was no longer active.
	TriggerAlert(ctx context.Context, alertID string, at time.Time) (bool, error)
}

// Store aggregates every persistence concern of the service.
type Store interface {
	RateStore
	PredictionStore
	AlertStore
}
