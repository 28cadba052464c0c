package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is immutable reference data, registered once at startup.
type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// RateTick is one timestamped observation of a currency's exchange rate.
type RateTick struct {
	Code      string          `json:"code"`
	Timestamp time.Time       `json:"timestamp"`
	Rate      decimal.Decimal `json:"rate"`
}

// PredictionDirection is the crowd-sourced guess about where a rate goes next.
type PredictionDirection string

const (
	PredictIncrease PredictionDirection = "increase"
	PredictDecrease PredictionDirection = "decrease"
)

// Prediction is a user's single live vote for a currency. Casting again
// replaces it; there is never more than one per (code, user) pair.
type Prediction struct {
	Code      string              `json:"code"`
	UserID    string              `json:"userId"`
	Direction PredictionDirection `json:"direction"`
	CastAt    time.Time           `json:"castAt"`
}

// Tally aggregates live predictions for a currency.
type Tally struct {
	IncreaseCount int `json:"increaseCount"`
	DecreaseCount int `json:"decreaseCount"`
}

// AlertDirection selects which side of the target rate fires an alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// AlertState is the alert lifecycle. Triggered and deleted are both terminal
// with respect to evaluation.
type AlertState string

const (
	AlertActive    AlertState = "active"
	AlertTriggered AlertState = "triggered"
	AlertDeleted   AlertState = "deleted"
)

// Alert is a user-owned threshold rule that fires at most once.
type Alert struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	UserID      string          `json:"userId"`
	Direction   AlertDirection  `json:"direction"`
	TargetRate  decimal.Decimal `json:"targetRate"`
	State       AlertState      `json:"state"`
	CreatedAt   time.Time       `json:"createdAt"`
	TriggeredAt *time.Time      `json:"triggeredAt,omitempty"`
}

// Qualifies reports whether a tick at the given rate crosses the alert's
// threshold. Comparison is inclusive on both sides.
func (a Alert) Qualifies(rate decimal.Decimal) bool {
	switch a.Direction {
	case AlertAbove:
		return rate.GreaterThanOrEqual(a.TargetRate)
	case AlertBelow:
		return rate.LessThanOrEqual(a.TargetRate)
	}
	return false
}

// WindowPolicy names a rule selecting a sub-range of a tick series.
type WindowPolicy string

const (
	WindowIntraday  WindowPolicy = "intraday"
	WindowLastWeek  WindowPolicy = "last-week"
	WindowLastMonth WindowPolicy = "last-month"
	WindowLast100   WindowPolicy = "last-100"
	WindowFull      WindowPolicy = "full"
)

// Last100Size is the suffix length served by WindowLast100.
const Last100Size = 100

// CutoffFrom resolves the policy to an inclusive lower timestamp bound.
// Suffix policies (last-100, full) report ok=false: they are not bounded by
// time.
func (p WindowPolicy) CutoffFrom(now time.Time) (time.Time, bool) {
	now = now.UTC()
	switch p {
	case WindowIntraday:
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	case WindowLastWeek:
		return now.AddDate(0, 0, -7), true
	case WindowLastMonth:
		return now.AddDate(0, 0, -30), true
	}
	return time.Time{}, false
}
