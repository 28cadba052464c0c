package alerting

import (
	"context"

	"github.com/rs/zerolog"

	"ratewatcher/internal/market"
	"ratewatcher/internal/storage"
)

// Evaluator scans the active alert set whenever a tick lands and fires the
// alerts the tick qualifies. Each alert fires at most once: the store's
// conditional transition decides the winner when ticks race.
type Evaluator struct {
	alerts   storage.AlertStore
	notifier Notifier
	logger   zerolog.Logger
}

// NewEvaluator wires the alert store and the notification sink. A nil
// notifier disables delivery but not the state transitions.
func NewEvaluator(alerts storage.AlertStore, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		alerts:   alerts,
		notifier: notifier,
		logger:   logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// HandleTick evaluates one appended tick against the currency's active
// alerts. Notification failures are logged and never propagate: a fired
// alert stays fired.
func (e *Evaluator) HandleTick(ctx context.Context, tick market.RateTick) error {
	alerts, err := e.alerts.ActiveAlerts(ctx, tick.Code)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if !alert.Qualifies(tick.Rate) {
			continue
		}

		fired, err := e.alerts.TriggerAlert(ctx, alert.ID, tick.Timestamp)
		if err != nil {
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to transition alert")
			continue
		}
		if !fired {
			// lost the race to a concurrent tick or a delete
			continue
		}

		e.logger.Info().
			Str("code", tick.Code).
			Str("alert_id", alert.ID).
			Str("user_id", alert.UserID).
			Str("rate", tick.Rate.String()).
			Str("target", alert.TargetRate.String()).
			Msg("alert triggered")

		if e.notifier == nil {
			continue
		}
		note := Notification{
			UserID:      alert.UserID,
			Code:        tick.Code,
			Alert:       alert,
			Rate:        tick,
			TriggeredAt: tick.Timestamp,
		}
		if err := e.notifier.Notify(ctx, note); err != nil {
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to dispatch alert notification")
		}
	}

	return nil
}
