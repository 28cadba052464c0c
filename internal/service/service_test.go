package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatcher/internal/alerting"
	"ratewatcher/internal/market"
	"ratewatcher/internal/storage/memory"
)

// fakeDirectory resolves only the listed user ids.
type fakeDirectory struct {
	known map[string]bool
}

func (d fakeDirectory) Exists(_ context.Context, userID string) (bool, error) {
	return d.known[userID], nil
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Notify(context.Context, alerting.Notification) error {
	n.count++
	return nil
}

func serviceFixture(t *testing.T) (*Service, *memory.Store, *countingNotifier) {
	t.Helper()
	store := memory.NewStore()
	err := store.SeedCurrencies(context.Background(), []market.Currency{
		{Code: "EUR", Name: "Euro"},
		{Code: "GBP", Name: "Pound Sterling"},
	})
	if err != nil {
		t.Fatalf("seed currencies: %v", err)
	}

	notifier := &countingNotifier{}
	evaluator := alerting.NewEvaluator(store, notifier, zerolog.Nop())
	directory := fakeDirectory{known: map[string]bool{"alice": true, "bob": true}}
	return New(store, directory, evaluator, zerolog.Nop()), store, notifier
}

func TestGetAllReportsNullRateForEmptySeries(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.10)); err != nil {
		t.Fatalf("append: %v", err)
	}

	quotes, err := svc.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}

	byCode := map[string]CurrencyQuote{}
	for _, q := range quotes {
		byCode[q.Code] = q
	}
	if byCode["EUR"].CurrentRate == nil || !byCode["EUR"].CurrentRate.Rate.Equal(decimal.NewFromFloat(1.10)) {
		t.Fatalf("EUR quote missing its rate: %+v", byCode["EUR"])
	}
	if byCode["GBP"].CurrentRate != nil {
		t.Fatalf("GBP has no ticks yet, rate should be absent")
	}
}

func TestGetCurrentRateTracksLatestTick(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.10)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.20)); err != nil {
		t.Fatalf("append: %v", err)
	}

	detail, err := svc.Get(ctx, "EUR", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.CurrentRate == nil || !detail.CurrentRate.Rate.Equal(decimal.NewFromFloat(1.20)) {
		t.Fatalf("current rate should be the newest tick, got %+v", detail.CurrentRate)
	}

	ticks, err := svc.Window(ctx, "EUR", market.WindowFull)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(ticks))
	}
	if !ticks[0].Rate.Equal(decimal.NewFromFloat(1.10)) || !ticks[1].Rate.Equal(decimal.NewFromFloat(1.20)) {
		t.Fatalf("window out of order: %s then %s", ticks[0].Rate, ticks[1].Rate)
	}
}

func TestGetUnknownCurrency(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	if _, err := svc.Get(context.Background(), "XYZ", ""); err != market.ErrInvalidCurrencyCode {
		t.Fatalf("expected InvalidCurrencyCode, got %v", err)
	}
}

func TestAlertTriggersOncePerLifetime(t *testing.T) {
	svc, store, notifier := serviceFixture(t)
	ctx := context.Background()

	alert, err := svc.SaveAlert(ctx, "EUR", "alice", market.AlertAbove, decimal.NewFromFloat(1.15))
	if err != nil {
		t.Fatalf("save alert: %v", err)
	}

	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.10)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if notifier.count != 0 {
		t.Fatalf("alert fired below target")
	}

	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.20)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if notifier.count != 1 {
		t.Fatalf("expected one notification, got %d", notifier.count)
	}

	// still qualifying, but the alert already fired
	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.25)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if notifier.count != 1 {
		t.Fatalf("alert re-fired, got %d notifications", notifier.count)
	}

	active, err := store.ActiveAlerts(ctx, "EUR")
	if err != nil {
		t.Fatalf("active alerts: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("alert %s should no longer be active", alert.ID)
	}
}

func TestSaveAlertValidation(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	if _, err := svc.SaveAlert(ctx, "XYZ", "alice", market.AlertAbove, decimal.NewFromFloat(1.15)); err != market.ErrInvalidCurrencyCode {
		t.Fatalf("unknown currency: got %v", err)
	}
	if _, err := svc.SaveAlert(ctx, "EUR", "stranger", market.AlertAbove, decimal.NewFromFloat(1.15)); err != market.ErrUserNotFound {
		t.Fatalf("unknown user: got %v", err)
	}
	if _, err := svc.SaveAlert(ctx, "EUR", "alice", market.AlertAbove, decimal.Zero); err != market.ErrInvalidAlert {
		t.Fatalf("zero target: got %v", err)
	}
	if _, err := svc.SaveAlert(ctx, "EUR", "alice", market.AlertBelow, decimal.NewFromFloat(-0.5)); err != market.ErrInvalidAlert {
		t.Fatalf("negative target: got %v", err)
	}
}

func TestDeleteAlertOwnership(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	alert, err := svc.SaveAlert(ctx, "EUR", "alice", market.AlertAbove, decimal.NewFromFloat(1.15))
	if err != nil {
		t.Fatalf("save alert: %v", err)
	}

	if err := svc.DeleteAlert(ctx, "EUR", "bob", alert.ID); err != market.ErrAlertNotFound {
		t.Fatalf("foreign delete should hide the alert, got %v", err)
	}
	if err := svc.DeleteAlert(ctx, "EUR", "alice", alert.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := svc.DeleteAlert(ctx, "EUR", "alice", alert.ID); err != market.ErrAlertNotFound {
		t.Fatalf("double delete should be AlertNotFound, got %v", err)
	}
}

func TestDeletedAlertNeverFires(t *testing.T) {
	svc, _, notifier := serviceFixture(t)
	ctx := context.Background()

	alert, err := svc.SaveAlert(ctx, "EUR", "alice", market.AlertAbove, decimal.NewFromFloat(1.15))
	if err != nil {
		t.Fatalf("save alert: %v", err)
	}
	if err := svc.DeleteAlert(ctx, "EUR", "alice", alert.ID); err != nil {
		t.Fatalf("delete alert: %v", err)
	}

	if _, err := svc.AppendTick(ctx, "EUR", decimal.NewFromFloat(1.50)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if notifier.count != 0 {
		t.Fatalf("deleted alert fired")
	}
}

func TestPredictionSwitchAndCallerView(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	if err := svc.Predict(ctx, "EUR", "alice", market.PredictIncrease); err != nil {
		t.Fatalf("predict: %v", err)
	}

	tally, err := svc.Tally(ctx, "EUR")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.IncreaseCount != 1 || tally.DecreaseCount != 0 {
		t.Fatalf("unexpected tally %+v", tally)
	}

	// switching direction moves the single vote
	if err := svc.Predict(ctx, "EUR", "alice", market.PredictDecrease); err != nil {
		t.Fatalf("predict: %v", err)
	}
	tally, _ = svc.Tally(ctx, "EUR")
	if tally.IncreaseCount != 0 || tally.DecreaseCount != 1 {
		t.Fatalf("switch miscounted %+v", tally)
	}

	detail, err := svc.Get(ctx, "EUR", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.CallerPrediction == nil || *detail.CallerPrediction != market.PredictDecrease {
		t.Fatalf("caller prediction missing or wrong: %+v", detail.CallerPrediction)
	}

	// anonymous callers see the tally but no personal vote
	detail, err = svc.Get(ctx, "EUR", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.CallerPrediction != nil {
		t.Fatalf("anonymous caller should not see a prediction")
	}
	if detail.Tally.DecreaseCount != 1 {
		t.Fatalf("tally should be public, got %+v", detail.Tally)
	}

	if err := svc.ClearPrediction(ctx, "EUR", "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	tally, _ = svc.Tally(ctx, "EUR")
	if tally.IncreaseCount != 0 || tally.DecreaseCount != 0 {
		t.Fatalf("clear miscounted %+v", tally)
	}
}

func TestPredictionsAreScopedPerCurrency(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	if err := svc.Predict(ctx, "EUR", "alice", market.PredictIncrease); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if err := svc.Predict(ctx, "GBP", "alice", market.PredictDecrease); err != nil {
		t.Fatalf("predict: %v", err)
	}

	eur, _ := svc.Tally(ctx, "EUR")
	gbp, _ := svc.Tally(ctx, "GBP")
	if eur.IncreaseCount != 1 || eur.DecreaseCount != 0 {
		t.Fatalf("EUR tally %+v", eur)
	}
	if gbp.IncreaseCount != 0 || gbp.DecreaseCount != 1 {
		t.Fatalf("GBP tally %+v", gbp)
	}
}
