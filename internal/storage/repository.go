package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ratewatcher/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertCurrencySQL = `INSERT INTO currencies (code, name)
    VALUES ($1, $2)
    ON CONFLICT (code) DO UPDATE
    SET name = EXCLUDED.name;`

	listCurrenciesSQL = `SELECT code, name FROM currencies ORDER BY code;`

	currencyExistsSQL = `SELECT EXISTS (SELECT 1 FROM currencies WHERE code = $1);`

	advisoryLockSQL = `SELECT pg_advisory_xact_lock($1);`

	appendTickSQL = `INSERT INTO rate_ticks (code, ts, rate)
    VALUES (
        $1,
        GREATEST(now(), COALESCE((SELECT max(ts) FROM rate_ticks WHERE code = $1), now())),
        $2
    )
    RETURNING ts;`

	currentRateSQL = `SELECT ts, rate
    FROM rate_ticks
    WHERE code = $1
    ORDER BY ts DESC
    LIMIT 1;`

	ticksSinceSQL = `SELECT ts, rate
    FROM rate_ticks
    WHERE code = $1
      AND ts >= $2
    ORDER BY ts;`

	ticksFullSQL = `SELECT ts, rate
    FROM rate_ticks
    WHERE code = $1
    ORDER BY ts;`

	ticksSuffixSQL = `SELECT ts, rate
    FROM (
        SELECT ts, rate
        FROM rate_ticks
        WHERE code = $1
        ORDER BY ts DESC
        LIMIT $2
    ) tail
    ORDER BY ts;`

	castPredictionSQL = `INSERT INTO predictions (code, user_id, direction, cast_at)
    VALUES ($1, $2, $3, now())
    ON CONFLICT (code, user_id) DO UPDATE
    SET direction = EXCLUDED.direction,
        cast_at   = EXCLUDED.cast_at
    RETURNING cast_at;`

	clearPredictionSQL = `DELETE FROM predictions WHERE code = $1 AND user_id = $2;`

	predictionForSQL = `SELECT direction, cast_at
    FROM predictions
    WHERE code = $1 AND user_id = $2;`

	tallySQL = `SELECT
        COUNT(*) FILTER (WHERE direction = 'increase'),
        COUNT(*) FILTER (WHERE direction = 'decrease')
    FROM predictions
    WHERE code = $1;`

	insertAlertSQL = `INSERT INTO alerts (id, code, user_id, direction, target_rate, state, created_at)
    VALUES ($1, $2, $3, $4, $5, 'active', now())
    RETURNING created_at;`

	softDeleteAlertSQL = `UPDATE alerts
    SET state = 'deleted'
    WHERE id = $1
      AND code = $2
      AND user_id = $3
      AND state IN ('active', 'triggered');`

	activeAlertsSQL = `SELECT id, user_id, direction, target_rate, created_at
    FROM alerts
    WHERE code = $1
      AND state = 'active';`

	triggerAlertSQL = `UPDATE alerts
    SET state = 'triggered', triggered_at = $2
    WHERE id = $1
      AND state = 'active';`
)

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// tickLockKey derives the advisory lock key serializing appends per code.
func tickLockKey(code string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("rate_ticks:" + code))
	return int64(h.Sum64())
}

func (s *PGStore) requireCurrency(ctx context.Context, code string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	var exists bool
	if err := pool.QueryRow(ctx, currencyExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("check currency: %w", err)
	}
	if !exists {
		return market.ErrInvalidCurrencyCode
	}
	return nil
}

// SeedCurrencies registers reference currencies, updating display names in place.
func (s *PGStore) SeedCurrencies(ctx context.Context, currencies []market.Currency) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, c := range currencies {
		if _, execErr := pool.Exec(ctx, upsertCurrencySQL, c.Code, c.Name); execErr != nil {
			return fmt.Errorf("seed currency %s: %w", c.Code, execErr)
		}
	}
	return nil
}

// Currencies lists registered currencies ordered by code.
func (s *PGStore) Currencies(ctx context.Context) ([]market.Currency, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCurrenciesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list currencies: %w", queryErr)
	}
	defer rows.Close()

	currencies := make([]market.Currency, 0)
	for rows.Next() {
		var c market.Currency
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return currencies, nil
}

// CurrencyExists reports whether the code is registered.
func (s *PGStore) CurrencyExists(ctx context.Context, code string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := pool.QueryRow(ctx, currencyExistsSQL, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check currency: %w", err)
	}
	return exists, nil
}

// AppendTick stores a tick under a per-code advisory lock so concurrent
// appends for the same currency cannot interleave timestamp assignment.
func (s *PGStore) AppendTick(ctx context.Context, code string, rate decimal.Decimal) (market.RateTick, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return market.RateTick{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return market.RateTick{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return market.RateTick{}, fmt.Errorf("begin append tick: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, advisoryLockSQL, tickLockKey(code)); err != nil {
		return market.RateTick{}, fmt.Errorf("acquire tick lock: %w", err)
	}

	var ts time.Time
	if err := tx.QueryRow(ctx, appendTickSQL, code, rate.String()).Scan(&ts); err != nil {
		return market.RateTick{}, fmt.Errorf("append tick: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return market.RateTick{}, fmt.Errorf("commit append tick: %w", err)
	}

	return market.RateTick{Code: code, Timestamp: ts, Rate: rate}, nil
}

// CurrentRate returns the tick with the maximum timestamp for the code.
func (s *PGStore) CurrentRate(ctx context.Context, code string) (market.RateTick, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return market.RateTick{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return market.RateTick{}, err
	}

	tick, scanErr := scanTick(pool.QueryRow(ctx, currentRateSQL, code), code)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return market.RateTick{}, market.ErrNoData
		}
		return market.RateTick{}, scanErr
	}
	return tick, nil
}

// Window lists ticks selected by the policy in ascending timestamp order.
func (s *PGStore) Window(ctx context.Context, code string, policy market.WindowPolicy) ([]market.RateTick, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return nil, err
	}

	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	var queryErr error
	if cutoff, ok := policy.CutoffFrom(time.Now()); ok {
		rows, queryErr = pool.Query(ctx, ticksSinceSQL, code, cutoff)
	} else if policy == market.WindowLast100 {
		rows, queryErr = pool.Query(ctx, ticksSuffixSQL, code, market.Last100Size)
	} else {
		rows, queryErr = pool.Query(ctx, ticksFullSQL, code)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("query window %s: %w", policy, queryErr)
	}
	defer rows.Close()

	ticks := make([]market.RateTick, 0)
	for rows.Next() {
		tick, scanErr := scanTick(rows, code)
		if scanErr != nil {
			return nil, scanErr
		}
		ticks = append(ticks, tick)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ticks, nil
}

// CastPrediction upserts the user's single prediction for the code.
func (s *PGStore) CastPrediction(ctx context.Context, code, userID string, direction market.PredictionDirection) (market.Prediction, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return market.Prediction{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return market.Prediction{}, err
	}

	var castAt time.Time
	if err := pool.QueryRow(ctx, castPredictionSQL, code, userID, string(direction)).Scan(&castAt); err != nil {
		return market.Prediction{}, fmt.Errorf("cast prediction: %w", err)
	}
	return market.Prediction{Code: code, UserID: userID, Direction: direction, CastAt: castAt}, nil
}

// ClearPrediction removes the user's prediction; absent predictions are a no-op.
func (s *PGStore) ClearPrediction(ctx context.Context, code, userID string) error {
	if err := s.requireCurrency(ctx, code); err != nil {
		return err
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearPredictionSQL, code, userID); execErr != nil {
		return fmt.Errorf("clear prediction: %w", execErr)
	}
	return nil
}

// PredictionFor returns the user's live prediction or nil.
func (s *PGStore) PredictionFor(ctx context.Context, code, userID string) (*market.Prediction, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return nil, err
	}

	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var direction string
	var castAt time.Time
	scanErr := pool.QueryRow(ctx, predictionForSQL, code, userID).Scan(&direction, &castAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load prediction: %w", scanErr)
	}
	return &market.Prediction{Code: code, UserID: userID, Direction: market.PredictionDirection(direction), CastAt: castAt}, nil
}

// Tally counts live predictions partitioned by direction.
func (s *PGStore) Tally(ctx context.Context, code string) (market.Tally, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return market.Tally{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return market.Tally{}, err
	}

	var tally market.Tally
	if err := pool.QueryRow(ctx, tallySQL, code).Scan(&tally.IncreaseCount, &tally.DecreaseCount); err != nil {
		return market.Tally{}, fmt.Errorf("tally predictions: %w", err)
	}
	return tally, nil
}

// CreateAlert persists a new active alert with a generated id.
func (s *PGStore) CreateAlert(ctx context.Context, code, userID string, direction market.AlertDirection, targetRate decimal.Decimal) (market.Alert, error) {
	if err := s.requireCurrency(ctx, code); err != nil {
		return market.Alert{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return market.Alert{}, err
	}

	alert := market.Alert{
		ID:         uuid.NewString(),
		Code:       code,
		UserID:     userID,
		Direction:  direction,
		TargetRate: targetRate,
		State:      market.AlertActive,
	}
	if err := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID,
		alert.Code,
		alert.UserID,
		string(alert.Direction),
		alert.TargetRate.String(),
	).Scan(&alert.CreatedAt); err != nil {
		return market.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// DeleteAlert soft-deletes an alert the user owns. Matching is over current
// state at call time, so deleting an already-triggered alert still succeeds.
func (s *PGStore) DeleteAlert(ctx context.Context, code, userID, alertID string) error {
	if err := s.requireCurrency(ctx, code); err != nil {
		return err
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, softDeleteAlertSQL, alertID, code, userID)
	if execErr != nil {
		return fmt.Errorf("delete alert: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return market.ErrAlertNotFound
	}
	return nil
}

// ActiveAlerts lists the active alerts for a code, in no particular order.
func (s *PGStore) ActiveAlerts(ctx context.Context, code string) ([]market.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, activeAlertsSQL, code)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]market.Alert, 0)
	for rows.Next() {
		var a market.Alert
		var direction, targetStr string
		if err := rows.Scan(&a.ID, &a.UserID, &direction, &targetStr, &a.CreatedAt); err != nil {
			return nil, err
		}
		target, convErr := decimal.NewFromString(targetStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse target rate: %w", convErr)
		}
		a.Code = code
		a.Direction = market.AlertDirection(direction)
		a.TargetRate = target
		a.State = market.AlertActive
		alerts = append(alerts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// TriggerAlert runs the conditional active->triggered update; the row count
// tells whether this caller won the transition.
func (s *PGStore) TriggerAlert(ctx context.Context, alertID string, at time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, triggerAlertSQL, alertID, at)
	if execErr != nil {
		return false, fmt.Errorf("trigger alert: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func scanTick(row pgx.Row, code string) (market.RateTick, error) {
	var ts time.Time
	var rateStr string
	if err := row.Scan(&ts, &rateStr); err != nil {
		return market.RateTick{}, err
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return market.RateTick{}, fmt.Errorf("parse rate: %w", err)
	}
	return market.RateTick{Code: code, Timestamp: ts, Rate: rate}, nil
}

var _ Store = (*PGStore)(nil)
