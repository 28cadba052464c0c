// Package memory provides the in-process Store used when no database is
// configured, and the substrate the core tests run against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ratewatcher/internal/market"
	"ratewatcher/internal/storage"
)

// series holds one currency's tick log. The mutex serializes appends so
// timestamp assignment cannot interleave; ticks stay sorted by timestamp.
type series struct {
	mu    sync.RWMutex
	ticks []market.RateTick
}

// votes holds one currency's live predictions keyed by user id.
type votes struct {
	mu     sync.Mutex
	byUser map[string]market.Prediction
}

// alertSet holds one currency's alerts; the mutex guards every state
// transition, which makes active->triggered a compare-and-set.
type alertSet struct {
	mu   sync.Mutex
	byID map[string]*market.Alert
}

// Store is an in-memory implementation of storage.Store. Entries for
// different currencies proceed independently.
type Store struct {
	mu         sync.RWMutex
	currencies map[string]market.Currency
	order      []string
	series     map[string]*series
	votes      map[string]*votes
	alerts     map[string]*alertSet

	now func() time.Time
}

// NewStore builds an empty store using the wall clock.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock builds a store with an injected clock; tests pin it.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		currencies: make(map[string]market.Currency),
		series:     make(map[string]*series),
		votes:      make(map[string]*votes),
		alerts:     make(map[string]*alertSet),
		now:        now,
	}
}

// SeedCurrencies registers reference currencies, updating names in place.
func (s *Store) SeedCurrencies(_ context.Context, currencies []market.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range currencies {
		if _, known := s.currencies[c.Code]; !known {
			s.order = append(s.order, c.Code)
			s.series[c.Code] = &series{}
			s.votes[c.Code] = &votes{byUser: make(map[string]market.Prediction)}
			s.alerts[c.Code] = &alertSet{byID: make(map[string]*market.Alert)}
		}
		s.currencies[c.Code] = c
	}
	sort.Strings(s.order)
	return nil
}

// Currencies lists registered currencies ordered by code.
func (s *Store) Currencies(_ context.Context) ([]market.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]market.Currency, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.currencies[code])
	}
	return out, nil
}

// CurrencyExists reports whether the code is registered.
func (s *Store) CurrencyExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, known := s.currencies[code]
	return known, nil
}

func (s *Store) seriesFor(code string) (*series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, known := s.series[code]
	if !known {
		return nil, market.ErrInvalidCurrencyCode
	}
	return ser, nil
}

func (s *Store) votesFor(code string) (*votes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, known := s.votes[code]
	if !known {
		return nil, market.ErrInvalidCurrencyCode
	}
	return v, nil
}

func (s *Store) alertsFor(code string) (*alertSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, known := s.alerts[code]
	if !known {
		return nil, market.ErrInvalidCurrencyCode
	}
	return a, nil
}

// AppendTick appends a tick with a server-assigned timestamp. If the clock
// reads behind the newest stored tick the timestamp is clamped forward, so
// the series stays monotonically non-decreasing.
func (s *Store) AppendTick(_ context.Context, code string, rate decimal.Decimal) (market.RateTick, error) {
	ser, err := s.seriesFor(code)
	if err != nil {
		return market.RateTick{}, err
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	ts := s.now().UTC()
	if n := len(ser.ticks); n > 0 && ts.Before(ser.ticks[n-1].Timestamp) {
		ts = ser.ticks[n-1].Timestamp
	}

	tick := market.RateTick{Code: code, Timestamp: ts, Rate: rate}
	ser.ticks = append(ser.ticks, tick)
	return tick, nil
}

// CurrentRate returns the newest tick for the code.
func (s *Store) CurrentRate(_ context.Context, code string) (market.RateTick, error) {
	ser, err := s.seriesFor(code)
	if err != nil {
		return market.RateTick{}, err
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	if len(ser.ticks) == 0 {
		return market.RateTick{}, market.ErrNoData
	}
	return ser.ticks[len(ser.ticks)-1], nil
}

// Window selects ticks per the policy in ascending timestamp order. Time
// bounded policies binary-search the sorted series; last-100 is a suffix.
func (s *Store) Window(_ context.Context, code string, policy market.WindowPolicy) ([]market.RateTick, error) {
	ser, err := s.seriesFor(code)
	if err != nil {
		return nil, err
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	ticks := ser.ticks
	if cutoff, ok := policy.CutoffFrom(s.now()); ok {
		first := sort.Search(len(ticks), func(i int) bool {
			return !ticks[i].Timestamp.Before(cutoff)
		})
		ticks = ticks[first:]
	} else if policy == market.WindowLast100 && len(ticks) > market.Last100Size {
		ticks = ticks[len(ticks)-market.Last100Size:]
	}

	return append([]market.RateTick(nil), ticks...), nil
}

// CastPrediction upserts the user's single prediction for the code.
func (s *Store) CastPrediction(_ context.Context, code, userID string, direction market.PredictionDirection) (market.Prediction, error) {
	v, err := s.votesFor(code)
	if err != nil {
		return market.Prediction{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p := market.Prediction{Code: code, UserID: userID, Direction: direction, CastAt: s.now().UTC()}
	v.byUser[userID] = p
	return p, nil
}

// ClearPrediction removes the user's prediction; absent is a no-op.
func (s *Store) ClearPrediction(_ context.Context, code, userID string) error {
	v, err := s.votesFor(code)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.byUser, userID)
	return nil
}

// PredictionFor returns the user's live prediction or nil.
func (s *Store) PredictionFor(_ context.Context, code, userID string) (*market.Prediction, error) {
	v, err := s.votesFor(code)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p, cast := v.byUser[userID]
	if !cast {
		return nil, nil
	}
	return &p, nil
}

// Tally counts live predictions partitioned by direction.
func (s *Store) Tally(_ context.Context, code string) (market.Tally, error) {
	v, err := s.votesFor(code)
	if err != nil {
		return market.Tally{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var tally market.Tally
	for _, p := range v.byUser {
		switch p.Direction {
		case market.PredictIncrease:
			tally.IncreaseCount++
		case market.PredictDecrease:
			tally.DecreaseCount++
		}
	}
	return tally, nil
}

// CreateAlert records a new active alert with a generated id.
func (s *Store) CreateAlert(_ context.Context, code, userID string, direction market.AlertDirection, targetRate decimal.Decimal) (market.Alert, error) {
	set, err := s.alertsFor(code)
	if err != nil {
		return market.Alert{}, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	alert := market.Alert{
		ID:         uuid.NewString(),
		Code:       code,
		UserID:     userID,
		Direction:  direction,
		TargetRate: targetRate,
		State:      market.AlertActive,
		CreatedAt:  s.now().UTC(),
	}
	set.byID[alert.ID] = &alert
	return alert, nil
}

// DeleteAlert soft-deletes an active or triggered alert owned by userID.
// Missing ids and foreign ownership answer identically.
func (s *Store) DeleteAlert(_ context.Context, code, userID, alertID string) error {
	set, err := s.alertsFor(code)
	if err != nil {
		return err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	alert, known := set.byID[alertID]
	if !known || alert.UserID != userID || alert.State == market.AlertDeleted {
		return market.ErrAlertNotFound
	}
	alert.State = market.AlertDeleted
	return nil
}

// ActiveAlerts snapshots the active alerts for a code, unordered.
func (s *Store) ActiveAlerts(_ context.Context, code string) ([]market.Alert, error) {
	set, err := s.alertsFor(code)
	if err != nil {
		return nil, err
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	alerts := make([]market.Alert, 0, len(set.byID))
	for _, alert := range set.byID {
		if alert.State == market.AlertActive {
			alerts = append(alerts, *alert)
		}
	}
	return alerts, nil
}

// TriggerAlert performs the active->triggered compare-and-set. Exactly one
// concurrent caller observes true for a given alert.
func (s *Store) TriggerAlert(_ context.Context, alertID string, at time.Time) (bool, error) {
	s.mu.RLock()
	var alert *market.Alert
	var set *alertSet
	for _, candidate := range s.alerts {
		candidate.mu.Lock()
		if a, known := candidate.byID[alertID]; known {
			alert = a
			set = candidate
		}
		candidate.mu.Unlock()
		if alert != nil {
			break
		}
	}
	s.mu.RUnlock()

	if alert == nil {
		return false, nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	if alert.State != market.AlertActive {
		return false, nil
	}
	at = at.UTC()
	alert.State = market.AlertTriggered
	alert.TriggeredAt = &at
	return true, nil
}

var _ storage.Store = (*Store)(nil)
