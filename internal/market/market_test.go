package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAlertQualifiesBoundaries(t *testing.T) {
	target := decimal.NewFromFloat(1.15)
	above := Alert{Direction: AlertAbove, TargetRate: target}
	below := Alert{Direction: AlertBelow, TargetRate: target}

	cases := []struct {
		rate      float64
		wantAbove bool
		wantBelow bool
	}{
		{1.14, false, true},
		{1.15, true, true}, // inclusive on both sides
		{1.16, true, false},
	}
	for _, tc := range cases {
		rate := decimal.NewFromFloat(tc.rate)
		if got := above.Qualifies(rate); got != tc.wantAbove {
			t.Fatalf("above at %v: got %v, want %v", tc.rate, got, tc.wantAbove)
		}
		if got := below.Qualifies(rate); got != tc.wantBelow {
			t.Fatalf("below at %v: got %v, want %v", tc.rate, got, tc.wantBelow)
		}
	}
}

func TestWindowPolicyCutoffs(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	cutoff, ok := WindowIntraday.CutoffFrom(now)
	if !ok || !cutoff.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("intraday cutoff %v ok=%v", cutoff, ok)
	}

	cutoff, ok = WindowLastWeek.CutoffFrom(now)
	if !ok || !cutoff.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("last-week cutoff %v ok=%v", cutoff, ok)
	}

	cutoff, ok = WindowLastMonth.CutoffFrom(now)
	if !ok || !cutoff.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("last-month cutoff %v ok=%v", cutoff, ok)
	}

	for _, p := range []WindowPolicy{WindowLast100, WindowFull} {
		if _, ok := p.CutoffFrom(now); ok {
			t.Fatalf("%s should not be time bounded", p)
		}
	}
}
