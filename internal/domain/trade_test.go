package domain

import (
	"math"
	"testing"
	"time"
)

func TestShortOptionProfit(t *testing.T) {
	cases := []struct {
		name      string
		entry     float64
		exit      float64
		contracts int
		want      float64
		wantPct   float64
	}{
		{"half premium captured", 0.50, 0.25, 5, 125, 0.50},
		{"full premium captured", 0.50, 0, 2, 100, 1.00},
		{"premium doubled against", 0.30, 0.60, 5, -150, -1.00},
		{"flat", 0.40, 0.40, 1, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ShortOptionProfit(c.entry, c.exit, c.contracts); math.Abs(got-c.want) > 1e-9 {
				t.Errorf("profit = %v, want %v", got, c.want)
			}
			if got := ShortOptionProfitPct(c.entry, c.exit); math.Abs(got-c.wantPct) > 1e-9 {
				t.Errorf("profit pct = %v, want %v", got, c.wantPct)
			}
		})
	}

	if got := ShortOptionProfitPct(0, 0.10); got != 0 {
		t.Errorf("zero entry premium pct = %v, want 0", got)
	}
}

func TestTrade_CloseSetsExitFieldsAsUnit(t *testing.T) {
	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	tr := &Trade{
		TradeID:      "t1",
		Instrument:   Instrument{Symbol: "XYZ", Strike: 95, Kind: OptionKindPut},
		Contracts:    5,
		EntryTime:    entry,
		EntryPremium: 0.50,
		Status:       TradeStatusMonitoring,
	}

	if tr.IsClosed() {
		t.Fatal("open trade reports closed")
	}
	if !tr.ExitFieldsConsistent() {
		t.Fatal("all-nil exit fields reported inconsistent")
	}

	exitTime := entry.AddDate(0, 0, 3)
	tr.Close(exitTime, 0.25, ExitReasonProfitTarget, MarketSnapshot{Regime: RegimeLowVol})

	if !tr.IsClosed() || !tr.ExitFieldsConsistent() {
		t.Fatal("closed trade fields inconsistent")
	}
	if tr.Status != TradeStatusClosed {
		t.Errorf("status = %q", tr.Status)
	}
	if math.Abs(tr.Profit-125) > 1e-9 {
		t.Errorf("profit = %v, want 125", tr.Profit)
	}
	if math.Abs(tr.ProfitPct-0.50) > 1e-9 {
		t.Errorf("profit pct = %v, want 0.5", tr.ProfitPct)
	}
	if tr.DaysHeld != 3 {
		t.Errorf("days held = %d", tr.DaysHeld)
	}
	if !tr.Won() {
		t.Error("winning trade not marked won")
	}
	if tr.ExitMarket == nil || tr.ExitMarket.Regime != RegimeLowVol {
		t.Error("exit market snapshot not recorded")
	}
}

func TestTrade_ExitFieldsConsistent(t *testing.T) {
	exitTime := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	premium := 0.25

	mixed := &Trade{TradeID: "t1", ExitTime: &exitTime}
	if mixed.ExitFieldsConsistent() {
		t.Error("exit time without premium reported consistent")
	}

	mixed = &Trade{TradeID: "t2", ExitPremium: &premium, ExitReason: ExitReasonManual}
	if mixed.ExitFieldsConsistent() {
		t.Error("exit premium without time reported consistent")
	}
}

func TestTrade_Notional(t *testing.T) {
	tr := &Trade{Instrument: Instrument{Strike: 95}, Contracts: 5}
	if got := tr.Notional(); got != 47500 {
		t.Errorf("notional = %v, want 47500", got)
	}
}

func TestInferRegime(t *testing.T) {
	for vix, want := range map[float64]string{10: RegimeLowVol, 15: RegimeLowVol, 20: RegimeNeutral, 25: RegimeHighVol, 40: RegimeHighVol} {
		if got := InferRegime(vix); got != want {
			t.Errorf("InferRegime(%v) = %q, want %q", vix, got, want)
		}
	}
}
