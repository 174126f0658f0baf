package pattern

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage/memory"
)

type detectorFixture struct {
	trades   *memory.TradeStore
	patterns *memory.PatternStore
	events   *memory.LearningEventStore
	detector *Detector
}

func newDetectorFixture() *detectorFixture {
	trades := memory.NewTradeStore()
	patterns := memory.NewPatternStore()
	events := memory.NewLearningEventStore()
	d := NewDetector(trades, patterns, events, stats.NewValidator(stats.DefaultConfig()), log.New(io.Discard, "", 0))
	return &detectorFixture{trades: trades, patterns: patterns, events: events, detector: d}
}

// seedWindow inserts n closed trades per regime into one entry window, with
// per-regime mean ROI and a small alternating spread. All other dimensions
// collapse to a single bucket so only the regime partition can separate.
func (f *detectorFixture) seedWindow(t *testing.T, label string, entry time.Time, n int, roiByRegime map[string]float64) {
	t.Helper()
	ctx := context.Background()

	i := 0
	for regime, mean := range roiByRegime {
		for k := 0; k < n; k++ {
			pct := mean + 0.05
			if k%2 == 1 {
				pct = mean - 0.05
			}
			tr := &domain.Trade{
				TradeID: fmt.Sprintf("%s-%s-%d", label, regime, i),
				Instrument: domain.Instrument{
					Symbol:     "XYZ",
					Sector:     "TECH",
					Strike:     95,
					Expiration: entry.AddDate(0, 0, 7),
					Kind:       domain.OptionKindPut,
				},
				Contracts:       2,
				EntryTime:       entry,
				EntryPremium:    0.50,
				OTMPct:          0.05,
				DTE:             7,
				ConfigVersionID: 1,
				EntryMarket:     domain.MarketSnapshot{Regime: regime},
				Status:          domain.TradeStatusMonitoring,
			}
			// Exit premium chosen so the realized ROI equals pct.
			tr.Close(entry.AddDate(0, 0, 2), 0.50*(1-pct), domain.ExitReasonProfitTarget, domain.MarketSnapshot{Regime: regime})
			if err := f.trades.Insert(ctx, tr); err != nil {
				t.Fatalf("seed trade: %v", err)
			}
			i++
		}
	}
}

func (f *detectorFixture) scanAt(t *testing.T, at, start, end time.Time) []*domain.Pattern {
	t.Helper()
	f.detector.now = func() time.Time { return at }
	inserted, err := f.detector.Scan(context.Background(), start, end)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return inserted
}

func TestDetector_InsufficientData(t *testing.T) {
	f := newDetectorFixture()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	f.seedWindow(t, "w0", base, 10, map[string]float64{domain.RegimeLowVol: 0.5})

	_, err := f.detector.Scan(context.Background(), base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))
	if !errors.Is(err, domain.ErrDataInsufficient) {
		t.Fatalf("expected ErrDataInsufficient, got %v", err)
	}
}

func TestDetector_DetectsRegimeSplit(t *testing.T) {
	f := newDetectorFixture()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC) // a Monday

	// Low-vol entries return +50%, high-vol entries lose 10%; every other
	// dimension holds a single bucket whose mean equals the baseline.
	f.seedWindow(t, "w1", base, 30, map[string]float64{
		domain.RegimeLowVol:  0.50,
		domain.RegimeHighVol: -0.10,
	})

	inserted := f.scanAt(t, base.AddDate(0, 0, 6), base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))
	if len(inserted) != 2 {
		t.Fatalf("inserted %d patterns, want 2 (both regime buckets)", len(inserted))
	}

	byBucket := make(map[string]*domain.Pattern)
	for _, p := range inserted {
		if p.Dimension != domain.DimensionRegime {
			t.Errorf("unexpected dimension %s/%s", p.Dimension, p.Bucket)
		}
		byBucket[p.Bucket] = p
	}

	low := byBucket[domain.RegimeLowVol]
	if low == nil {
		t.Fatal("no pattern for LOW_VOL")
	}
	if low.SampleSize != 30 {
		t.Errorf("sample size = %d", low.SampleSize)
	}
	if low.WinRate != 1.0 {
		t.Errorf("win rate = %v", low.WinRate)
	}
	if math.Abs(low.AvgROI-0.50) > 1e-9 {
		t.Errorf("avg ROI = %v", low.AvgROI)
	}
	if low.EffectSize <= 0 {
		t.Errorf("effect size = %v", low.EffectSize)
	}
	if low.Status != domain.PatternStatusActive {
		t.Errorf("status = %q", low.Status)
	}
	if low.Confidence <= 0.95 {
		t.Errorf("confidence = %v", low.Confidence)
	}

	high := byBucket[domain.RegimeHighVol]
	if high == nil {
		t.Fatal("no pattern for HIGH_VOL")
	}
	if high.EffectSize >= 0 {
		t.Errorf("underperforming bucket effect = %v, want negative", high.EffectSize)
	}

	detected, err := f.events.GetByType(ctx, domain.LearningEventPatternDetected)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(detected) != 2 {
		t.Errorf("detection events = %d, want 2", len(detected))
	}

	active, err := f.patterns.GetActive(ctx)
	if err != nil {
		t.Fatalf("read active: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active patterns = %d, want 2", len(active))
	}
}

func TestDetector_InvalidatesOnFreshData(t *testing.T) {
	f := newDetectorFixture()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	f.seedWindow(t, "w1", base, 30, map[string]float64{
		domain.RegimeLowVol:  0.50,
		domain.RegimeHighVol: -0.10,
	})
	f.scanAt(t, base.AddDate(0, 0, 6), base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))

	// In the next window the regimes converge: fresh data no longer supports
	// either pattern.
	next := base.AddDate(0, 0, 10)
	f.seedWindow(t, "w2", next, 30, map[string]float64{
		domain.RegimeLowVol:  0.20,
		domain.RegimeHighVol: 0.20,
	})
	inserted := f.scanAt(t, next.AddDate(0, 0, 6), next.AddDate(0, 0, -1), next.AddDate(0, 0, 5))
	if len(inserted) != 0 {
		t.Fatalf("inserted %d patterns on converged data", len(inserted))
	}

	active, err := f.patterns.GetActive(ctx)
	if err != nil {
		t.Fatalf("read active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active patterns = %d, want 0 after invalidation", len(active))
	}

	invalidated, err := f.events.GetByType(ctx, domain.LearningEventPatternInvalidated)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(invalidated) != 2 {
		t.Errorf("invalidation events = %d, want 2", len(invalidated))
	}
}

func TestDetector_SupersedesOnMaterialChange(t *testing.T) {
	f := newDetectorFixture()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	f.seedWindow(t, "w1", base, 30, map[string]float64{
		domain.RegimeLowVol:  0.50,
		domain.RegimeHighVol: -0.10,
	})
	f.scanAt(t, base.AddDate(0, 0, 6), base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))

	// The low-vol edge strengthens well past the ROI tolerance.
	next := base.AddDate(0, 0, 10)
	f.seedWindow(t, "w2", next, 30, map[string]float64{
		domain.RegimeLowVol:  0.80,
		domain.RegimeHighVol: -0.10,
	})
	f.scanAt(t, next.AddDate(0, 0, 6), next.AddDate(0, 0, -1), next.AddDate(0, 0, 5))

	byDim, err := f.patterns.GetByDimension(ctx, domain.DimensionRegime)
	if err != nil {
		t.Fatalf("read patterns: %v", err)
	}

	var lowStatuses []string
	for _, p := range byDim {
		if p.Bucket == domain.RegimeLowVol {
			lowStatuses = append(lowStatuses, p.Status)
		}
	}
	if len(lowStatuses) != 2 {
		t.Fatalf("LOW_VOL pattern versions = %d, want 2", len(lowStatuses))
	}

	superseded, active := 0, 0
	for _, s := range lowStatuses {
		switch s {
		case domain.PatternStatusSuperseded:
			superseded++
		case domain.PatternStatusActive:
			active++
		}
	}
	if superseded != 1 || active != 1 {
		t.Errorf("LOW_VOL statuses = %v, want one superseded and one active", lowStatuses)
	}
}

func TestBucketing(t *testing.T) {
	if got := otmBucket(0.02); got != "<3%" {
		t.Errorf("otmBucket(0.02) = %q", got)
	}
	if got := otmBucket(0.05); got != "3-7%" {
		t.Errorf("otmBucket(0.05) = %q", got)
	}
	if got := otmBucket(0.12); got != ">=7%" {
		t.Errorf("otmBucket(0.12) = %q", got)
	}

	for dte, want := range map[int]string{2: "0-3", 7: "4-7", 12: "8-14", 30: "15+"} {
		if got := dteBucket(dte); got != want {
			t.Errorf("dteBucket(%d) = %q, want %q", dte, got, want)
		}
	}

	if got := sectorBucket(""); got != "UNKNOWN" {
		t.Errorf("sectorBucket(\"\") = %q", got)
	}
	if got := regimeBucket(""); got != domain.RegimeNeutral {
		t.Errorf("regimeBucket(\"\") = %q", got)
	}
}
