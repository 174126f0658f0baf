package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

func memTrade(id string, entry time.Time) *domain.Trade {
	return &domain.Trade{
		TradeID: id,
		Instrument: domain.Instrument{
			Symbol:     "XYZ",
			Sector:     "TECH",
			Strike:     95,
			Expiration: entry.AddDate(0, 0, 7),
			Kind:       domain.OptionKindPut,
		},
		Contracts:       5,
		EntryTime:       entry,
		EntryPremium:    0.50,
		OTMPct:          0.05,
		DTE:             7,
		ConfigVersionID: 1,
		Status:          domain.TradeStatusMonitoring,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	tr := memTrade("t1", entry)
	if err := s.Insert(ctx, tr); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, tr); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("duplicate insert: %v", err)
	}
	if err := s.Insert(ctx, &domain.Trade{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty trade id accepted: %v", err)
	}

	got, err := s.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EntryPremium != 0.50 || got.Instrument.Symbol != "XYZ" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Reads are copies; mutating one must not leak into the store.
	got.EntryPremium = 9.99
	again, _ := s.GetByID(ctx, "t1")
	if again.EntryPremium != 0.50 {
		t.Error("store state mutated through a read copy")
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing trade: %v", err)
	}
}

func TestTradeStore_FinalizeExactlyOnce(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	tr := memTrade("t1", entry)
	if err := s.Insert(ctx, tr); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A trade with open exit fields cannot be finalized.
	if err := s.Finalize(ctx, tr); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("finalize of open trade: %v", err)
	}

	tr.Close(entry.AddDate(0, 0, 3), 0.25, domain.ExitReasonProfitTarget, domain.MarketSnapshot{Regime: domain.RegimeLowVol})
	if err := s.Finalize(ctx, tr); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := s.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TradeStatusClosed || got.Profit != 125 {
		t.Errorf("finalized trade = status %q profit %v", got.Status, got.Profit)
	}

	// Exit fields are written exactly once.
	if err := s.Finalize(ctx, tr); !errors.Is(err, storage.ErrAlreadyFinalized) {
		t.Errorf("second finalize: %v", err)
	}

	missing := memTrade("ghost", entry)
	missing.Close(entry.AddDate(0, 0, 3), 0.25, domain.ExitReasonManual, domain.MarketSnapshot{})
	if err := s.Finalize(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("finalize of missing trade: %v", err)
	}
}

func TestTradeStore_GetClosedWindow(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// Exits on day 1, 2, 3 after entry day i.
	for i := 1; i <= 3; i++ {
		tr := memTrade(fmt.Sprintf("t%d", i), base)
		tr.Close(base.AddDate(0, 0, i), 0.25, domain.ExitReasonProfitTarget, domain.MarketSnapshot{})
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	open := memTrade("open", base)
	if err := s.Insert(ctx, open); err != nil {
		t.Fatalf("insert open: %v", err)
	}

	// Bounds are inclusive on both ends.
	closed, err := s.GetClosed(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("get closed: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("closed in window = %d, want 2", len(closed))
	}
	if closed[0].TradeID != "t1" || closed[1].TradeID != "t2" {
		t.Errorf("order = %s, %s", closed[0].TradeID, closed[1].TradeID)
	}
}

func TestTradeStore_GetByStatusAndExperiment(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	expID := "exp-1"
	for i := 0; i < 3; i++ {
		tr := memTrade(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Hour))
		if i < 2 {
			id := expID
			tr.ExperimentID = &id
			tr.ExperimentArm = domain.ArmTest
		}
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	monitoring, err := s.GetByStatus(ctx, domain.TradeStatusMonitoring)
	if err != nil {
		t.Fatalf("get by status: %v", err)
	}
	if len(monitoring) != 3 {
		t.Fatalf("monitoring = %d", len(monitoring))
	}
	if monitoring[0].TradeID != "t0" {
		t.Errorf("not ordered by entry time: first = %s", monitoring[0].TradeID)
	}

	linked, err := s.GetByExperiment(ctx, expID)
	if err != nil {
		t.Fatalf("get by experiment: %v", err)
	}
	if len(linked) != 2 {
		t.Errorf("linked = %d, want 2", len(linked))
	}
}
