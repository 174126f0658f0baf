package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

func testTrade(id string, entry time.Time) *domain.Trade {
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
		EntryMarket: domain.MarketSnapshot{
			VolatilityIndex: 18.5,
			UnderlyingPrice: 100,
			Regime:          domain.RegimeNeutral,
		},
		Status: domain.TradeStatusMonitoring,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	tr := testTrade("trade-1", entry)
	require.NoError(t, store.Insert(ctx, tr))

	// Duplicate trade_id is rejected.
	assert.ErrorIs(t, store.Insert(ctx, testTrade("trade-1", entry)), storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "trade-1")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", got.Instrument.Symbol)
	assert.Equal(t, domain.OptionKindPut, got.Instrument.Kind)
	assert.Equal(t, 0.50, got.EntryPremium)
	assert.Nil(t, got.ExitTime)
	assert.Nil(t, got.ExitMarket)
	assert.True(t, got.ExitFieldsConsistent())

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_FinalizeExactlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	entry := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	tr := testTrade("trade-final", entry)
	require.NoError(t, store.Insert(ctx, tr))

	// Finalizing an open trade is invalid input.
	open := testTrade("trade-final", entry)
	assert.ErrorIs(t, store.Finalize(ctx, open), storage.ErrInvalidInput)

	tr.Close(entry.AddDate(0, 0, 3), 0.25, domain.ExitReasonProfitTarget, domain.MarketSnapshot{
		VolatilityIndex: 17,
		UnderlyingPrice: 102,
		Regime:          domain.RegimeNeutral,
	})
	require.NoError(t, store.Finalize(ctx, tr))

	got, err := store.GetByID(ctx, "trade-final")
	require.NoError(t, err)
	require.True(t, got.IsClosed())
	assert.Equal(t, domain.ExitReasonProfitTarget, got.ExitReason)
	assert.Equal(t, domain.TradeStatusClosed, got.Status)
	assert.InDelta(t, 125.0, got.Profit, 1e-9)
	assert.InDelta(t, 0.50, got.ProfitPct, 1e-9)
	require.NotNil(t, got.ExitMarket)
	assert.Equal(t, 102.0, got.ExitMarket.UnderlyingPrice)

	// Second finalization must not overwrite the first.
	assert.ErrorIs(t, store.Finalize(ctx, tr), storage.ErrAlreadyFinalized)

	missing := testTrade("trade-missing", entry)
	missing.Close(entry.AddDate(0, 0, 1), 0.30, domain.ExitReasonManual, domain.MarketSnapshot{})
	assert.ErrorIs(t, store.Finalize(ctx, missing), storage.ErrNotFound)
}

func TestTradeStore_GetClosedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	for i, exitDay := range []int{1, 3, 10} {
		tr := testTrade(string(rune('a'+i))+"-trade", base)
		require.NoError(t, store.Insert(ctx, tr))
		tr.Close(base.AddDate(0, 0, exitDay), 0.25, domain.ExitReasonProfitTarget, domain.MarketSnapshot{Regime: domain.RegimeNeutral})
		require.NoError(t, store.Finalize(ctx, tr))
	}

	// Still-open trade never shows up in GetClosed.
	require.NoError(t, store.Insert(ctx, testTrade("open-trade", base)))

	closed, err := store.GetClosed(ctx, base, base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.True(t, closed[0].ExitTime.Before(*closed[1].ExitTime))
}

func TestTradeStore_GetByExperiment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	expID := "exp-1"
	linked := testTrade("linked-trade", base)
	linked.ExperimentID = &expID
	linked.ExperimentArm = domain.ArmTest
	require.NoError(t, store.Insert(ctx, linked))
	require.NoError(t, store.Insert(ctx, testTrade("baseline-trade", base)))

	got, err := store.GetByExperiment(ctx, expID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "linked-trade", got[0].TradeID)
	assert.Equal(t, domain.ArmTest, got[0].ExperimentArm)
}
