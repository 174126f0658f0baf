// Package risk implements the governor that gates every proposed trade and
// monitors open exposure. Checks run in fixed order and fail fast; every
// violation produces a RiskEvent and a rejection that is never retried
// automatically.
package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

// Decision is the governor's verdict on one proposal.
type Decision struct {
	Approved bool
	Check    string // failing check when rejected
	Reason   string // specific reason string surfaced to the caller
}

// Exposure is the portfolio snapshot a proposal is evaluated against.
// The caller materializes it; the governor adds only its own session state.
type Exposure struct {
	OpenPositions []*domain.Position
	BuyingPower   float64
}

// Governor evaluates risk policy. All portfolio-wide checks run under one
// mutex so that concurrent proposals racing the same budget slot cannot
// both pass. The daily realized-loss counter is the only state that
// persists within a session; it resets only via StartSession.
type Governor struct {
	events storage.RiskEventStore
	logger *log.Logger

	mu sync.Mutex
	// Session state, guarded by mu.
	sessionActive  bool
	sessionCapital float64 // buying power at session start, loss-percentage base
	dailyRealized  float64 // cumulative realized P&L this session
	tripped        bool    // circuit breaker latched until session reset

	// Approved-but-not-yet-filled reservations, keyed by trade ID. They hold
	// budget slots between approval and fill so racing proposals see them.
	reserved map[string]float64 // trade_id -> notional
}

// NewGovernor creates a governor writing audit records to the given store.
func NewGovernor(events storage.RiskEventStore, logger *log.Logger) *Governor {
	if logger == nil {
		logger = log.Default()
	}
	return &Governor{
		events:   events,
		logger:   logger,
		reserved: make(map[string]float64),
	}
}

// StartSession resets the daily loss counter and arms the governor. The
// session boundary is always this explicit call, never wall-clock.
func (g *Governor) StartSession(buyingPower float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessionActive = true
	g.sessionCapital = buyingPower
	g.dailyRealized = 0
	g.tripped = false
	g.logger.Printf("session started, capital=%.2f", buyingPower)
}

// EndSession disarms the governor; all subsequent proposals are rejected.
func (g *Governor) EndSession() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessionActive = false
	g.logger.Printf("session ended, realized=%.2f", g.dailyRealized)
}

// RecordRealized folds a closed trade's profit into the session counter.
func (g *Governor) RecordRealized(profit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyRealized += profit
}

// DailyRealized returns the session's cumulative realized P&L.
func (g *Governor) DailyRealized() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyRealized
}

// Tripped reports whether the circuit breaker has latched this session.
func (g *Governor) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

// SessionActive reports whether a trading session is in progress.
func (g *Governor) SessionActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionActive
}

// Release drops the reservation for a trade once it is filled (the position
// now appears in exposure) or its order was cancelled or rejected.
func (g *Governor) Release(tradeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.reserved, tradeID)
}

// Evaluate gates one proposal against the limits of the config version in
// effect for it. Checks run in fixed order, first violation wins. On
// approval the proposal's notional is reserved until Release.
func (g *Governor) Evaluate(ctx context.Context, t *domain.Trade, params domain.StrategyParams, exp Exposure) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sessionActive {
		return g.reject(ctx, t, domain.RiskCheckSessionInactive,
			"no active trading session", 0, 0)
	}

	notional := t.Notional()

	// 1. Per-position notional cap.
	if notional > params.MaxPositionNotional {
		return g.reject(ctx, t, domain.RiskCheckNotionalCap,
			fmt.Sprintf("position notional %.2f exceeds cap %.2f", notional, params.MaxPositionNotional),
			notional, params.MaxPositionNotional)
	}

	// 2. Maximum concurrent open positions, reservations included.
	committed := len(exp.OpenPositions) + len(g.reserved)
	if committed >= params.MaxConcurrentPositions {
		return g.reject(ctx, t, domain.RiskCheckConcurrentCap,
			fmt.Sprintf("%d positions committed, cap %d", committed, params.MaxConcurrentPositions),
			float64(committed), float64(params.MaxConcurrentPositions))
	}

	// 3. Daily realized-loss circuit breaker. Once tripped it stays tripped
	// for the remainder of the session.
	lossPct := 0.0
	if g.sessionCapital > 0 {
		lossPct = g.dailyRealized / g.sessionCapital
	}
	if g.tripped || lossPct <= params.DailyLossCircuitBreakerPct {
		g.tripped = true
		return g.reject(ctx, t, domain.RiskCheckCircuitBreaker,
			"circuit_breaker",
			lossPct, params.DailyLossCircuitBreakerPct)
	}

	// 4. Buying-power sufficiency, reservations included.
	reservedNotional := 0.0
	for _, n := range g.reserved {
		reservedNotional += n
	}
	openNotional := 0.0
	for _, p := range exp.OpenPositions {
		openNotional += p.Notional()
	}
	if openNotional+reservedNotional+notional > exp.BuyingPower {
		return g.reject(ctx, t, domain.RiskCheckBuyingPower,
			fmt.Sprintf("insufficient buying power: need %.2f, committed %.2f of %.2f",
				notional, openNotional+reservedNotional, exp.BuyingPower),
			openNotional+reservedNotional+notional, exp.BuyingPower)
	}

	// 5. Symbol concentration cap.
	symbolNotional := notional
	for _, p := range exp.OpenPositions {
		if p.Instrument.Symbol == t.Instrument.Symbol {
			symbolNotional += p.Notional()
		}
	}
	if exp.BuyingPower > 0 && symbolNotional/exp.BuyingPower > params.MaxSymbolExposurePct {
		return g.reject(ctx, t, domain.RiskCheckConcentration,
			fmt.Sprintf("symbol %s exposure %.2f%% exceeds cap %.2f%%",
				t.Instrument.Symbol, 100*symbolNotional/exp.BuyingPower, 100*params.MaxSymbolExposurePct),
			symbolNotional/exp.BuyingPower, params.MaxSymbolExposurePct)
	}

	g.reserved[t.TradeID] = notional
	return Decision{Approved: true}
}

// ReEvaluateFill re-runs the limits for a fill whose price moved away from
// the quoted premium. The trade's reservation is still held, so it is
// excluded from the committed counts it would otherwise double into.
func (g *Governor) ReEvaluateFill(ctx context.Context, t *domain.Trade, params domain.StrategyParams, exp Exposure) Decision {
	g.mu.Lock()
	delete(g.reserved, t.TradeID)
	g.mu.Unlock()

	return g.Evaluate(ctx, t, params, exp)
}

// Monitor inspects open positions on a monitoring tick and records any
// breaches. It never mutates positions; escalation is the caller's job.
func (g *Governor) Monitor(ctx context.Context, positions []*domain.Position, maxStaleness time.Duration, now time.Time) []*domain.RiskEvent {
	var breaches []*domain.RiskEvent

	for _, p := range positions {
		if p.LastCheckedAt.IsZero() {
			continue
		}
		if stale := now.Sub(p.LastCheckedAt); stale > maxStaleness {
			e := g.newEvent(p.TradeID, domain.RiskCheckMonitorStale,
				fmt.Sprintf("position unmonitored for %s, max %s", stale, maxStaleness),
				stale.Seconds(), maxStaleness.Seconds())
			breaches = append(breaches, e)
		}
	}

	for _, e := range breaches {
		if err := g.events.Insert(ctx, e); err != nil {
			g.logger.Printf("record risk event: %v", err)
		}
	}
	return breaches
}

// reject records the violation and returns the rejection. Callers hold mu.
func (g *Governor) reject(ctx context.Context, t *domain.Trade, check, reason string, observed, limit float64) Decision {
	e := g.newEvent(t.TradeID, check, reason, observed, limit)
	if err := g.events.Insert(ctx, e); err != nil {
		g.logger.Printf("record risk event: %v", err)
	}
	g.logger.Printf("rejected trade %s: %s", shortID(t.TradeID), reason)
	return Decision{Approved: false, Check: check, Reason: reason}
}

func (g *Governor) newEvent(tradeID, check, reason string, observed, limit float64) *domain.RiskEvent {
	return &domain.RiskEvent{
		EventID:   uuid.NewString(),
		TradeID:   tradeID,
		Check:     check,
		Reason:    reason,
		Observed:  observed,
		Limit:     limit,
		CreatedAt: time.Now().UTC(),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
