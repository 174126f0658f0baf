package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/gateway"
	"short-options-loop/internal/idhash"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/risk"
	"short-options-loop/internal/storage"
)

// ExitReasonRiskUnwind marks a position closed immediately after a stale
// fill failed re-validation against current risk limits.
const ExitReasonRiskUnwind = "risk_unwind"

// staleFillTolerance is the fill-vs-quote drift beyond which a fill must be
// re-validated before acceptance.
const staleFillTolerance = 0.10

// Assigner routes a fraction of new proposals to an active experiment's
// test arm. The returned params are the effective strategy parameters for
// the proposal; experimentID is nil for baseline trades.
type Assigner interface {
	Assign(ctx context.Context, base domain.StrategyParams) (params domain.StrategyParams, experimentID *string, arm string, err error)
}

// Proposal is a candidate trade entering the lifecycle.
type Proposal struct {
	Instrument domain.Instrument
	Contracts  int
	Premium    float64 // quoted entry premium per share
	Market     domain.MarketSnapshot
	Annotation string
	ProposedAt time.Time // zero means now
}

// Options configures a Manager.
type Options struct {
	Gateway     gateway.Gateway
	Governor    *risk.Governor
	Trades      storage.TradeStore
	Configs     storage.ConfigVersionStore
	Experiments storage.ExperimentStore
	Assigner    Assigner
	Logger      *log.Logger

	BuyingPower    float64
	PollInterval   time.Duration
	MaxStaleness   time.Duration // forced re-check threshold for a position
	GatewayTimeout time.Duration
	RetryBudget    int // gateway failures tolerated before halting new entries
	ExitDTE        int // exit when days-to-expiration falls to this or below

	// MarketContext supplies the market snapshot recorded at exit.
	MarketContext func(ctx context.Context) domain.MarketSnapshot

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entryOrder struct {
	trade         *domain.Trade
	handle        gateway.OrderHandle
	quotedPremium float64
}

type exitOrder struct {
	tradeID string
	reason  string
	handle  gateway.OrderHandle
}

// Manager runs the trade lifecycle: proposal, risk gating, order placement,
// cooperative position monitoring, and exit. It is the sole mutator of
// Position state.
type Manager struct {
	gw          gateway.Gateway
	governor    *risk.Governor
	trades      storage.TradeStore
	configs     storage.ConfigVersionStore
	experiments storage.ExperimentStore
	assigner    Assigner
	logger      *log.Logger
	now         func() time.Time

	pollInterval   time.Duration
	maxStaleness   time.Duration
	gatewayTimeout time.Duration
	retryBudget    int
	exitDTE        int
	marketContext  func(ctx context.Context) domain.MarketSnapshot

	mu              sync.Mutex
	buyingPower     float64
	positions       map[string]*domain.Position      // keyed by trade_id
	open            map[string]*domain.Trade         // in-flight trades by trade_id
	params          map[string]domain.StrategyParams // effective params by trade_id
	entryOrders     map[string]*entryOrder           // keyed by order ClientID (trade_id)
	exitOrders      map[string]*exitOrder            // keyed by order ClientID
	gatewayFailures int
	entryHalted     bool
}

// NewManager creates a lifecycle manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	marketContext := opts.MarketContext
	if marketContext == nil {
		marketContext = func(context.Context) domain.MarketSnapshot { return domain.MarketSnapshot{} }
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.MaxStaleness <= 0 {
		opts.MaxStaleness = 5 * opts.PollInterval
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = 5
	}
	if opts.ExitDTE <= 0 {
		opts.ExitDTE = 1
	}

	return &Manager{
		gw:             opts.Gateway,
		governor:       opts.Governor,
		trades:         opts.Trades,
		configs:        opts.Configs,
		experiments:    opts.Experiments,
		assigner:       opts.Assigner,
		logger:         logger,
		now:            now,
		pollInterval:   opts.PollInterval,
		maxStaleness:   opts.MaxStaleness,
		gatewayTimeout: opts.GatewayTimeout,
		retryBudget:    opts.RetryBudget,
		exitDTE:        opts.ExitDTE,
		marketContext:  marketContext,
		buyingPower:    opts.BuyingPower,
		positions:      make(map[string]*domain.Position),
		open:           make(map[string]*domain.Trade),
		params:         make(map[string]domain.StrategyParams),
		entryOrders:    make(map[string]*entryOrder),
		exitOrders:     make(map[string]*exitOrder),
	}
}

// Propose runs a candidate trade through validation, experiment allocation,
// and the risk governor, then places the entry order. Risk evaluation
// always completes before the order reaches the gateway.
func (m *Manager) Propose(ctx context.Context, p Proposal) (*domain.Trade, error) {
	if err := validateProposal(p); err != nil {
		observability.RecordProposal("invalid")
		return nil, err
	}

	m.mu.Lock()
	halted := m.entryHalted
	m.mu.Unlock()
	if halted {
		observability.RecordProposal("halted")
		return nil, fmt.Errorf("%w: new order placement halted after repeated gateway failures", domain.ErrGateway)
	}

	version, err := m.configs.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active config: %w", err)
	}

	params := version.Params
	var experimentID *string
	arm := ""
	if m.assigner != nil {
		params, experimentID, arm, err = m.assigner.Assign(ctx, version.Params)
		if err != nil {
			return nil, fmt.Errorf("experiment allocation: %w", err)
		}
	}

	proposedAt := p.ProposedAt
	if proposedAt.IsZero() {
		proposedAt = m.now()
	}

	t := &domain.Trade{
		TradeID: idhash.ComputeTradeID(p.Instrument.Symbol, p.Instrument.Strike,
			p.Instrument.Expiration, string(p.Instrument.Kind), proposedAt),
		Instrument:      p.Instrument,
		Contracts:       p.Contracts,
		EntryTime:       proposedAt,
		EntryPremium:    p.Premium,
		OTMPct:          otmPct(p.Instrument, p.Market.UnderlyingPrice),
		DTE:             int(p.Instrument.Expiration.Sub(proposedAt).Hours() / 24),
		ConfigVersionID: version.VersionID,
		EntryMarket:     p.Market,
		ExperimentID:    experimentID,
		ExperimentArm:   arm,
		Annotation:      p.Annotation,
		Status:          domain.TradeStatusProposed,
	}

	exposure := m.exposure()
	decision := m.governor.Evaluate(ctx, t, params, exposure)
	if !decision.Approved {
		_ = Transition(t, domain.TradeStatusRejected)
		observability.RecordProposal("rejected")
		observability.RecordRiskRejection(decision.Check)
		return t, &domain.RiskRejection{Check: decision.Check, Reason: decision.Reason}
	}
	if err := Transition(t, domain.TradeStatusRiskApproved); err != nil {
		return nil, err
	}

	order := gateway.Order{
		ClientID:   t.TradeID,
		Symbol:     t.Instrument.Symbol,
		Strike:     t.Instrument.Strike,
		Expiration: t.Instrument.Expiration,
		Kind:       t.Instrument.Kind,
		Side:       gateway.SideSellToOpen,
		Contracts:  t.Contracts,
		LimitPrice: t.EntryPremium,
	}

	handle, err := m.placeOrder(ctx, order)
	if err != nil {
		m.governor.Release(t.TradeID)
		observability.RecordProposal("gateway_error")
		return nil, err
	}

	if err := Transition(t, domain.TradeStatusOrderPlaced); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.open[t.TradeID] = t
	m.params[t.TradeID] = params
	m.entryOrders[t.TradeID] = &entryOrder{trade: t, handle: handle, quotedPremium: p.Premium}
	m.mu.Unlock()

	observability.RecordProposal("approved")
	observability.RecordOrderPlaced()
	m.logger.Printf("order placed for trade %s (%s %s %.2f exp %s)",
		shortID(t.TradeID), t.Instrument.Symbol, t.Instrument.Kind,
		t.Instrument.Strike, t.Instrument.Expiration.Format("2006-01-02"))
	return t, nil
}

// Run drives the manager: it consumes gateway events and runs the
// cooperative monitoring tick until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	events := m.gw.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: event stream closed", domain.ErrGateway)
			}
			m.HandleEvent(ctx, ev)
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// HandleEvent routes one gateway fill/cancel notification.
func (m *Manager) HandleEvent(ctx context.Context, ev gateway.Event) {
	m.mu.Lock()
	entry, isEntry := m.entryOrders[ev.Handle.ClientID]
	exit, isExit := m.exitOrders[ev.Handle.ClientID]
	m.mu.Unlock()

	switch {
	case isEntry && ev.Type == gateway.EventFill:
		m.handleEntryFill(ctx, entry, ev)
	case isEntry && ev.Type == gateway.EventCancel:
		m.handleEntryCancel(entry)
	case isExit && ev.Type == gateway.EventFill:
		m.handleExitFill(ctx, exit, ev)
	case isExit && ev.Type == gateway.EventCancel:
		m.handleExitCancel(exit)
	default:
		m.logger.Printf("event for unknown order %s ignored", ev.Handle.ClientID)
	}
}

// handleEntryFill accepts a fill, re-validating first when the fill price
// drifted from the quoted premium.
func (m *Manager) handleEntryFill(ctx context.Context, entry *entryOrder, ev gateway.Event) {
	t := entry.trade
	unwind := false

	if entry.quotedPremium > 0 {
		drift := abs(ev.Price-entry.quotedPremium) / entry.quotedPremium
		if drift > staleFillTolerance {
			m.mu.Lock()
			params := m.params[t.TradeID]
			m.mu.Unlock()

			d := m.governor.ReEvaluateFill(ctx, t, params, m.exposure())
			if !d.Approved {
				m.logger.Printf("stale fill for trade %s failed re-validation (%s), unwinding",
					shortID(t.TradeID), d.Reason)
				unwind = true
			}
		}
	}

	t.EntryPremium = ev.Price
	if err := Transition(t, domain.TradeStatusFilled); err != nil {
		m.logger.Printf("entry fill: %v", err)
		return
	}
	if err := Transition(t, domain.TradeStatusMonitoring); err != nil {
		m.logger.Printf("entry fill: %v", err)
		return
	}

	if err := m.trades.Insert(ctx, t); err != nil {
		m.logger.Printf("persist filled trade %s: %v", shortID(t.TradeID), err)
	}

	pos := &domain.Position{
		TradeID:        t.TradeID,
		Instrument:     t.Instrument,
		Contracts:      t.Contracts,
		EntryPremium:   ev.Price,
		EntryTime:      ev.Time,
		CurrentPremium: ev.Price,
		LastCheckedAt:  ev.Time,
	}

	m.mu.Lock()
	m.positions[t.TradeID] = pos
	delete(m.entryOrders, t.TradeID)
	openCount := len(m.positions)
	m.mu.Unlock()

	m.governor.Release(t.TradeID)
	observability.SetOpenPositions(openCount)
	m.logger.Printf("trade %s filled at %.2f, monitoring", shortID(t.TradeID), ev.Price)

	if unwind {
		if err := m.triggerExit(ctx, pos, ExitReasonRiskUnwind); err != nil {
			m.logger.Printf("unwind trade %s: %v", shortID(t.TradeID), err)
		}
	}
}

func (m *Manager) handleEntryCancel(entry *entryOrder) {
	t := entry.trade
	if err := Transition(t, domain.TradeStatusCancelled); err != nil {
		m.logger.Printf("entry cancel: %v", err)
		return
	}

	m.mu.Lock()
	delete(m.entryOrders, t.TradeID)
	delete(m.open, t.TradeID)
	delete(m.params, t.TradeID)
	m.mu.Unlock()

	m.governor.Release(t.TradeID)
	m.logger.Printf("entry order for trade %s cancelled", shortID(t.TradeID))
}

// handleExitFill finalizes the trade: all exit fields set atomically, the
// position destroyed, realized P&L folded into the session counter.
func (m *Manager) handleExitFill(ctx context.Context, exit *exitOrder, ev gateway.Event) {
	m.mu.Lock()
	t := m.open[exit.tradeID]
	m.mu.Unlock()
	if t == nil {
		m.logger.Printf("exit fill for unknown trade %s", shortID(exit.tradeID))
		return
	}

	t.Close(ev.Time, ev.Price, exit.reason, m.marketContext(ctx))

	if err := m.trades.Finalize(ctx, t); err != nil {
		m.logger.Printf("finalize trade %s: %v", shortID(t.TradeID), err)
	}

	m.governor.RecordRealized(t.Profit)
	observability.RecordTradeClosed(t.ExitReason)
	observability.SetDailyRealized(m.governor.DailyRealized())

	if t.ExperimentID != nil {
		if err := m.experiments.IncrementArm(ctx, *t.ExperimentID, t.ExperimentArm); err != nil {
			m.logger.Printf("increment experiment arm: %v", err)
		}
	}

	m.mu.Lock()
	delete(m.positions, t.TradeID)
	delete(m.open, t.TradeID)
	delete(m.params, t.TradeID)
	delete(m.exitOrders, ev.Handle.ClientID)
	openCount := len(m.positions)
	m.mu.Unlock()

	observability.SetOpenPositions(openCount)
	m.logger.Printf("trade %s closed (%s): profit %.2f (%.1f%%)",
		shortID(t.TradeID), t.ExitReason, t.Profit, 100*t.ProfitPct)
}

// handleExitCancel drops the working exit order so the next tick re-places
// it. A filled position's exit is never abandoned, only re-triggered.
func (m *Manager) handleExitCancel(exit *exitOrder) {
	m.mu.Lock()
	delete(m.exitOrders, exitClientID(exit.tradeID))
	m.mu.Unlock()
	m.logger.Printf("exit order for trade %s cancelled, will re-trigger", shortID(exit.tradeID))
}

// Tick is one pass of the cooperative monitoring loop over all open
// positions. Quotes are refreshed, exit triggers evaluated (stop-loss
// first), and stale positions escalated to a forced re-check.
func (m *Manager) Tick(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	snapshot := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		snapshot = append(snapshot, p)
	}
	m.mu.Unlock()

	for _, p := range snapshot {
		m.checkPosition(ctx, p, now)
	}

	breaches := m.governor.Monitor(ctx, snapshot, m.maxStaleness, now)
	for _, b := range breaches {
		// Staleness breach: escalate to a forced re-check instead of
		// silently continuing.
		m.mu.Lock()
		p := m.positions[b.TradeID]
		m.mu.Unlock()
		if p != nil {
			m.logger.Printf("forced re-check of stale position %s", shortID(p.TradeID))
			m.checkPosition(ctx, p, now)
		}
	}
}

func (m *Manager) checkPosition(ctx context.Context, p *domain.Position, now time.Time) {
	m.mu.Lock()
	params := m.params[p.TradeID]
	_, exitWorking := m.exitOrders[exitClientID(p.TradeID)]
	m.mu.Unlock()

	if p.ExitPending {
		if !exitWorking {
			// Exit order was cancelled; re-place it per policy.
			if err := m.placeExitOrder(ctx, p, p.ExitReason); err != nil {
				m.logger.Printf("re-place exit for %s: %v", shortID(p.TradeID), err)
			}
		}
		return
	}

	qctx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	quote, err := m.gw.GetQuote(qctx, p.Instrument.Symbol)
	cancel()
	if err != nil {
		m.recordGatewayFailure(err)
		return
	}
	m.resetGatewayFailures()

	m.mu.Lock()
	p.CurrentPremium = quote.Mid()
	p.LastCheckedAt = now
	m.mu.Unlock()

	if reason := exitTrigger(params, p, now, m.exitDTE); reason != "" {
		if err := m.triggerExit(ctx, p, reason); err != nil {
			m.logger.Printf("trigger exit for %s: %v", shortID(p.TradeID), err)
		}
	}
}

// exitTrigger evaluates exit conditions in precedence order. Stop-loss is
// checked before profit target: when both are satisfiable in one tick the
// position exits as a stop.
func exitTrigger(params domain.StrategyParams, p *domain.Position, now time.Time, exitDTE int) string {
	pct := p.UnrealizedProfitPct()

	if pct <= -params.StopLossPct {
		return domain.ExitReasonStopLoss
	}
	if pct >= params.ProfitTargetPct {
		return domain.ExitReasonProfitTarget
	}
	if p.DaysToExpiration(now) <= exitDTE {
		return domain.ExitReasonDTEThreshold
	}
	return ""
}

// ForceExit triggers an exit for an open position on external command.
func (m *Manager) ForceExit(ctx context.Context, tradeID string) error {
	m.mu.Lock()
	p := m.positions[tradeID]
	m.mu.Unlock()

	if p == nil {
		return fmt.Errorf("%w: no open position for trade %s", domain.ErrValidation, tradeID)
	}
	return m.triggerExit(ctx, p, domain.ExitReasonManual)
}

// triggerExit marks the position exit-pending and places the closing order.
func (m *Manager) triggerExit(ctx context.Context, p *domain.Position, reason string) error {
	m.mu.Lock()
	t := m.open[p.TradeID]
	alreadyPending := p.ExitPending
	p.ExitPending = true
	p.ExitReason = reason
	m.mu.Unlock()

	if alreadyPending {
		return nil
	}

	if t != nil && t.Status == domain.TradeStatusMonitoring {
		if err := Transition(t, domain.TradeStatusExitPending); err != nil {
			return err
		}
	}

	m.logger.Printf("exit triggered for trade %s: %s", shortID(p.TradeID), reason)
	return m.placeExitOrder(ctx, p, reason)
}

func (m *Manager) placeExitOrder(ctx context.Context, p *domain.Position, reason string) error {
	order := gateway.Order{
		ClientID:   exitClientID(p.TradeID),
		Symbol:     p.Instrument.Symbol,
		Strike:     p.Instrument.Strike,
		Expiration: p.Instrument.Expiration,
		Kind:       p.Instrument.Kind,
		Side:       gateway.SideBuyToClose,
		Contracts:  p.Contracts,
		LimitPrice: p.CurrentPremium,
	}

	handle, err := m.placeOrder(ctx, order)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.exitOrders[order.ClientID] = &exitOrder{tradeID: p.TradeID, reason: reason, handle: handle}
	m.mu.Unlock()
	return nil
}

// placeOrder submits an order with a timeout. A timeout is an unknown
// outcome: the broker's actual state is reconciled before the call is
// reported as failed.
func (m *Manager) placeOrder(ctx context.Context, o gateway.Order) (gateway.OrderHandle, error) {
	pctx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	handle, err := m.gw.PlaceOrder(pctx, o)
	cancel()
	if err == nil {
		m.resetGatewayFailures()
		return handle, nil
	}

	rctx, rcancel := context.WithTimeout(ctx, m.gatewayTimeout)
	state, rerr := m.gw.GetOrder(rctx, gateway.OrderHandle{ClientID: o.ClientID})
	rcancel()
	if rerr == nil && state.Status != "" {
		// The order reached the broker after all.
		m.resetGatewayFailures()
		return state.Handle, nil
	}

	m.recordGatewayFailure(err)
	return gateway.OrderHandle{}, fmt.Errorf("%w: place order %s: %v", domain.ErrGatewayTimeout, o.ClientID, err)
}

// recordGatewayFailure counts consecutive failures; past the retry budget
// new order placement halts while monitoring of open positions continues.
func (m *Manager) recordGatewayFailure(err error) {
	observability.RecordGatewayError()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gatewayFailures++
	if m.gatewayFailures >= m.retryBudget && !m.entryHalted {
		m.entryHalted = true
		m.logger.Printf("gateway failure budget exhausted (%d): halting new order placement, monitoring continues: %v",
			m.gatewayFailures, err)
	}
}

func (m *Manager) resetGatewayFailures() {
	m.mu.Lock()
	m.gatewayFailures = 0
	m.mu.Unlock()
}

// EntryHalted reports whether new order placement is halted.
func (m *Manager) EntryHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryHalted
}

// ResumeEntries clears the gateway halt, typically on session start.
func (m *Manager) ResumeEntries() {
	m.mu.Lock()
	m.entryHalted = false
	m.gatewayFailures = 0
	m.mu.Unlock()
}

// SetBuyingPower updates the account buying power used in exposure.
func (m *Manager) SetBuyingPower(v float64) {
	m.mu.Lock()
	m.buyingPower = v
	m.mu.Unlock()
}

// OpenPositions returns a snapshot of open positions.
func (m *Manager) OpenPositions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// exposure materializes the current portfolio snapshot for the governor.
func (m *Manager) exposure() risk.Exposure {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, p)
	}
	return risk.Exposure{OpenPositions: positions, BuyingPower: m.buyingPower}
}

func validateProposal(p Proposal) error {
	switch {
	case p.Instrument.Symbol == "":
		return fmt.Errorf("%w: empty symbol", domain.ErrValidation)
	case p.Instrument.Strike <= 0:
		return fmt.Errorf("%w: strike must be positive", domain.ErrValidation)
	case p.Instrument.Kind != domain.OptionKindPut && p.Instrument.Kind != domain.OptionKindCall:
		return fmt.Errorf("%w: unknown option kind %q", domain.ErrValidation, p.Instrument.Kind)
	case p.Contracts <= 0:
		return fmt.Errorf("%w: contracts must be positive", domain.ErrValidation)
	case p.Premium <= 0:
		return fmt.Errorf("%w: premium must be positive", domain.ErrValidation)
	case p.Instrument.Expiration.IsZero():
		return fmt.Errorf("%w: missing expiration", domain.ErrValidation)
	}
	return nil
}

// otmPct computes the strike's distance from the underlying, signed so that
// out-of-the-money is positive for both puts and calls.
func otmPct(inst domain.Instrument, underlying float64) float64 {
	if underlying <= 0 {
		return 0
	}
	if inst.Kind == domain.OptionKindPut {
		return (underlying - inst.Strike) / underlying
	}
	return (inst.Strike - underlying) / underlying
}

func exitClientID(tradeID string) string {
	return tradeID + "/exit"
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
