package domain

import "time"

// OptionKind identifies the option type.
type OptionKind string

const (
	OptionKindPut  OptionKind = "PUT"
	OptionKindCall OptionKind = "CALL"
)

// Trade lifecycle states.
const (
	TradeStatusProposed     = "PROPOSED"
	TradeStatusRiskApproved = "RISK_APPROVED"
	TradeStatusOrderPlaced  = "ORDER_PLACED"
	TradeStatusFilled       = "FILLED"
	TradeStatusMonitoring   = "MONITORING"
	TradeStatusExitPending  = "EXIT_PENDING"
	TradeStatusClosed       = "CLOSED"
	TradeStatusRejected     = "REJECTED"
	TradeStatusCancelled    = "CANCELLED"
)

// Exit reason codes. Stop-loss takes precedence over profit target when both
// are satisfiable in the same monitoring tick.
const (
	ExitReasonProfitTarget = "profit_target"
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonDTEThreshold = "dte_threshold"
	ExitReasonManual       = "manual"
)

// ContractMultiplier is the share count behind one option contract.
const ContractMultiplier = 100.0

// Instrument describes a single option contract series.
type Instrument struct {
	Symbol     string
	Sector     string
	Strike     float64
	Expiration time.Time
	Kind       OptionKind
}

// MarketSnapshot captures market context at entry or exit.
type MarketSnapshot struct {
	VolatilityIndex float64
	UnderlyingPrice float64
	Regime          string
}

// Trade is a short-option position record, from proposal through close.
// Premiums are quoted per share; a short trade collects EntryPremium and
// pays ExitPremium to close. Exit fields are all-nil or all-set: a trade
// with partial exit fields indicates ledger corruption.
type Trade struct {
	TradeID    string
	Instrument Instrument
	Contracts  int

	// Entry
	EntryTime    time.Time
	EntryPremium float64
	OTMPct       float64 // strike distance from underlying at entry
	DTE          int     // days to expiration at entry

	// Exit (nullable as a unit)
	ExitTime    *time.Time
	ExitPremium *float64
	ExitReason  string
	ExitMarket  *MarketSnapshot

	// Derived on close, never mutated afterwards
	Profit    float64
	ProfitPct float64
	DaysHeld  int

	// Strategy parameters in effect at entry
	ConfigVersionID int64

	// Market context at entry
	EntryMarket MarketSnapshot

	// Experiment linkage (nil when trade ran on the baseline config)
	ExperimentID  *string
	ExperimentArm string

	// Annotation is opaque narrative text attached by an external agent.
	// It carries no authority: nothing in the loop branches on it.
	Annotation string

	Status string
}

// IsClosed reports whether all exit fields are set.
func (t *Trade) IsClosed() bool {
	return t.ExitTime != nil && t.ExitPremium != nil && t.ExitReason != ""
}

// ExitFieldsConsistent reports whether exit fields are all-nil or all-set.
// A mixed state is an invariant violation.
func (t *Trade) ExitFieldsConsistent() bool {
	allNil := t.ExitTime == nil && t.ExitPremium == nil && t.ExitReason == ""
	return allNil || t.IsClosed()
}

// Close finalizes the trade: sets all exit fields as a unit and recomputes
// the derived profit fields. It is the only sanctioned way to close a trade.
func (t *Trade) Close(exitTime time.Time, exitPremium float64, reason string, market MarketSnapshot) {
	t.ExitTime = &exitTime
	t.ExitPremium = &exitPremium
	t.ExitReason = reason
	m := market
	t.ExitMarket = &m

	t.Profit = ShortOptionProfit(t.EntryPremium, exitPremium, t.Contracts)
	t.ProfitPct = ShortOptionProfitPct(t.EntryPremium, exitPremium)
	t.DaysHeld = int(exitTime.Sub(t.EntryTime).Hours() / 24)
	t.Status = TradeStatusClosed
}

// ShortOptionProfit computes realized profit for a short option position.
// Premium collected at entry minus premium paid to close, per contract.
func ShortOptionProfit(entryPremium, exitPremium float64, contracts int) float64 {
	return (entryPremium - exitPremium) * float64(contracts) * ContractMultiplier
}

// ShortOptionProfitPct computes return relative to premium collected.
func ShortOptionProfitPct(entryPremium, exitPremium float64) float64 {
	if entryPremium == 0 {
		return 0
	}
	return (entryPremium - exitPremium) / entryPremium
}

// Notional returns the exposure backing the position, strike times shares.
func (t *Trade) Notional() float64 {
	return t.Instrument.Strike * float64(t.Contracts) * ContractMultiplier
}

// Won reports whether the closed trade realized a positive profit.
func (t *Trade) Won() bool {
	return t.Profit > 0
}
