package domain

import "time"

// Learning event types.
const (
	LearningEventPatternDetected    = "PATTERN_DETECTED"
	LearningEventPatternInvalidated = "PATTERN_INVALIDATED"
	LearningEventExperimentDecided  = "EXPERIMENT_DECIDED"
	LearningEventParameterAdjusted  = "PARAMETER_ADJUSTED"
)

// LearningEvent is an immutable audit record of any change to system
// behavior. Append-only; the before/after values and justification make
// every parameter change reconstructible.
type LearningEvent struct {
	EventID       string
	EventType     string
	Parameter     string // empty for pattern events
	BeforeValue   float64
	AfterValue    float64
	Justification string
	// RefID links the source artifact: pattern ID or experiment ID.
	RefID     string
	CreatedAt time.Time
}

// Risk check identifiers, in governor evaluation order.
const (
	RiskCheckNotionalCap     = "notional_cap"
	RiskCheckConcurrentCap   = "concurrent_positions"
	RiskCheckCircuitBreaker  = "circuit_breaker"
	RiskCheckBuyingPower     = "buying_power"
	RiskCheckConcentration   = "symbol_concentration"
	RiskCheckStaleFill       = "stale_fill"
	RiskCheckMonitorStale    = "monitor_staleness"
	RiskCheckSessionInactive = "session_inactive"
)

// RiskEvent is an immutable record of a risk-limit rejection or breach.
type RiskEvent struct {
	EventID   string
	TradeID   string // empty for portfolio-level breaches
	Check     string
	Reason    string
	Observed  float64
	Limit     float64
	CreatedAt time.Time
}
