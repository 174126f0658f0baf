package domain

import "time"

// Market regime labels used as a partition dimension.
const (
	RegimeLowVol  = "LOW_VOL"
	RegimeHighVol = "HIGH_VOL"
	RegimeNeutral = "NEUTRAL"
)

// Quote is a point-in-time option quote from the gateway.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OptionContract is one entry of an option chain.
type OptionContract struct {
	Symbol       string
	Underlying   string
	Strike       float64
	Expiration   time.Time
	Kind         OptionKind
	Bid          float64
	Ask          float64
	OpenInterest int64
}

// InferRegime assigns a coarse regime label from the volatility index.
func InferRegime(volatilityIndex float64) string {
	switch {
	case volatilityIndex >= 25:
		return RegimeHighVol
	case volatilityIndex <= 15:
		return RegimeLowVol
	default:
		return RegimeNeutral
	}
}
