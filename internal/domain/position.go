package domain

import "time"

// Position is the live-tracking projection of an open Trade. It exists from
// fill until exit, is mutated only by the lifecycle manager and the risk
// governor, and is destroyed when the trade closes.
type Position struct {
	TradeID        string
	Instrument     Instrument
	Contracts      int
	EntryPremium   float64
	EntryTime      time.Time
	CurrentPremium float64
	LastCheckedAt  time.Time

	// Pending exit, set when a trigger fires and the exit order is working.
	ExitPending bool
	ExitReason  string
}

// UnrealizedProfitPct returns the mark-to-market return on premium collected.
func (p *Position) UnrealizedProfitPct() float64 {
	return ShortOptionProfitPct(p.EntryPremium, p.CurrentPremium)
}

// DaysToExpiration returns whole days remaining until expiration at now.
func (p *Position) DaysToExpiration(now time.Time) int {
	d := p.Instrument.Expiration.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(d)
}

// Notional returns the exposure backing the position.
func (p *Position) Notional() float64 {
	return p.Instrument.Strike * float64(p.Contracts) * ContractMultiplier
}
