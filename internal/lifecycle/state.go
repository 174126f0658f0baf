// Package lifecycle tracks each trade from proposal through entry,
// monitoring, and exit. The manager owns all Position mutation; risk
// evaluation always happens before order placement.
package lifecycle

import (
	"fmt"

	"short-options-loop/internal/domain"
)

// validTransitions is the trade state machine. Rejected and Cancelled are
// the terminal off-path states, reachable from Proposed and OrderPlaced.
var validTransitions = map[string][]string{
	domain.TradeStatusProposed:     {domain.TradeStatusRiskApproved, domain.TradeStatusRejected},
	domain.TradeStatusRiskApproved: {domain.TradeStatusOrderPlaced},
	domain.TradeStatusOrderPlaced:  {domain.TradeStatusFilled, domain.TradeStatusCancelled},
	domain.TradeStatusFilled:       {domain.TradeStatusMonitoring},
	domain.TradeStatusMonitoring:   {domain.TradeStatusExitPending},
	domain.TradeStatusExitPending:  {domain.TradeStatusClosed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition advances a trade's status. An illegal step is an invariant
// violation: state corruption, never auto-corrected.
func Transition(t *domain.Trade, to string) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s for trade %s",
			domain.ErrInvariantViolation, t.Status, to, t.TradeID)
	}
	t.Status = to
	return nil
}

// Terminal reports whether a status has no outgoing transitions.
func Terminal(status string) bool {
	return len(validTransitions[status]) == 0
}
