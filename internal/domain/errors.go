package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the execution and learning loop.
var (
	// ErrValidation marks a malformed trade proposal, rejected before it
	// reaches the risk governor.
	ErrValidation = errors.New("validation failed")

	// ErrRiskLimitExceeded marks a proposal rejected by a risk check.
	// Recoverable: the proposal dies, the loop continues.
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrGatewayTimeout marks an unknown-outcome gateway call. The caller
	// must reconcile actual broker state before any further mutation.
	ErrGatewayTimeout = errors.New("gateway timeout")

	// ErrGateway marks a definite gateway failure.
	ErrGateway = errors.New("gateway error")

	// ErrDataInsufficient marks a skipped statistical evaluation; the batch
	// simply re-attempts on its next cycle.
	ErrDataInsufficient = errors.New("insufficient data")

	// ErrInvariantViolation marks ledger corruption, e.g. a trade with
	// partial exit fields. Always fatal, never auto-corrected.
	ErrInvariantViolation = errors.New("invariant violation")
)

// RiskRejection carries the specific check and reason for a rejected
// proposal. It unwraps to ErrRiskLimitExceeded.
type RiskRejection struct {
	Check  string
	Reason string
}

func (r *RiskRejection) Error() string {
	return fmt.Sprintf("risk rejected (%s): %s", r.Check, r.Reason)
}

func (r *RiskRejection) Unwrap() error {
	return ErrRiskLimitExceeded
}
