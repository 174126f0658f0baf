package domain

import "time"

// Experiment statuses.
const (
	ExperimentStatusActive    = "ACTIVE"
	ExperimentStatusCompleted = "COMPLETED"
	ExperimentStatusRejected  = "REJECTED"
)

// Experiment arms.
const (
	ArmControl = "CONTROL"
	ArmTest    = "TEST"
)

// Terminal experiment decisions. Inconclusive experiments (budget exhausted
// without reaching required power) are treated as reject, never re-run.
const (
	DecisionAdopt        = "ADOPT"
	DecisionReject       = "REJECT"
	DecisionInconclusive = "INCONCLUSIVE"
)

// Experiment is a controlled hypothesis test on a single strategy parameter:
// a fraction of new proposals runs with TestValue while the rest stays on
// ControlValue, and outcomes are adjudicated once both arms accrue samples.
type Experiment struct {
	ExperimentID string
	Parameter    string // strategy parameter name under test
	ControlValue float64
	TestValue    float64
	Hypothesis   string // pattern ID or manual note that motivated the test
	Status       string

	ControlSamples int
	TestSamples    int

	// Adjudication results, zero until decided.
	PValue     float64
	EffectSize float64
	Decision   string

	// SampleBudget bounds total trades across both arms; exhausting it forces
	// adjudication even without the required power.
	SampleBudget int

	CreatedAt time.Time
	DecidedAt *time.Time
}

// Decided reports whether the experiment reached a terminal decision.
func (e *Experiment) Decided() bool {
	return e.Decision != ""
}

// BudgetExhausted reports whether the combined sample count reached the budget.
func (e *Experiment) BudgetExhausted() bool {
	return e.SampleBudget > 0 && e.ControlSamples+e.TestSamples >= e.SampleBudget
}
