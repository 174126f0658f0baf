// Package experiment runs controlled parameter tests. Each experiment varies
// exactly one strategy parameter; a fixed fraction of new proposals runs the
// test value while the rest stays on the control value, and outcomes are
// adjudicated with the shared statistical validator. Decisions are terminal:
// an inconclusive experiment is rejected, never re-run.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage"
)

// Engine allocates proposals to experiment arms and adjudicates outcomes.
type Engine struct {
	experiments storage.ExperimentStore
	trades      storage.TradeStore
	events      storage.LearningEventStore
	validator   *stats.Validator
	logger      *log.Logger
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine. The seed fixes the allocation sequence, which
// makes arm assignment reproducible in tests and replays.
func NewEngine(experiments storage.ExperimentStore, trades storage.TradeStore, events storage.LearningEventStore, validator *stats.Validator, seed int64, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		experiments: experiments,
		trades:      trades,
		events:      events,
		validator:   validator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Start opens a new experiment on one parameter. Only one active experiment
// per parameter is allowed; a second is rejected with ErrDuplicateKey.
func (e *Engine) Start(ctx context.Context, parameter string, controlValue, testValue float64, hypothesis string, sampleBudget int) (*domain.Experiment, error) {
	if _, ok := domain.DefaultStrategyParams().Get(parameter); !ok {
		return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrValidation, parameter)
	}
	if sampleBudget <= 0 {
		return nil, fmt.Errorf("%w: sample budget must be positive", domain.ErrValidation)
	}

	active, err := e.experiments.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active experiments: %w", err)
	}
	for _, a := range active {
		if a.Parameter == parameter {
			return nil, fmt.Errorf("%w: parameter %s already under experiment %s",
				storage.ErrDuplicateKey, parameter, a.ExperimentID)
		}
	}

	exp := &domain.Experiment{
		ExperimentID: uuid.NewString(),
		Parameter:    parameter,
		ControlValue: controlValue,
		TestValue:    testValue,
		Hypothesis:   hypothesis,
		Status:       domain.ExperimentStatusActive,
		SampleBudget: sampleBudget,
		CreatedAt:    e.now(),
	}
	if err := e.experiments.Insert(ctx, exp); err != nil {
		return nil, fmt.Errorf("insert experiment: %w", err)
	}

	e.logger.Printf("experiment %s started: %s %.4f vs %.4f, budget %d",
		shortID(exp.ExperimentID), parameter, controlValue, testValue, sampleBudget)
	return exp, nil
}

// Assign routes one proposal. When an active experiment with remaining
// budget exists, the proposal is linked to it: the allocation fraction of
// proposals runs the test value, the rest runs the control value so both
// arms accrue under identical conditions. Without an active experiment the
// proposal runs the baseline unlinked.
func (e *Engine) Assign(ctx context.Context, base domain.StrategyParams) (domain.StrategyParams, *string, string, error) {
	active, err := e.experiments.GetActive(ctx)
	if err != nil {
		return base, nil, "", fmt.Errorf("load active experiments: %w", err)
	}

	var exp *domain.Experiment
	for _, a := range active {
		if !a.BudgetExhausted() {
			exp = a
			break
		}
	}
	if exp == nil {
		return base, nil, "", nil
	}

	e.mu.Lock()
	draw := e.rng.Float64()
	e.mu.Unlock()

	id := exp.ExperimentID
	if draw < base.ExperimentAllocationPct {
		params, ok := base.WithParam(exp.Parameter, exp.TestValue)
		if !ok {
			return base, nil, "", fmt.Errorf("%w: experiment %s has unknown parameter %q",
				domain.ErrInvariantViolation, exp.ExperimentID, exp.Parameter)
		}
		return params, &id, domain.ArmTest, nil
	}

	params, ok := base.WithParam(exp.Parameter, exp.ControlValue)
	if !ok {
		return base, nil, "", fmt.Errorf("%w: experiment %s has unknown parameter %q",
			domain.ErrInvariantViolation, exp.ExperimentID, exp.Parameter)
	}
	return params, &id, domain.ArmControl, nil
}

// Adjudicate runs the statistical comparison for one experiment. The
// decision rules:
//   - significant with the test arm ahead: ADOPT
//   - significant with the test arm behind: REJECT
//   - not significant with budget remaining: no decision yet
//     (ErrDataInsufficient)
//   - not significant with budget exhausted: INCONCLUSIVE, terminal
func (e *Engine) Adjudicate(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	ev, err := e.evaluate(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if ev.exp.Decided() {
		return ev.exp, nil
	}
	return e.decide(ctx, ev)
}

// AdjudicateAll adjudicates every active experiment as one batch: all ready
// comparisons are evaluated first, their p-values are adjusted together, and
// only then are decisions made. Experiments that are not ready are skipped.
// Returns the experiments decided in this pass.
func (e *Engine) AdjudicateAll(ctx context.Context) ([]*domain.Experiment, error) {
	active, err := e.experiments.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active experiments: %w", err)
	}

	var pending []*evaluation
	var results []*stats.Result
	for _, exp := range active {
		ev, err := e.evaluate(ctx, exp.ExperimentID)
		if err != nil {
			return nil, err
		}
		if ev.exp.Decided() {
			continue
		}
		pending = append(pending, ev)
		if ev.sufficient {
			results = append(results, ev.result)
		}
	}
	e.validator.AdjustForComparisons(results)

	var decided []*domain.Experiment
	for _, ev := range pending {
		out, err := e.decide(ctx, ev)
		if err != nil {
			if errors.Is(err, domain.ErrDataInsufficient) {
				continue
			}
			return decided, err
		}
		decided = append(decided, out)
	}
	return decided, nil
}

// evaluation is one experiment's undecided statistical comparison.
type evaluation struct {
	exp        *domain.Experiment
	result     *stats.Result
	controlN   int
	testN      int
	sufficient bool
}

// evaluate loads an experiment's closed arm outcomes and runs the two-sample
// comparison without deciding anything.
func (e *Engine) evaluate(ctx context.Context, experimentID string) (*evaluation, error) {
	exp, err := e.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	if exp.Decided() {
		return &evaluation{exp: exp}, nil
	}

	linked, err := e.trades.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load experiment trades: %w", err)
	}

	var control, test []float64
	for _, t := range linked {
		if !t.IsClosed() {
			continue
		}
		switch t.ExperimentArm {
		case domain.ArmControl:
			control = append(control, t.ProfitPct)
		case domain.ArmTest:
			test = append(test, t.ProfitPct)
		}
	}

	result, verr := e.validator.ValidateTwoSample(test, control)
	if verr != nil && !errors.Is(verr, domain.ErrDataInsufficient) {
		return nil, verr
	}
	return &evaluation{
		exp:        exp,
		result:     result,
		controlN:   len(control),
		testN:      len(test),
		sufficient: verr == nil,
	}, nil
}

// decide applies the decision rules to one evaluated experiment and persists
// the outcome. The result's PValue and Significant flag must already carry
// any batch adjustment.
func (e *Engine) decide(ctx context.Context, ev *evaluation) (*domain.Experiment, error) {
	exp := ev.exp
	switch {
	case ev.sufficient && ev.result.Significant && ev.result.EffectSize > 0:
		exp.Decision = domain.DecisionAdopt
		exp.Status = domain.ExperimentStatusCompleted
	case ev.sufficient && ev.result.Significant:
		exp.Decision = domain.DecisionReject
		exp.Status = domain.ExperimentStatusRejected
	case exp.BudgetExhausted():
		exp.Decision = domain.DecisionInconclusive
		exp.Status = domain.ExperimentStatusRejected
	default:
		return nil, fmt.Errorf("%w: experiment %s has %d/%d samples and no verdict yet",
			domain.ErrDataInsufficient, shortID(exp.ExperimentID), ev.controlN, ev.testN)
	}

	exp.PValue = ev.result.PValue
	exp.EffectSize = ev.result.EffectSize
	decidedAt := e.now()
	exp.DecidedAt = &decidedAt

	if err := e.experiments.Decide(ctx, exp); err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}
	if err := e.recordDecision(ctx, exp, ev.controlN, ev.testN); err != nil {
		return nil, err
	}

	observability.RecordExperimentDecision(exp.Decision)
	e.logger.Printf("experiment %s decided: %s (p=%.4f, effect=%.3f, control=%d test=%d)",
		shortID(exp.ExperimentID), exp.Decision, exp.PValue, exp.EffectSize, ev.controlN, ev.testN)
	return exp, nil
}

func (e *Engine) recordDecision(ctx context.Context, exp *domain.Experiment, controlN, testN int) error {
	after := exp.ControlValue
	if exp.Decision == domain.DecisionAdopt {
		after = exp.TestValue
	}

	ev := &domain.LearningEvent{
		EventID:     uuid.NewString(),
		EventType:   domain.LearningEventExperimentDecided,
		Parameter:   exp.Parameter,
		BeforeValue: exp.ControlValue,
		AfterValue:  after,
		Justification: fmt.Sprintf("%s: %s %.4f vs %.4f, p=%.4f, effect=%.3f, control=%d test=%d",
			exp.Decision, exp.Parameter, exp.ControlValue, exp.TestValue,
			exp.PValue, exp.EffectSize, controlN, testN),
		RefID:     exp.ExperimentID,
		CreatedAt: *exp.DecidedAt,
	}
	if err := e.events.Insert(ctx, ev); err != nil {
		return fmt.Errorf("record decision event: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
