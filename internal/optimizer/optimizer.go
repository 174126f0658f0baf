// Package optimizer turns adopted experiment results into new configuration
// versions. Every adjustment is bounded, applied as a fresh append-only
// version, and paired with an audit event carrying the justification.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/storage"
)

// bounds is the hard envelope for one strategy parameter. Experiments can
// move a parameter only inside it, no matter how strong the evidence.
type bounds struct {
	Min float64
	Max float64
}

var parameterBounds = map[string]bounds{
	"otm_target_pct":                 {0.01, 0.15},
	"dte_target":                     {1, 45},
	"profit_target_pct":              {0.10, 0.90},
	"stop_loss_pct":                  {0.25, 3.00},
	"max_position_notional":          {1000, 250000},
	"max_concurrent_positions":       {1, 20},
	"daily_loss_circuit_breaker_pct": {-0.10, -0.005},
	"max_symbol_exposure_pct":        {0.05, 1.00},
	"experiment_allocation_pct":      {0, 0.50},
	"min_samples_for_learning":       {10, 500},
	"significance_alpha":             {0.001, 0.10},
	"min_effect_size":                {0.05, 1.00},
}

// Envelope returns the hard bounds for a parameter.
func Envelope(parameter string) (lo, hi float64, ok bool) {
	b, ok := parameterBounds[parameter]
	return b.Min, b.Max, ok
}

// Optimizer applies adopted experiments to the configuration history.
type Optimizer struct {
	configs storage.ConfigVersionStore
	events  storage.LearningEventStore
	logger  *log.Logger
	now     func() time.Time
}

// NewOptimizer creates an optimizer.
func NewOptimizer(configs storage.ConfigVersionStore, events storage.LearningEventStore, logger *log.Logger) *Optimizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Optimizer{
		configs: configs,
		events:  events,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply creates the next configuration version from one adopted experiment.
// The current version is never edited; a new version with the adopted value
// is appended and becomes active by being the latest. Returns ErrValidation
// when the experiment was not adopted or the value falls outside the
// parameter's envelope.
func (o *Optimizer) Apply(ctx context.Context, exp *domain.Experiment) (*domain.ConfigVersion, error) {
	if exp.Decision != domain.DecisionAdopt {
		return nil, fmt.Errorf("%w: experiment %s decision is %s, not %s",
			domain.ErrValidation, exp.ExperimentID, exp.Decision, domain.DecisionAdopt)
	}

	b, ok := parameterBounds[exp.Parameter]
	if !ok {
		return nil, fmt.Errorf("%w: no bounds for parameter %q", domain.ErrValidation, exp.Parameter)
	}
	if exp.TestValue < b.Min || exp.TestValue > b.Max {
		return nil, fmt.Errorf("%w: %s value %.4f outside envelope [%.4f, %.4f]",
			domain.ErrValidation, exp.Parameter, exp.TestValue, b.Min, b.Max)
	}

	current, err := o.configs.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active config: %w", err)
	}

	before, _ := current.Params.Get(exp.Parameter)
	params, ok := current.Params.WithParam(exp.Parameter, exp.TestValue)
	if !ok {
		return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrValidation, exp.Parameter)
	}

	now := o.now()
	event := &domain.LearningEvent{
		EventID:     uuid.NewString(),
		EventType:   domain.LearningEventParameterAdjusted,
		Parameter:   exp.Parameter,
		BeforeValue: before,
		AfterValue:  exp.TestValue,
		Justification: fmt.Sprintf("adopted experiment %s (p=%.4f, effect=%.3f)",
			exp.ExperimentID, exp.PValue, exp.EffectSize),
		RefID:     exp.ExperimentID,
		CreatedAt: now,
	}
	// The version lands first: the audit trail must never describe an
	// adjustment that did not take effect.
	version := &domain.ConfigVersion{
		VersionID:     current.VersionID + 1,
		Params:        params,
		CreatedAt:     now,
		SourceEventID: event.EventID,
	}
	if err := o.configs.Insert(ctx, version); err != nil {
		return nil, fmt.Errorf("insert config version: %w", err)
	}
	if err := o.events.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("record adjustment: %w", err)
	}

	observability.SetActiveConfigVersion(version.VersionID)
	o.logger.Printf("config version %d created: %s %.4f -> %.4f",
		version.VersionID, exp.Parameter, before, exp.TestValue)
	return version, nil
}

// ApplyAdopted applies every adopted experiment in a decided batch, in
// order. Non-adopted decisions are skipped; an out-of-envelope adoption is
// logged and skipped rather than failing the batch.
func (o *Optimizer) ApplyAdopted(ctx context.Context, decided []*domain.Experiment) ([]*domain.ConfigVersion, error) {
	var versions []*domain.ConfigVersion
	for _, exp := range decided {
		if exp.Decision != domain.DecisionAdopt {
			continue
		}
		v, err := o.Apply(ctx, exp)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				o.logger.Printf("skip adoption of experiment %s: %v", exp.ExperimentID, err)
				continue
			}
			return versions, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}
