// Package learning orchestrates one batch learning pass: pattern scan,
// experiment proposal, adjudication, and parameter adoption. The runner is
// invoked on a schedule by the server and once by the learn command; it
// never touches live positions, only the closed-trade ledger.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/experiment"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/optimizer"
	"short-options-loop/internal/pattern"
	"short-options-loop/internal/storage"
)

// Summary is the outcome of one learning pass.
type Summary struct {
	WindowStart        time.Time
	WindowEnd          time.Time
	PatternsDetected   []*domain.Pattern
	ExperimentsStarted []*domain.Experiment
	Decided            []*domain.Experiment
	NewVersions        []*domain.ConfigVersion
}

// Runner executes batch learning passes.
type Runner struct {
	detector  *pattern.Detector
	engine    *experiment.Engine
	optimizer *optimizer.Optimizer
	configs   storage.ConfigVersionStore
	events    storage.LearningEventStore
	logger    *log.Logger
	now       func() time.Time
}

// NewRunner creates a runner. The config store supplies the active parameter
// set that pattern-driven experiment proposals take their control values from.
func NewRunner(d *pattern.Detector, e *experiment.Engine, o *optimizer.Optimizer, configs storage.ConfigVersionStore, events storage.LearningEventStore, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		detector:  d,
		engine:    e,
		optimizer: o,
		configs:   configs,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one full pass over the closed trades of the trailing window.
// Insufficient data is a skip, not a failure: the loop keeps trading on the
// current configuration until enough evidence accrues.
func (r *Runner) Run(ctx context.Context, window time.Duration) (*Summary, error) {
	end := r.now()
	start := end.Add(-window)
	s := &Summary{WindowStart: start, WindowEnd: end}

	began := time.Now()
	patterns, err := r.detector.Scan(ctx, start, end)
	switch {
	case errors.Is(err, domain.ErrDataInsufficient):
		r.logger.Printf("pattern scan skipped: %v", err)
		observability.RecordLearningRun("pattern_scan", "skipped", time.Since(began).Seconds())
	case err != nil:
		observability.RecordLearningRun("pattern_scan", "error", time.Since(began).Seconds())
		return s, fmt.Errorf("pattern scan: %w", err)
	default:
		s.PatternsDetected = patterns
		observability.RecordLearningRun("pattern_scan", "ok", time.Since(began).Seconds())
	}

	if len(s.PatternsDetected) > 0 {
		started, err := r.proposeExperiments(ctx, s.PatternsDetected)
		if err != nil {
			return s, fmt.Errorf("experiment proposal: %w", err)
		}
		s.ExperimentsStarted = started
	}

	began = time.Now()
	decided, err := r.engine.AdjudicateAll(ctx)
	if err != nil {
		observability.RecordLearningRun("adjudication", "error", time.Since(began).Seconds())
		return s, fmt.Errorf("adjudication: %w", err)
	}
	s.Decided = decided
	observability.RecordLearningRun("adjudication", "ok", time.Since(began).Seconds())

	began = time.Now()
	versions, err := r.optimizer.ApplyAdopted(ctx, decided)
	if err != nil {
		observability.RecordLearningRun("adoption", "error", time.Since(began).Seconds())
		return s, fmt.Errorf("adoption: %w", err)
	}
	s.NewVersions = versions
	observability.RecordLearningRun("adoption", "ok", time.Since(began).Seconds())

	observability.DefaultMetrics.LastSuccessfulLearningRun.Set(float64(end.Unix()))
	r.logger.Printf("learning pass done: %d patterns, %d experiments started, %d decisions, %d new versions",
		len(s.PatternsDetected), len(s.ExperimentsStarted), len(s.Decided), len(s.NewVersions))
	return s, nil
}

// proposeExperiments turns freshly detected patterns into controlled
// experiments. A pattern only ever supplies the hypothesis; the parameter
// change it suggests must still win its experiment before adoption.
func (r *Runner) proposeExperiments(ctx context.Context, patterns []*domain.Pattern) ([]*domain.Experiment, error) {
	current, err := r.configs.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active config: %w", err)
	}
	params := current.Params

	var started []*domain.Experiment
	for _, p := range patterns {
		parameter, testValue, ok := experimentCandidate(p, params)
		if !ok {
			continue
		}
		controlValue, ok := params.Get(parameter)
		if !ok || testValue == controlValue {
			continue
		}

		budget := 4 * params.MinSamplesForLearning
		exp, err := r.engine.Start(ctx, parameter, controlValue, testValue, p.PatternID, budget)
		if err != nil {
			// One active experiment per parameter; a pattern whose
			// parameter is already under test waits for that experiment
			// to settle and may re-surface on a later scan.
			if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, domain.ErrValidation) {
				r.logger.Printf("pattern %s not testable now: %v", p.PatternID, err)
				continue
			}
			return started, err
		}
		started = append(started, exp)
		r.logger.Printf("experiment proposed from pattern %s/%s: %s %.4f -> %.4f",
			p.Dimension, p.Bucket, parameter, controlValue, testValue)
	}
	return started, nil
}

// experimentCandidate maps one pattern to the single parameter change worth
// testing. Bucket dimensions steer their own parameter toward the bucket
// that outperforms; for the observational dimensions the direction of the
// edge picks between loosening the profit target and tightening the stop.
func experimentCandidate(p *domain.Pattern, params domain.StrategyParams) (string, float64, bool) {
	switch p.Dimension {
	case domain.DimensionOTMBucket:
		if p.EffectSize <= 0 {
			return "", 0, false
		}
		if v, ok := otmBucketTarget(p.Bucket); ok {
			return "otm_target_pct", v, true
		}
	case domain.DimensionDTEBucket:
		if p.EffectSize <= 0 {
			return "", 0, false
		}
		if v, ok := dteBucketTarget(p.Bucket); ok {
			return "dte_target", v, true
		}
	case domain.DimensionRegime, domain.DimensionSector, domain.DimensionDayOfWeek:
		if p.EffectSize > 0 {
			return "profit_target_pct", clampToEnvelope("profit_target_pct", params.ProfitTargetPct*1.2), true
		}
		return "stop_loss_pct", clampToEnvelope("stop_loss_pct", params.StopLossPct*0.75), true
	}
	return "", 0, false
}

// otmBucketTarget returns the representative strike distance of one OTM
// bucket. Labels match the detector's partitioning.
func otmBucketTarget(bucket string) (float64, bool) {
	switch bucket {
	case "<3%":
		return 0.02, true
	case "3-7%":
		return 0.05, true
	case ">=7%":
		return 0.08, true
	}
	return 0, false
}

// dteBucketTarget returns the representative days to expiration of one DTE
// bucket.
func dteBucketTarget(bucket string) (float64, bool) {
	switch bucket {
	case "0-3":
		return 2, true
	case "4-7":
		return 5, true
	case "8-14":
		return 10, true
	case "15+":
		return 21, true
	}
	return 0, false
}

func clampToEnvelope(parameter string, value float64) float64 {
	lo, hi, ok := optimizer.Envelope(parameter)
	if !ok {
		return value
	}
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// RunEvery executes passes on a fixed interval until the context ends.
func (r *Runner) RunEvery(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, window); err != nil {
				r.logger.Printf("learning pass failed: %v", err)
			}
		}
	}
}

// History returns the learning audit trail for a time range.
func (r *Runner) History(ctx context.Context, start, end time.Time) ([]*domain.LearningEvent, error) {
	return r.events.GetByTimeRange(ctx, start, end)
}
