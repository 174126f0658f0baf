// Package pattern detects regularities in closed-trade outcomes. Trades are
// partitioned along fixed dimensions, each bucket's ROI distribution is
// tested against the all-trade baseline, and the batch of comparisons is
// corrected before any bucket is allowed to become an active pattern.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/idhash"
	"short-options-loop/internal/observability"
	"short-options-loop/internal/stats"
	"short-options-loop/internal/storage"
)

// Detector runs pattern scans over the closed-trade ledger.
type Detector struct {
	trades    storage.TradeStore
	patterns  storage.PatternStore
	events    storage.LearningEventStore
	validator *stats.Validator
	logger    *log.Logger
	now       func() time.Time
}

// NewDetector creates a detector.
func NewDetector(trades storage.TradeStore, patterns storage.PatternStore, events storage.LearningEventStore, validator *stats.Validator, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{
		trades:    trades,
		patterns:  patterns,
		events:    events,
		validator: validator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// candidate is one bucket under evaluation in the current scan.
type candidate struct {
	dimension string
	bucket    string
	trades    []*domain.Trade
	result    *stats.Result
}

// Scan partitions closed trades in [start, end) along every dimension,
// validates each bucket against the baseline mean ROI, and reconciles the
// outcome with the set of active patterns: new significant buckets become
// active patterns, materially changed ones supersede their predecessors,
// and previously active buckets that fail on fresh data are invalidated.
// It returns the patterns inserted by this scan.
func (d *Detector) Scan(ctx context.Context, start, end time.Time) ([]*domain.Pattern, error) {
	closed, err := d.trades.GetClosed(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load closed trades: %w", err)
	}

	minSamples := d.validator.Config().MinSamples
	if len(closed) < minSamples {
		return nil, fmt.Errorf("%w: %d closed trades, need %d", domain.ErrDataInsufficient, len(closed), minSamples)
	}

	baseline := 0.0
	for _, t := range closed {
		baseline += t.ProfitPct
	}
	baseline /= float64(len(closed))

	buckets := partition(closed)

	// Evaluate every bucket at or above the sample floor, then correct the
	// whole batch at once. Buckets below the floor are skipped, not failed.
	var candidates []*candidate
	var results []*stats.Result
	for dim, byBucket := range buckets {
		for bucket, ts := range byBucket {
			if len(ts) < minSamples {
				continue
			}
			rois := make([]float64, len(ts))
			for i, t := range ts {
				rois[i] = t.ProfitPct
			}
			r, err := d.validator.ValidateAgainstMean(rois, baseline)
			if err != nil {
				if errors.Is(err, domain.ErrDataInsufficient) {
					continue
				}
				return nil, err
			}
			candidates = append(candidates, &candidate{dimension: dim, bucket: bucket, trades: ts, result: r})
			results = append(results, r)
		}
	}
	d.validator.AdjustForComparisons(results)

	active, err := d.patterns.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active patterns: %w", err)
	}
	activeByKey := make(map[string]*domain.Pattern, len(active))
	for _, p := range active {
		activeByKey[p.Dimension+"|"+p.Bucket] = p
	}

	now := d.now()
	var inserted []*domain.Pattern

	for _, c := range candidates {
		key := c.dimension + "|" + c.bucket
		existing := activeByKey[key]
		delete(activeByKey, key)

		if !c.result.Significant {
			if existing != nil {
				if err := d.invalidate(ctx, existing, c.result, now); err != nil {
					return nil, err
				}
			}
			continue
		}

		p := d.buildPattern(c, baseline, now)

		if existing != nil && !p.MateriallyDiffers(existing) {
			// Same regularity, statistics within tolerance: keep the
			// existing pattern in place.
			continue
		}

		if existing != nil {
			if err := d.patterns.UpdateStatus(ctx, existing.PatternID, domain.PatternStatusSuperseded); err != nil {
				return nil, fmt.Errorf("supersede pattern %s: %w", existing.PatternID, err)
			}
		}

		if err := d.patterns.Insert(ctx, p); err != nil {
			return nil, fmt.Errorf("insert pattern: %w", err)
		}
		if err := d.recordDetected(ctx, p, existing, baseline, now); err != nil {
			return nil, err
		}

		observability.RecordPatternDetected()
		inserted = append(inserted, p)
		d.logger.Printf("pattern detected: %s/%s winRate=%.2f avgROI=%.3f p=%.4f n=%d",
			p.Dimension, p.Bucket, p.WinRate, p.AvgROI, p.PValue, p.SampleSize)
	}

	// Active patterns whose bucket was never evaluated this scan (too few
	// fresh samples) stay active; absence of data is not counter-evidence.
	return inserted, nil
}

func (d *Detector) buildPattern(c *candidate, baseline float64, now time.Time) *domain.Pattern {
	wins := 0
	roiSum := 0.0
	for _, t := range c.trades {
		if t.Won() {
			wins++
		}
		roiSum += t.ProfitPct
	}

	confidence := 1 - c.result.PValue
	if confidence < 0 {
		confidence = 0
	}

	return &domain.Pattern{
		PatternID:  idhash.ComputePatternID(c.dimension, c.bucket, now),
		Dimension:  c.dimension,
		Bucket:     c.bucket,
		SampleSize: len(c.trades),
		WinRate:    float64(wins) / float64(len(c.trades)),
		AvgROI:     roiSum / float64(len(c.trades)),
		Confidence: confidence,
		PValue:     c.result.PValue,
		EffectSize: c.result.EffectSize,
		Status:     domain.PatternStatusActive,
		DetectedAt: now,
		UpdatedAt:  now,
	}
}

// invalidate retires an active pattern that failed re-validation.
func (d *Detector) invalidate(ctx context.Context, p *domain.Pattern, r *stats.Result, now time.Time) error {
	if err := d.patterns.UpdateStatus(ctx, p.PatternID, domain.PatternStatusInvalidated); err != nil {
		return fmt.Errorf("invalidate pattern %s: %w", p.PatternID, err)
	}

	e := &domain.LearningEvent{
		EventID:     uuid.NewString(),
		EventType:   domain.LearningEventPatternInvalidated,
		BeforeValue: p.AvgROI,
		AfterValue:  0,
		Justification: fmt.Sprintf("%s/%s failed re-validation on fresh data (adjusted p=%.4f, effect=%.3f, n=%d)",
			p.Dimension, p.Bucket, r.PValue, r.EffectSize, r.SampleA),
		RefID:     p.PatternID,
		CreatedAt: now,
	}
	if err := d.events.Insert(ctx, e); err != nil {
		return fmt.Errorf("record invalidation: %w", err)
	}

	observability.RecordPatternInvalidated()
	d.logger.Printf("pattern invalidated: %s/%s (adjusted p=%.4f)", p.Dimension, p.Bucket, r.PValue)
	return nil
}

func (d *Detector) recordDetected(ctx context.Context, p *domain.Pattern, superseded *domain.Pattern, baseline float64, now time.Time) error {
	justification := fmt.Sprintf("%s/%s avgROI %.3f vs baseline %.3f (adjusted p=%.4f, effect=%.3f, n=%d)",
		p.Dimension, p.Bucket, p.AvgROI, baseline, p.PValue, p.EffectSize, p.SampleSize)
	if superseded != nil {
		justification += fmt.Sprintf("; supersedes %s", superseded.PatternID)
	}

	e := &domain.LearningEvent{
		EventID:       uuid.NewString(),
		EventType:     domain.LearningEventPatternDetected,
		BeforeValue:   baseline,
		AfterValue:    p.AvgROI,
		Justification: justification,
		RefID:         p.PatternID,
		CreatedAt:     now,
	}
	if err := d.events.Insert(ctx, e); err != nil {
		return fmt.Errorf("record detection: %w", err)
	}
	return nil
}

// partition groups closed trades into buckets along every dimension.
func partition(trades []*domain.Trade) map[string]map[string][]*domain.Trade {
	out := map[string]map[string][]*domain.Trade{
		domain.DimensionOTMBucket: {},
		domain.DimensionDTEBucket: {},
		domain.DimensionSector:    {},
		domain.DimensionRegime:    {},
		domain.DimensionDayOfWeek: {},
	}

	add := func(dim, bucket string, t *domain.Trade) {
		out[dim][bucket] = append(out[dim][bucket], t)
	}

	for _, t := range trades {
		add(domain.DimensionOTMBucket, otmBucket(t.OTMPct), t)
		add(domain.DimensionDTEBucket, dteBucket(t.DTE), t)
		add(domain.DimensionSector, sectorBucket(t.Instrument.Sector), t)
		add(domain.DimensionRegime, regimeBucket(t.EntryMarket.Regime), t)
		add(domain.DimensionDayOfWeek, t.EntryTime.Weekday().String(), t)
	}
	return out
}

func otmBucket(pct float64) string {
	switch {
	case pct < 0.03:
		return "<3%"
	case pct < 0.07:
		return "3-7%"
	default:
		return ">=7%"
	}
}

func dteBucket(dte int) string {
	switch {
	case dte <= 3:
		return "0-3"
	case dte <= 7:
		return "4-7"
	case dte <= 14:
		return "8-14"
	default:
		return "15+"
	}
}

func sectorBucket(sector string) string {
	if sector == "" {
		return "UNKNOWN"
	}
	return sector
}

func regimeBucket(regime string) string {
	if regime == "" {
		return domain.RegimeNeutral
	}
	return regime
}
