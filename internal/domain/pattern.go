package domain

import "time"

// Pattern lifecycle statuses. Patterns are living hypotheses: an active
// pattern that fails re-validation on fresh data becomes invalidated, and a
// re-detection with materially different statistics supersedes the old one.
const (
	PatternStatusActive      = "ACTIVE"
	PatternStatusInvalidated = "INVALIDATED"
	PatternStatusSuperseded  = "SUPERSEDED"
)

// Partition dimensions for pattern detection.
const (
	DimensionOTMBucket = "OTM_BUCKET"
	DimensionDTEBucket = "DTE_BUCKET"
	DimensionSector    = "SECTOR"
	DimensionRegime    = "REGIME"
	DimensionDayOfWeek = "DAY_OF_WEEK"
)

// Pattern is a detected regularity in closed-trade outcomes for one bucket
// of one dimension, validated against the all-trade baseline.
type Pattern struct {
	PatternID  string
	Dimension  string
	Bucket     string
	SampleSize int
	WinRate    float64
	AvgROI     float64
	Confidence float64 // 1 - adjusted p-value, capped at [0,1]
	PValue     float64 // adjusted for the batch of simultaneous comparisons
	EffectSize float64
	Status     string
	DetectedAt time.Time
	UpdatedAt  time.Time
}

// MateriallyDiffers reports whether re-detected statistics changed enough to
// supersede an existing pattern rather than leave it in place.
func (p *Pattern) MateriallyDiffers(other *Pattern) bool {
	const winRateTol = 0.05
	const roiTol = 0.10
	return abs(p.WinRate-other.WinRate) > winRateTol || abs(p.AvgROI-other.AvgROI) > roiTol
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
