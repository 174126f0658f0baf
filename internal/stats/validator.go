// Package stats provides the shared statistical validator used by pattern
// detection and experiment adjudication. A result is actionable only when
// the sample floor, the (batch-adjusted) significance level, and the effect
// size floor all pass. Significance alone never triggers downstream action.
package stats

import (
	"math"

	"short-options-loop/internal/domain"
)

// Config holds validation thresholds, normally sourced from the active
// ConfigVersion.
type Config struct {
	MinSamples    int     // minimum samples per arm (default 30)
	Alpha         float64 // significance level before batch adjustment
	MinEffectSize float64 // standardized effect floor
}

// DefaultConfig returns conservative defaults for low-sample financial data.
func DefaultConfig() Config {
	return Config{
		MinSamples:    30,
		Alpha:         0.05,
		MinEffectSize: 0.20,
	}
}

// Result is the outcome of one statistical comparison. PValue starts raw;
// AdjustForComparisons rewrites it to the batch-adjusted value and settles
// the Significant flag.
type Result struct {
	Significant bool
	PValue      float64
	EffectSize  float64
	SampleA     int
	SampleB     int
}

// Validator computes significance and effect size for one- and two-sample
// comparisons.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg Config) *Validator {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.05
	}
	return &Validator{cfg: cfg}
}

// Config returns the validator's thresholds.
func (v *Validator) Config() Config {
	return v.cfg
}

// ValidateTwoSample runs Welch's t-test on two independent samples and
// reports Cohen's d. Returns ErrDataInsufficient when either arm is below
// the sample floor; callers skip, never fail, on that error.
func (v *Validator) ValidateTwoSample(a, b []float64) (*Result, error) {
	if len(a) < v.cfg.MinSamples || len(b) < v.cfg.MinSamples {
		return &Result{SampleA: len(a), SampleB: len(b), PValue: 1}, domain.ErrDataInsufficient
	}

	meanA, varA := meanVariance(a)
	meanB, varB := meanVariance(b)
	na, nb := float64(len(a)), float64(len(b))

	seSq := varA/na + varB/nb
	if seSq == 0 {
		// Identical constant samples: no detectable difference.
		return &Result{SampleA: len(a), SampleB: len(b), PValue: 1}, nil
	}

	t := (meanA - meanB) / math.Sqrt(seSq)

	// Welch-Satterthwaite degrees of freedom.
	df := seSq * seSq / ((varA/na)*(varA/na)/(na-1) + (varB/nb)*(varB/nb)/(nb-1))

	p := studentTTwoSided(t, df)
	d := cohensD(meanA, meanB, varA, varB, na, nb)

	r := &Result{
		PValue:     p,
		EffectSize: d,
		SampleA:    len(a),
		SampleB:    len(b),
	}
	r.Significant = v.passes(r)
	return r, nil
}

// ValidateAgainstMean runs a one-sample t-test of the sample against a
// baseline mean. Effect size is the standardized mean difference against
// the sample's own deviation.
func (v *Validator) ValidateAgainstMean(sample []float64, baselineMean float64) (*Result, error) {
	if len(sample) < v.cfg.MinSamples {
		return &Result{SampleA: len(sample), PValue: 1}, domain.ErrDataInsufficient
	}

	mean, variance := meanVariance(sample)
	n := float64(len(sample))

	if variance == 0 {
		p := 1.0
		if mean != baselineMean {
			p = 0.0
		}
		r := &Result{PValue: p, EffectSize: 0, SampleA: len(sample)}
		r.Significant = v.passes(r)
		return r, nil
	}

	sd := math.Sqrt(variance)
	t := (mean - baselineMean) / (sd / math.Sqrt(n))
	p := studentTTwoSided(t, n-1)

	r := &Result{
		PValue:     p,
		EffectSize: (mean - baselineMean) / sd,
		SampleA:    len(sample),
	}
	r.Significant = v.passes(r)
	return r, nil
}

// AdjustForComparisons applies the Benjamini-Hochberg step-up correction
// across the results of one batch, rewriting each PValue to its adjusted
// value and re-settling the Significant flag under the dual gate. Call once
// per detector or adjudication batch with every comparison evaluated in it.
func (v *Validator) AdjustForComparisons(results []*Result) {
	m := len(results)
	if m <= 1 {
		return
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	// Sort indexes by ascending raw p-value.
	for i := 1; i < m; i++ {
		for j := i; j > 0 && results[order[j]].PValue < results[order[j-1]].PValue; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	adjusted := make([]float64, m)
	running := 1.0
	for rank := m - 1; rank >= 0; rank-- {
		idx := order[rank]
		p := results[idx].PValue * float64(m) / float64(rank+1)
		if p < running {
			running = p
		}
		adjusted[idx] = running
	}

	for i, r := range results {
		r.PValue = adjusted[i]
		r.Significant = v.passes(r)
	}
}

// passes applies the dual gate: adjusted significance AND effect floor.
func (v *Validator) passes(r *Result) bool {
	if r.PValue >= v.cfg.Alpha {
		return false
	}
	return math.Abs(r.EffectSize) >= v.cfg.MinEffectSize
}

// meanVariance returns the sample mean and unbiased sample variance.
func meanVariance(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	if n < 2 {
		return mean, 0
	}

	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, ss / (n - 1)
}

// cohensD computes the standardized mean difference with a pooled
// standard deviation.
func cohensD(meanA, meanB, varA, varB, na, nb float64) float64 {
	pooled := ((na-1)*varA + (nb-1)*varB) / (na + nb - 2)
	if pooled <= 0 {
		return 0
	}
	return (meanA - meanB) / math.Sqrt(pooled)
}

// studentTTwoSided returns the two-sided p-value of a t statistic with df
// degrees of freedom, via the regularized incomplete beta function.
func studentTTwoSided(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	return regIncompleteBeta(df/2, 0.5, df/(df+t*t))
}

// regIncompleteBeta computes the regularized incomplete beta function
// I_x(a, b) with the continued-fraction expansion.
func regIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lgA, _ := math.Lgamma(a)
	lgB, _ := math.Lgamma(b)
	lgAB, _ := math.Lgamma(a + b)
	front := math.Exp(lgAB - lgA - lgB + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction evaluates the continued fraction for the incomplete
// beta function by the modified Lentz method.
func betaContinuedFraction(a, b, x float64) float64 {
	const maxIterations = 200
	const epsilon = 3e-14
	const tiny = 1e-30

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}

	return h
}
