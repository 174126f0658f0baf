package stats

import (
	"errors"
	"math"
	"testing"

	"short-options-loop/internal/domain"
)

// sample builds n values around a mean with a small alternating spread so
// variance is nonzero but controlled.
func sample(n int, mean, spread float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = mean + spread
		} else {
			out[i] = mean - spread
		}
	}
	return out
}

func TestValidateTwoSample_BelowSampleFloor(t *testing.T) {
	v := NewValidator(DefaultConfig())

	// 29 per arm is one short of the floor. A huge observed difference must
	// still be non-actionable.
	r, err := v.ValidateTwoSample(sample(29, 1.0, 0.01), sample(29, -1.0, 0.01))
	if !errors.Is(err, domain.ErrDataInsufficient) {
		t.Fatalf("expected ErrDataInsufficient, got %v", err)
	}
	if r.Significant {
		t.Error("insufficient sample must never be significant")
	}
}

func TestValidateTwoSample_DetectsRealDifference(t *testing.T) {
	v := NewValidator(DefaultConfig())

	a := sample(40, 0.30, 0.20)
	b := sample(40, 0.05, 0.20)

	r, err := v.ValidateTwoSample(a, b)
	if err != nil {
		t.Fatalf("ValidateTwoSample failed: %v", err)
	}
	if !r.Significant {
		t.Errorf("expected significance: p=%v effect=%v", r.PValue, r.EffectSize)
	}
	if r.EffectSize <= 0 {
		t.Errorf("effect size should favor sample a, got %v", r.EffectSize)
	}
	if r.PValue >= 0.05 {
		t.Errorf("p-value too high: %v", r.PValue)
	}
}

func TestValidateTwoSample_NoDifference(t *testing.T) {
	v := NewValidator(DefaultConfig())

	r, err := v.ValidateTwoSample(sample(50, 0.10, 0.20), sample(50, 0.10, 0.20))
	if err != nil {
		t.Fatalf("ValidateTwoSample failed: %v", err)
	}
	if r.Significant {
		t.Errorf("identical distributions flagged significant: p=%v", r.PValue)
	}
}

func TestValidateTwoSample_EffectFloorGate(t *testing.T) {
	// Large samples make a trivial difference statistically significant; the
	// effect floor must still block it.
	v := NewValidator(Config{MinSamples: 30, Alpha: 0.05, MinEffectSize: 0.50})

	a := sample(500, 0.105, 0.05)
	b := sample(500, 0.100, 0.05)

	r, err := v.ValidateTwoSample(a, b)
	if err != nil {
		t.Fatalf("ValidateTwoSample failed: %v", err)
	}
	if math.Abs(r.EffectSize) >= 0.50 {
		t.Skipf("effect size unexpectedly large: %v", r.EffectSize)
	}
	if r.Significant {
		t.Error("tiny effect passed despite effect-size floor")
	}
}

func TestValidateAgainstMean(t *testing.T) {
	v := NewValidator(DefaultConfig())

	r, err := v.ValidateAgainstMean(sample(40, 0.50, 0.25), 0.10)
	if err != nil {
		t.Fatalf("ValidateAgainstMean failed: %v", err)
	}
	if !r.Significant {
		t.Errorf("bucket well above baseline not significant: p=%v effect=%v", r.PValue, r.EffectSize)
	}

	if _, err := v.ValidateAgainstMean(sample(10, 0.50, 0.25), 0.10); !errors.Is(err, domain.ErrDataInsufficient) {
		t.Fatalf("expected ErrDataInsufficient, got %v", err)
	}
}

func TestAdjustForComparisons(t *testing.T) {
	v := NewValidator(DefaultConfig())

	results := []*Result{
		{PValue: 0.001, EffectSize: 0.5},
		{PValue: 0.010, EffectSize: 0.5},
		{PValue: 0.030, EffectSize: 0.5},
		{PValue: 0.040, EffectSize: 0.5},
		{PValue: 0.800, EffectSize: 0.5},
	}
	v.AdjustForComparisons(results)

	// Benjamini-Hochberg: adjusted p = p * m / rank, with the running
	// minimum enforced from the highest rank down.
	wantAdjusted := []float64{0.005, 0.025, 0.050, 0.050, 0.800}
	for i, want := range wantAdjusted {
		if math.Abs(results[i].PValue-want) > 1e-9 {
			t.Errorf("result %d: adjusted p = %v, want %v", i, results[i].PValue, want)
		}
	}

	// Only the comparisons whose adjusted p clears alpha stay significant.
	for i, wantSig := range []bool{true, true, false, false, false} {
		if results[i].Significant != wantSig {
			t.Errorf("result %d: significant = %v, want %v", i, results[i].Significant, wantSig)
		}
	}
}

func TestStudentTTwoSided_KnownValues(t *testing.T) {
	cases := []struct {
		t    float64
		df   float64
		want float64
	}{
		{0, 10, 1.0},
		{2.228, 10, 0.05}, // critical value of t(10) at alpha 0.05
		{1.96, 1e6, 0.05}, // converges to the normal distribution
	}
	for _, c := range cases {
		got := studentTTwoSided(c.t, c.df)
		if math.Abs(got-c.want) > 5e-4 {
			t.Errorf("studentTTwoSided(%v, %v) = %v, want ~%v", c.t, c.df, got, c.want)
		}
	}
}
