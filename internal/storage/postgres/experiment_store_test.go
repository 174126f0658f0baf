package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"short-options-loop/internal/domain"
	"short-options-loop/internal/storage"
)

func testExperiment(id string) *domain.Experiment {
	return &domain.Experiment{
		ExperimentID: id,
		Parameter:    "profit_target_pct",
		ControlValue: 0.50,
		TestValue:    0.60,
		Hypothesis:   "pattern-123",
		Status:       domain.ExperimentStatusActive,
		SampleBudget: 100,
		CreatedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExperimentStore_IncrementArm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExperimentStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testExperiment("exp-arm")))

	require.NoError(t, store.IncrementArm(ctx, "exp-arm", domain.ArmControl))
	require.NoError(t, store.IncrementArm(ctx, "exp-arm", domain.ArmTest))
	require.NoError(t, store.IncrementArm(ctx, "exp-arm", domain.ArmTest))

	got, err := store.GetByID(ctx, "exp-arm")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ControlSamples)
	assert.Equal(t, 2, got.TestSamples)

	assert.ErrorIs(t, store.IncrementArm(ctx, "exp-arm", "SIDEWAYS"), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.IncrementArm(ctx, "missing", domain.ArmTest), storage.ErrNotFound)
}

func TestExperimentStore_DecideExactlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExperimentStore(pool)
	ctx := context.Background()

	exp := testExperiment("exp-decide")
	require.NoError(t, store.Insert(ctx, exp))

	decidedAt := exp.CreatedAt.Add(30 * 24 * time.Hour)
	exp.PValue = 0.01
	exp.EffectSize = 0.35
	exp.Decision = domain.DecisionAdopt
	exp.Status = domain.ExperimentStatusCompleted
	exp.DecidedAt = &decidedAt
	require.NoError(t, store.Decide(ctx, exp))

	got, err := store.GetByID(ctx, "exp-decide")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAdopt, got.Decision)
	assert.Equal(t, domain.ExperimentStatusCompleted, got.Status)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.Decided())

	// Once decided, the arm counters freeze and the decision is immutable.
	assert.ErrorIs(t, store.IncrementArm(ctx, "exp-decide", domain.ArmTest), storage.ErrInvalidInput)
	exp.Decision = domain.DecisionReject
	assert.ErrorIs(t, store.Decide(ctx, exp), storage.ErrDuplicateKey)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
