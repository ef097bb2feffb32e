package quota

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kronos-crm/backend/internal/models"
)

type fixedCounter map[Entity]int

func (f fixedCounter) CountByOrg(_ context.Context, _ uuid.UUID, e Entity) (int, error) {
	return f[e], nil
}

type fixedPlan models.PlanTier

func (f fixedPlan) PlanForOrg(_ context.Context, _ uuid.UUID) (models.PlanTier, error) {
	return models.PlanTier(f), nil
}

func TestWithinQuotaBoundary(t *testing.T) {
	// Free tier caps contacts at 100. At 99 a create fits, at 100 it does not.
	u := NewUsage(EntityContact, 99, 100)
	assert.True(t, u.WithinQuota)

	u = NewUsage(EntityContact, 100, 100)
	assert.False(t, u.WithinQuota)

	u = NewUsage(EntityContact, 150, 100)
	assert.False(t, u.WithinQuota)
}

func TestUnlimitedSentinel(t *testing.T) {
	u := NewUsage(EntityContact, 1_000_000, Unlimited)
	assert.True(t, u.WithinQuota)
	assert.Nil(t, u.Percent)
}

func TestPercentRounding(t *testing.T) {
	u := NewUsage(EntityDeal, 1, 3)
	require.NotNil(t, u.Percent)
	assert.Equal(t, 33, *u.Percent)

	u = NewUsage(EntityDeal, 2, 3)
	require.NotNil(t, u.Percent)
	assert.Equal(t, 67, *u.Percent)

	u = NewUsage(EntityDeal, 0, 25)
	require.NotNil(t, u.Percent)
	assert.Equal(t, 0, *u.Percent)

	u = NewUsage(EntityDeal, 25, 25)
	require.NotNil(t, u.Percent)
	assert.Equal(t, 100, *u.Percent)
}

func TestLimitForUnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, LimitFor(models.PlanFree, EntityContact), LimitFor(models.PlanTier("enterprise"), EntityContact))
	assert.Equal(t, LimitFor(models.PlanFree, EntityMember), LimitFor(models.PlanTier(""), EntityMember))
}

func TestLimitForScaleIsUnlimited(t *testing.T) {
	for _, e := range Entities {
		assert.Equal(t, Unlimited, LimitFor(models.PlanScale, e))
	}
}

func TestCheckerCheck(t *testing.T) {
	checker := NewChecker(fixedCounter{EntityAgent: 1}, fixedPlan(models.PlanFree))

	u, err := checker.Check(context.Background(), uuid.New(), EntityAgent)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Current)
	assert.Equal(t, 1, u.Limit)
	assert.False(t, u.WithinQuota)
}

func TestCheckerReportCoversAllEntities(t *testing.T) {
	checker := NewChecker(fixedCounter{}, fixedPlan(models.PlanStarter))

	report, err := checker.Report(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, report, len(Entities))
	seen := make(map[Entity]bool)
	for _, u := range report {
		seen[u.Entity] = true
		assert.True(t, u.WithinQuota)
	}
	for _, e := range Entities {
		assert.True(t, seen[e], "missing %s in report", e)
	}
}

func TestExceededCarriesNumbers(t *testing.T) {
	u := NewUsage(EntityInbox, 1, 1)
	err := u.Exceeded()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inbox")
	assert.Contains(t, err.Error(), "1/1")
}
