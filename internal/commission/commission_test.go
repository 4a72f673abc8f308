package commission

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/smallbiznis/stagepass/internal/affiliate/domain"
	"github.com/stretchr/testify/assert"
)

func TestComputeRoundsEachLevelIndependently(t *testing.T) {
	b := Compute(1000)
	assert.Equal(t, Breakdown{Level1: 25, Level2: 15, Level3: 10, Total: 50}, b)

	// 499 * 2.5% = 12.475 -> 12, 499 * 1.5% = 7.485 -> 7, 499 * 1% = 4.99 -> 5.
	b = Compute(499)
	assert.Equal(t, Breakdown{Level1: 12, Level2: 7, Level3: 5, Total: 24}, b)

	// 1020 * 2.5% = 25.5 rounds half up to 26; 1020 * 1.5% = 15.3 -> 15.
	b = Compute(1020)
	assert.Equal(t, int64(26), b.Level1)
	assert.Equal(t, int64(15), b.Level2)
	assert.Equal(t, int64(10), b.Level3)
}

func TestComputeMatchesPerLevelRoundingForAllPrices(t *testing.T) {
	round := func(p int64, pct string) int64 {
		return decimal.NewFromInt(p).Mul(decimal.RequireFromString(pct)).Round(0).IntPart()
	}
	for p := int64(1); p <= 5000; p++ {
		b := Compute(p)
		assert.Equal(t, round(p, "0.025"), b.Level1, "price %d", p)
		assert.Equal(t, round(p, "0.015"), b.Level2, "price %d", p)
		assert.Equal(t, round(p, "0.01"), b.Level3, "price %d", p)
		assert.Equal(t, b.Level1+b.Level2+b.Level3, b.Total, "price %d", p)
		// Per-level rounding can exceed an exact 5% by at most a cent and a half.
		assert.LessOrEqual(t, b.Total*1000, p*50+1500, "price %d", p)
	}
}

func TestComputeNonPositivePrice(t *testing.T) {
	assert.Equal(t, Breakdown{}, Compute(0))
	assert.Equal(t, Breakdown{}, Compute(-10))
}

func TestPlanFollowsHierarchyDepth(t *testing.T) {
	b := Compute(1000)
	parent := snowflake.ID(2)
	grandparent := snowflake.ID(3)

	solo := Plan(ResolveHierarchy(affiliatedomain.Affiliate{ID: 1}), b)
	assert.Equal(t, []Share{{AffiliateID: 1, Level: 1, Rate: 250, Amount: 25}}, solo)

	full := Plan(ResolveHierarchy(affiliatedomain.Affiliate{
		ID:                     1,
		ParentAffiliateID:      &parent,
		GrandparentAffiliateID: &grandparent,
	}), b)
	assert.Equal(t, []Share{
		{AffiliateID: 1, Level: 1, Rate: 250, Amount: 25},
		{AffiliateID: 2, Level: 2, Rate: 150, Amount: 15},
		{AffiliateID: 3, Level: 3, Rate: 100, Amount: 10},
	}, full)
	assert.Equal(t, b.Total, Sum(full))

	assert.Empty(t, Plan(Hierarchy{}, b))
	assert.Equal(t, int64(0), Rate(4))
}
