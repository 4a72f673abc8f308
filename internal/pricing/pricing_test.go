package pricing

import (
	"testing"
	"time"

	"github.com/smallbiznis/stagepass/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return New(config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig()), paris)
}

func TestHappyHourOnlyOnWednesdayEightPM(t *testing.T) {
	r := newResolver(t)
	paris, _ := time.LoadLocation("Europe/Paris")

	// 2026-03-04 is a Wednesday.
	wednesday := time.Date(2026, 3, 4, 20, 0, 0, 0, paris)
	quote, err := r.Resolve(Request{HappyHour: true, Tier: "elite", Slot: wednesday})
	require.NoError(t, err)
	assert.Equal(t, Quote{Price: 499, IsPromo: true}, quote)

	rejected := []time.Time{
		time.Date(2026, 3, 4, 21, 0, 0, 0, paris),
		time.Date(2026, 3, 4, 20, 30, 0, 0, paris),
		time.Date(2026, 3, 5, 20, 0, 0, 0, paris),
		// 20:00 UTC is 21:00 in Paris.
		time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC),
		{},
	}
	for _, slot := range rejected {
		_, err := r.Resolve(Request{HappyHour: true, Tier: "starter", BasePrice: 800, Slot: slot})
		assert.ErrorIs(t, err, ErrHappyHourSlot, "slot %s", slot)
	}
}

func TestHappyHourOverridesTierBounds(t *testing.T) {
	r := newResolver(t)
	paris, _ := time.LoadLocation("Europe/Paris")
	slot := time.Date(2026, 3, 11, 20, 0, 0, 0, paris)

	quote, err := r.Resolve(Request{BasePrice: 99999, HappyHour: true, Tier: "starter", Slot: slot})
	require.NoError(t, err)
	assert.Equal(t, int64(499), quote.Price)
	assert.True(t, r.IsHappyHourSlot(slot))
}

func TestTierBoundsInclusive(t *testing.T) {
	r := newResolver(t)
	cases := []struct {
		tier  string
		price int64
		ok    bool
	}{
		{"starter", 500, true},
		{"starter", 1200, true},
		{"starter", 499, false},
		{"starter", 1201, false},
		{"pro", 800, true},
		{"pro", 1800, true},
		{"pro", 1801, false},
		{"elite", 1200, true},
		{"elite", 2500, true},
		{"elite", 1199, false},
	}
	for _, tc := range cases {
		quote, err := r.Resolve(Request{BasePrice: tc.price, Tier: tc.tier})
		if tc.ok {
			require.NoError(t, err, "%s %d", tc.tier, tc.price)
			assert.Equal(t, Quote{Price: tc.price}, quote)
			continue
		}
		assert.ErrorIs(t, err, ErrPriceOutOfBounds, "%s %d", tc.tier, tc.price)
	}
}

func TestResolveRejectsUnknownTierAndNonPositivePrice(t *testing.T) {
	r := newResolver(t)

	_, err := r.Resolve(Request{BasePrice: 1000, Tier: "platinum"})
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = r.Resolve(Request{BasePrice: 0, Tier: "pro"})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestResolverFollowsReloadedRules(t *testing.T) {
	cfg := config.DefaultSettlementConfig()
	cfg.Pricing.HappyHourWeekday = "friday"
	cfg.Pricing.HappyHourPrice = 399
	r := New(config.NewStaticSettlementConfigHolder(cfg), time.UTC)

	quote, err := r.Resolve(Request{HappyHour: true, Slot: time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, int64(399), quote.Price)
}
