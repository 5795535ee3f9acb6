package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

func TestDailyRealizedLossNoBreachAtLimit(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.Deps.PnL.AddTradePnL(1, "2026-07-31", -500))

	r := NewDailyRealizedLoss(config.DailyRealizedLossConfig{Enabled: true, Limit: 500}, h.Deps)
	assert.Nil(t, r.CheckTrade(1))
}

func TestDailyRealizedLossBreachStrictlyBelow(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.Deps.PnL.AddTradePnL(1, "2026-07-31", -500.01))

	r := NewDailyRealizedLoss(config.DailyRealizedLossConfig{Enabled: true, Limit: 500}, h.Deps)
	b := r.CheckTrade(1)
	require.NotNil(t, b)
	assert.True(t, b.Terminal)
}

func TestDailyRealizedLossEnforceLocksUntilReset(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.Deps.PnL.AddTradePnL(1, "2026-07-31", -600))

	r := NewDailyRealizedLoss(config.DailyRealizedLossConfig{
		Enabled:           true,
		Limit:             500,
		LockoutUntilReset: true,
		ResetTime:         "17:00",
		Timezone:          "UTC",
	}, h.Deps)

	b := r.CheckTrade(1)
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	assert.True(t, h.Deps.Lockouts.IsLockedOut(1, time.Now()))
}

func TestDailyRealizedLossEnforceWithoutLockoutFlag(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.Deps.PnL.AddTradePnL(1, "2026-07-31", -600))

	r := NewDailyRealizedLoss(config.DailyRealizedLossConfig{Enabled: true, Limit: 500}, h.Deps)
	b := r.CheckTrade(1)
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	assert.False(t, h.Deps.Lockouts.IsLockedOut(1, time.Now()))
}
