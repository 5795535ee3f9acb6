package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/tradecounter"
)

func TestTradeFrequencyLimitNoBreachUnderAllWindows(t *testing.T) {
	h := newHarness()
	r := NewTradeFrequencyLimit(config.TradeFrequencyLimitConfig{Enabled: true, MaxPerMinute: 5, MaxPerHour: 20, MaxPerSession: 50}, h.Deps)
	assert.Nil(t, r.CheckTrade(tradecounter.Counts{Minute: 3, Hour: 10, Session: 20}))
}

func TestTradeFrequencyLimitSessionTakesPriority(t *testing.T) {
	h := newHarness()
	r := NewTradeFrequencyLimit(config.TradeFrequencyLimitConfig{Enabled: true, MaxPerMinute: 5, MaxPerHour: 20, MaxPerSession: 50}, h.Deps)
	b := r.CheckTrade(tradecounter.Counts{Minute: 6, Hour: 21, Session: 51})
	require.NotNil(t, b)
	assert.Equal(t, "per_session", b.ObservedMetrics["breach_type"])
}

func TestTradeFrequencyLimitMinuteBreach(t *testing.T) {
	h := newHarness()
	r := NewTradeFrequencyLimit(config.TradeFrequencyLimitConfig{Enabled: true, MaxPerMinute: 5}, h.Deps)
	b := r.CheckTrade(tradecounter.Counts{Minute: 6})
	require.NotNil(t, b)
	assert.Equal(t, "per_minute", b.ObservedMetrics["breach_type"])
}

func TestTradeFrequencyLimitEnforceInstallsCooldown(t *testing.T) {
	h := newHarness()
	r := NewTradeFrequencyLimit(config.TradeFrequencyLimitConfig{Enabled: true, MaxPerMinute: 5, CooldownMinute: 30}, h.Deps)
	b := r.CheckTrade(tradecounter.Counts{Minute: 6})
	require.NotNil(t, b)

	r.Enforce(context.Background(), 1, *b)
	assert.True(t, h.Deps.Lockouts.IsLockedOut(1, time.Now()))

	l, ok := h.Deps.Lockouts.AccountLockout(1)
	require.True(t, ok)
	require.NotNil(t, l.Until)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), *l.Until, 2*time.Second)
}

func TestTradeFrequencyLimitEnforceDefaultsCooldownWhenUnset(t *testing.T) {
	h := newHarness()
	r := NewTradeFrequencyLimit(config.TradeFrequencyLimitConfig{Enabled: true, MaxPerMinute: 5}, h.Deps)
	b := r.CheckTrade(tradecounter.Counts{Minute: 6})
	require.NotNil(t, b)

	r.Enforce(context.Background(), 1, *b)
	l, ok := h.Deps.Lockouts.AccountLockout(1)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), *l.Until, 2*time.Second)
}
