package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

func TestNoStopLossGraceTimerFiresWithoutStop(t *testing.T) {
	h := newHarness()
	h.State.ApplyPosition(domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Size: 1, Direction: domain.DirectionLong})

	r := NewNoStopLossGrace(config.NoStopLossGraceConfig{Enabled: true, GracePeriodSec: 1, LockoutDurationSec: 60}, h.Deps)

	fired := make(chan struct{})
	r.OnPositionOpened(1, "pos-1", func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("grace timer never fired")
	}

	b := r.CheckTimerFired(1, "pos-1", "CON.F.US.MNQ.U25")
	require.NotNil(t, b)
	assert.True(t, b.Terminal)
}

func TestNoStopLossGraceTimerCancelledWhenStopPlaced(t *testing.T) {
	h := newHarness()
	r := NewNoStopLossGrace(config.NoStopLossGraceConfig{Enabled: true, GracePeriodSec: 1, LockoutDurationSec: 60}, h.Deps)

	r.OnPositionOpened(1, "pos-1", func() { t.Fatal("should not fire after cancel") })
	r.OnStopOrderPlaced(1, "pos-1")

	assert.False(t, h.Deps.Timers.Has(timerKey(1, "pos-1")))
}

func TestNoStopLossGraceNoBreachWhenPositionAlreadyClosed(t *testing.T) {
	h := newHarness()
	r := NewNoStopLossGrace(config.NoStopLossGraceConfig{Enabled: true}, h.Deps)
	assert.Nil(t, r.CheckTimerFired(1, "pos-1", "CON.F.US.MNQ.U25"))
}

func TestHasOppositeStopMatchesOppositeSideStopOrder(t *testing.T) {
	assert.True(t, HasOppositeStop(domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideSell}, domain.DirectionLong))
	assert.False(t, HasOppositeStop(domain.Order{Type: domain.OrderTypeStop, Side: domain.OrderSideBuy}, domain.DirectionLong))
	assert.False(t, HasOppositeStop(domain.Order{Type: domain.OrderTypeLimit, Side: domain.OrderSideSell}, domain.DirectionLong))
	assert.True(t, HasOppositeStop(domain.Order{Type: domain.OrderTypeTrailingStop, Side: domain.OrderSideBuy}, domain.DirectionShort))
}

func TestNoStopLossGraceEnforceLocksOutForConfiguredDuration(t *testing.T) {
	h := newHarness()
	h.State.ApplyPosition(domain.Position{AccountID: 1, ContractID: "CON.F.US.MNQ.U25", Size: 1, Direction: domain.DirectionLong})
	r := NewNoStopLossGrace(config.NoStopLossGraceConfig{Enabled: true, LockoutDurationSec: 120}, h.Deps)

	b := r.CheckTimerFired(1, "pos-1", "CON.F.US.MNQ.U25")
	require.NotNil(t, b)
	r.Enforce(context.Background(), 1, *b)

	assert.Equal(t, []string{"CON.F.US.MNQ.U25"}, h.Broker.closed)
	l, ok := h.Deps.Lockouts.AccountLockout(1)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), *l.Until, 2*time.Second)
}
