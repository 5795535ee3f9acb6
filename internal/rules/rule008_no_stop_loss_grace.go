package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// NoStopLossGrace is RULE-008: a new position must acquire a protective
// stop within a grace period, or the account is force-flattened and locked
// out.
type NoStopLossGrace struct {
	cfg  config.NoStopLossGraceConfig
	deps *Deps
}

func NewNoStopLossGrace(cfg config.NoStopLossGraceConfig, deps *Deps) *NoStopLossGrace {
	return &NoStopLossGrace{cfg: cfg, deps: deps}
}

func (r *NoStopLossGrace) ID() string { return "RULE-008" }

func timerKey(accountID int64, positionID string) string {
	return fmt.Sprintf("no_sl_grace:%d:%s", accountID, positionID)
}

// OnPositionOpened schedules the grace-period timer for a newly observed
// position. The router calls this once per position the first time it sees
// a non-zero size for a position id it has not already scheduled a timer
// for.
func (r *NoStopLossGrace) OnPositionOpened(accountID int64, positionID string, fire func()) {
	if !r.cfg.Enabled {
		return
	}
	key := timerKey(accountID, positionID)
	r.deps.Timers.Schedule(key, time.Now().Add(time.Duration(r.cfg.GracePeriodSec)*time.Second), fire)
}

// OnStopOrderPlaced cancels the grace timer when an opposite-side STOP
// order is observed on the same contract as an open position.
func (r *NoStopLossGrace) OnStopOrderPlaced(accountID int64, positionID string) {
	r.deps.Timers.Cancel(timerKey(accountID, positionID))
}

// CheckTimerFired is called when the grace timer actually fires: if the
// position is still open with no stop order, it is a breach.
func (r *NoStopLossGrace) CheckTimerFired(accountID int64, positionID, contractID string) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	p, ok := r.deps.State.Position(accountID, contractID)
	if !ok || p.Size == 0 {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("position %s had no protective stop after grace period", positionID),
		Terminal: true,
		ObservedMetrics: map[string]any{
			"position_id": positionID,
			"contract_id": contractID,
		},
	}
}

// HasOppositeStop reports whether o is a STOP order on the opposite side of
// an open position, which cancels this rule's grace timer.
func HasOppositeStop(o domain.Order, positionDirection domain.Direction) bool {
	if o.Type != domain.OrderTypeStop && o.Type != domain.OrderTypeStopLimit && o.Type != domain.OrderTypeTrailingStop {
		return false
	}
	wantSide := domain.OrderSideSell
	if positionDirection == domain.DirectionShort {
		wantSide = domain.OrderSideBuy
	}
	return o.Side == wantSide
}

// Enforce flattens the account and locks it out for the configured
// duration.
func (r *NoStopLossGrace) Enforce(ctx context.Context, accountID int64, b Breach) {
	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
	r.deps.Enforcement.CancelAllOrders(ctx, r.ID(), accountID, b.Reason)
	now := time.Now()
	until := now.Add(time.Duration(r.cfg.LockoutDurationSec) * time.Second)
	r.deps.Lockouts.SetLockout(accountID, b.Reason, &until, now)
}
