package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// DailyUnrealizedLoss is RULE-004: stops out an account (or a single
// position) once its mark-to-market loss reaches the configured limit.
type DailyUnrealizedLoss struct {
	cfg  config.DailyUnrealizedLossConfig
	deps *Deps
}

func NewDailyUnrealizedLoss(cfg config.DailyUnrealizedLossConfig, deps *Deps) *DailyUnrealizedLoss {
	return &DailyUnrealizedLoss{cfg: cfg, deps: deps}
}

func (r *DailyUnrealizedLoss) ID() string { return "RULE-004" }

// CheckQuote re-evaluates the account's unrealized P&L on every quote
// update for any contract it holds.
func (r *DailyUnrealizedLoss) CheckQuote(accountID int64) *Breach {
	if !r.cfg.Enabled {
		return nil
	}

	if r.cfg.Scope == "per_position" {
		for contractID, pnl := range r.deps.PnL.CalculatePerPosition(accountID) {
			if pnl <= -r.cfg.LossLimit {
				return &Breach{
					RuleID:   r.ID(),
					Reason:   fmt.Sprintf("position %s unrealized P&L %.2f at or below -%.2f limit", contractID, pnl, r.cfg.LossLimit),
					Terminal: false,
					ObservedMetrics: map[string]any{
						"contract_id": contractID,
						"pnl":         pnl,
						"limit":       r.cfg.LossLimit,
					},
				}
			}
		}
		return nil
	}

	unrealized := r.deps.PnL.CalculateUnrealized(accountID)
	if unrealized > -r.cfg.LossLimit {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("total unrealized P&L %.2f at or below -%.2f limit", unrealized, r.cfg.LossLimit),
		Terminal: true,
		ObservedMetrics: map[string]any{
			"unrealized": unrealized,
			"limit":      r.cfg.LossLimit,
		},
	}
}

// Enforce closes the single breaching position (per_position scope) or the
// whole account with an optional lockout (total scope).
func (r *DailyUnrealizedLoss) Enforce(ctx context.Context, accountID int64, b Breach) {
	if r.cfg.Scope == "per_position" {
		contractID, _ := b.ObservedMetrics["contract_id"].(string)
		r.deps.Enforcement.ClosePosition(ctx, r.ID(), accountID, contractID, b.Reason)
		return
	}

	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
	r.deps.Enforcement.CancelAllOrders(ctx, r.ID(), accountID, b.Reason)
	if !r.cfg.LockoutUntilReset {
		return
	}
	now := time.Now()
	until := nextReset(now, r.cfg.ResetTime, r.cfg.Timezone)
	r.deps.Lockouts.SetLockout(accountID, b.Reason, &until, now)
}
