package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// MaxUnrealizedProfit is RULE-005: locks in gains, either by closing out
// once a profit target is reached or by closing a position back at
// breakeven after it has been in profit.
type MaxUnrealizedProfit struct {
	cfg  config.MaxUnrealizedProfitConfig
	deps *Deps

	everProfitable map[int64]map[string]bool // accountID -> contractID -> has been > 0 since last close
}

func NewMaxUnrealizedProfit(cfg config.MaxUnrealizedProfitConfig, deps *Deps) *MaxUnrealizedProfit {
	return &MaxUnrealizedProfit{
		cfg:            cfg,
		deps:           deps,
		everProfitable: make(map[int64]map[string]bool),
	}
}

func (r *MaxUnrealizedProfit) ID() string { return "RULE-005" }

// CheckQuote re-evaluates on every quote update for a contract the account
// holds.
func (r *MaxUnrealizedProfit) CheckQuote(accountID int64) *Breach {
	if !r.cfg.Enabled {
		return nil
	}

	if r.cfg.Mode == "breakeven" {
		return r.checkBreakeven(accountID)
	}
	return r.checkProfitTarget(accountID)
}

func (r *MaxUnrealizedProfit) checkProfitTarget(accountID int64) *Breach {
	if r.cfg.Scope == "per_position" {
		for contractID, pnl := range r.deps.PnL.CalculatePerPosition(accountID) {
			if pnl >= r.cfg.Target {
				return &Breach{
					RuleID: r.ID(),
					Reason: fmt.Sprintf("position %s unrealized profit %.2f reached target %.2f", contractID, pnl, r.cfg.Target),
					ObservedMetrics: map[string]any{
						"contract_id": contractID,
						"pnl":         pnl,
					},
				}
			}
		}
		return nil
	}

	unrealized := r.deps.PnL.CalculateUnrealized(accountID)
	if unrealized < r.cfg.Target {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("total unrealized profit %.2f reached target %.2f", unrealized, r.cfg.Target),
		Terminal: true,
		ObservedMetrics: map[string]any{
			"unrealized": unrealized,
		},
	}
}

// checkBreakeven closes a position once it has been in profit and its P&L
// crosses back down to exactly zero.
func (r *MaxUnrealizedProfit) checkBreakeven(accountID int64) *Breach {
	seen, ok := r.everProfitable[accountID]
	if !ok {
		seen = make(map[string]bool)
		r.everProfitable[accountID] = seen
	}

	for contractID, pnl := range r.deps.PnL.CalculatePerPosition(accountID) {
		if pnl > 0 {
			seen[contractID] = true
			continue
		}
		if pnl == 0 && seen[contractID] {
			delete(seen, contractID)
			return &Breach{
				RuleID: r.ID(),
				Reason: fmt.Sprintf("position %s returned to breakeven after profit", contractID),
				ObservedMetrics: map[string]any{
					"contract_id": contractID,
				},
			}
		}
	}
	return nil
}

// Enforce closes the single target position, or the whole account with an
// optional lockout when the total-scope profit target fires.
func (r *MaxUnrealizedProfit) Enforce(ctx context.Context, accountID int64, b Breach) {
	if !b.Terminal {
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
