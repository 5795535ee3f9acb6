package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// DailyRealizedLoss is RULE-003: a hard stop once the account's realized
// P&L for the session falls strictly below -limit.
type DailyRealizedLoss struct {
	cfg  config.DailyRealizedLossConfig
	deps *Deps
}

func NewDailyRealizedLoss(cfg config.DailyRealizedLossConfig, deps *Deps) *DailyRealizedLoss {
	return &DailyRealizedLoss{cfg: cfg, deps: deps}
}

func (r *DailyRealizedLoss) ID() string { return "RULE-003" }

// CheckTrade is called after a trade with non-nil realized P&L has already
// been folded into the P&L tracker by the router.
func (r *DailyRealizedLoss) CheckTrade(accountID int64) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	daily := r.deps.PnL.RealizedPnL(accountID)
	if !(daily < -r.cfg.Limit) {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("daily realized P&L %.2f below -%.2f limit", daily, r.cfg.Limit),
		Terminal: true,
		ObservedMetrics: map[string]any{
			"daily_realized_pnl": daily,
			"limit":              r.cfg.Limit,
		},
	}
}

// Enforce closes all positions, cancels all orders, and (unless disabled)
// locks the account out until the next configured reset time.
func (r *DailyRealizedLoss) Enforce(ctx context.Context, accountID int64, b Breach) {
	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
	r.deps.Enforcement.CancelAllOrders(ctx, r.ID(), accountID, b.Reason)
	if !r.cfg.LockoutUntilReset {
		return
	}
	now := time.Now()
	until := nextReset(now, r.cfg.ResetTime, r.cfg.Timezone)
	r.deps.Lockouts.SetLockout(accountID, b.Reason, &until, now)
}
