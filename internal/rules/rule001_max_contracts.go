package rules

import (
	"context"
	"fmt"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// MaxContracts is RULE-001: a global cap on total open contracts across an
// account, regardless of instrument. Grounded on
// original_source/src/rules/ (the max-contracts family share this
// total-vs-limit shape).
type MaxContracts struct {
	cfg  config.MaxContractsConfig
	deps *Deps
}

func NewMaxContracts(cfg config.MaxContractsConfig, deps *Deps) *MaxContracts {
	return &MaxContracts{cfg: cfg, deps: deps}
}

func (r *MaxContracts) ID() string { return "RULE-001" }

// CheckPosition re-evaluates the account's total contract count whenever a
// position update is received.
func (r *MaxContracts) CheckPosition(accountID int64) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	total := r.deps.State.TotalContracts(accountID)
	if total <= float64(r.cfg.Limit) {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("total open contracts %.0f exceeds limit %d", total, r.cfg.Limit),
		Terminal: true,
		ObservedMetrics: map[string]any{
			"total_contracts": total,
			"limit":           r.cfg.Limit,
		},
	}
}

// Enforce closes every open position; RULE-001 never applies a lockout.
func (r *MaxContracts) Enforce(ctx context.Context, accountID int64, b Breach) {
	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
}
