package rules

import (
	"context"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// AuthLossGuard is RULE-010: reacts to the brokerage revoking (or
// restoring) an account's trading permission.
type AuthLossGuard struct {
	cfg  config.AuthLossGuardConfig
	deps *Deps
}

func NewAuthLossGuard(cfg config.AuthLossGuardConfig, deps *Deps) *AuthLossGuard {
	return &AuthLossGuard{cfg: cfg, deps: deps}
}

func (r *AuthLossGuard) ID() string { return "RULE-010" }

// CheckTransition is called with the account's previous and new canTrade
// flag, on an account-update event or at startup (previousCanTrade=true,
// newCanTrade=the current REST-reported value, to catch a false value that
// was already in effect before the daemon started).
func (r *AuthLossGuard) CheckTransition(previousCanTrade, newCanTrade bool) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	if previousCanTrade && !newCanTrade {
		return &Breach{
			RuleID:   r.ID(),
			Reason:   "brokerage revoked trading permission",
			Terminal: true,
		}
	}
	return nil
}

// CheckRestoration reports whether a canTrade false->true transition should
// remove an existing RULE-010 lockout.
func (r *AuthLossGuard) CheckRestoration(previousCanTrade, newCanTrade bool) bool {
	return r.cfg.Enabled && r.cfg.AutoUnlockOnRestore && !previousCanTrade && newCanTrade
}

// Enforce flattens the account and applies an indefinite lockout.
func (r *AuthLossGuard) Enforce(ctx context.Context, accountID int64, b Breach) {
	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
	r.deps.Enforcement.CancelAllOrders(ctx, r.ID(), accountID, b.Reason)
	r.deps.Lockouts.SetLockout(accountID, b.Reason, nil, time.Now())
}

// Restore removes the account-level lockout, for the false->true
// auto_unlock_on_restore path.
func (r *AuthLossGuard) Restore(accountID int64) {
	r.deps.Lockouts.RemoveLockout(accountID)
}
