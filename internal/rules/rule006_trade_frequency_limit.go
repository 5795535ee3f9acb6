package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/tradecounter"
)

// TradeFrequencyLimit is RULE-006: a cooldown, not a position close, for
// overtrading. Grounded on
// original_source/src/rules/trade_frequency_limit.py.
type TradeFrequencyLimit struct {
	cfg  config.TradeFrequencyLimitConfig
	deps *Deps
}

func NewTradeFrequencyLimit(cfg config.TradeFrequencyLimitConfig, deps *Deps) *TradeFrequencyLimit {
	return &TradeFrequencyLimit{cfg: cfg, deps: deps}
}

func (r *TradeFrequencyLimit) ID() string { return "RULE-006" }

// CheckTrade is called with the window counts the router already recorded
// via tradecounter.RecordTrade for this trade. Breach priority is
// session > hour > minute, matching the original's check order.
func (r *TradeFrequencyLimit) CheckTrade(counts tradecounter.Counts) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	if r.cfg.MaxPerSession > 0 && counts.Session > r.cfg.MaxPerSession {
		return r.breach("per_session", counts.Session, r.cfg.MaxPerSession, r.cfg.CooldownSession)
	}
	if r.cfg.MaxPerHour > 0 && counts.Hour > r.cfg.MaxPerHour {
		return r.breach("per_hour", counts.Hour, r.cfg.MaxPerHour, r.cfg.CooldownHour)
	}
	if r.cfg.MaxPerMinute > 0 && counts.Minute > r.cfg.MaxPerMinute {
		return r.breach("per_minute", counts.Minute, r.cfg.MaxPerMinute, r.cfg.CooldownMinute)
	}
	return nil
}

func (r *TradeFrequencyLimit) breach(kind string, count, limit, cooldown int) *Breach {
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("trade frequency limit %s: %d/%d trades", kind, count, limit),
		Terminal: false,
		ObservedMetrics: map[string]any{
			"breach_type": kind,
			"count":       count,
			"limit":       limit,
			"cooldown":    cooldown,
		},
	}
}

// Enforce installs a cooldown sized to the breached window class; RULE-006
// never closes positions.
func (r *TradeFrequencyLimit) Enforce(ctx context.Context, accountID int64, b Breach) {
	cooldown, _ := b.ObservedMetrics["cooldown"].(int)
	if cooldown <= 0 {
		cooldown = 60
	}
	r.deps.Lockouts.SetCooldown(accountID, b.Reason, cooldown, time.Now())
}
