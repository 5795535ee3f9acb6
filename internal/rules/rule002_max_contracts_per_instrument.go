package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// MaxContractsPerInstrument is RULE-002: caps the contract count held in any
// single instrument, with a configurable policy for symbols absent from the
// explicit limits map.
type MaxContractsPerInstrument struct {
	cfg  config.MaxContractsPerInstrumentConfig
	deps *Deps
}

func NewMaxContractsPerInstrument(cfg config.MaxContractsPerInstrumentConfig, deps *Deps) *MaxContractsPerInstrument {
	return &MaxContractsPerInstrument{cfg: cfg, deps: deps}
}

func (r *MaxContractsPerInstrument) ID() string { return "RULE-002" }

// CheckPosition compares the account's holding in contractID (that one
// contract's position size) against the limit configured for the contract's
// symbol root, or the unknown_symbol_action policy if the symbol has no
// explicit limit.
func (r *MaxContractsPerInstrument) CheckPosition(accountID int64, contractID string) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	symbol := symbolRoot(r.deps, contractID)
	current := r.deps.State.GetContractCount(accountID, contractID)

	limit, blocked := r.resolveLimit(symbol)
	if blocked && current > 0 {
		return &Breach{
			RuleID:   r.ID(),
			Reason:   fmt.Sprintf("symbol %s has no configured limit and unknown_symbol_action=block", symbol),
			Terminal: false,
			ObservedMetrics: map[string]any{
				"symbol":      symbol,
				"contract_id": contractID,
				"blocked":     true,
			},
		}
	}
	if limit < 0 || current <= float64(limit) {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("%s holding %.0f exceeds limit %d", symbol, current, limit),
		Terminal: false,
		ObservedMetrics: map[string]any{
			"symbol":      symbol,
			"contract_id": contractID,
			"current":     current,
			"limit":       limit,
		},
	}
}

// resolveLimit returns the effective limit for symbol, and whether the
// symbol is blocked outright (no limit at all). A negative limit means
// unlimited.
func (r *MaxContractsPerInstrument) resolveLimit(symbol string) (limit int, blocked bool) {
	if l, ok := r.cfg.Limits[symbol]; ok {
		return l, false
	}
	switch {
	case r.cfg.UnknownSymbolAction == "allow_unlimited":
		return -1, false
	case strings.HasPrefix(r.cfg.UnknownSymbolAction, "allow_with_limit:"):
		n, err := strconv.Atoi(strings.TrimPrefix(r.cfg.UnknownSymbolAction, "allow_with_limit:"))
		if err != nil {
			return 0, true
		}
		return n, false
	default: // "block" or unset
		return 0, true
	}
}

// Enforce reduces the position to the configured limit, closes it entirely,
// or closes it outright for a blocked unknown symbol, per the configured
// enforcement policy.
func (r *MaxContractsPerInstrument) Enforce(ctx context.Context, accountID int64, b Breach) {
	contractID, _ := b.ObservedMetrics["contract_id"].(string)

	if blocked, _ := b.ObservedMetrics["blocked"].(bool); blocked {
		r.deps.Enforcement.ClosePosition(ctx, r.ID(), accountID, contractID, b.Reason)
		return
	}

	if r.cfg.Enforcement == "close_all" {
		r.deps.Enforcement.ClosePosition(ctx, r.ID(), accountID, contractID, b.Reason)
		return
	}

	current, _ := b.ObservedMetrics["current"].(float64)
	limit, _ := b.ObservedMetrics["limit"].(int)
	r.deps.Enforcement.ReducePosition(ctx, r.ID(), accountID, contractID, current-float64(limit), b.Reason)
}
