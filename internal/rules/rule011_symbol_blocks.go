package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// SymbolBlocks is RULE-011: a hard, permanent block on trading a configured
// set of symbols.
type SymbolBlocks struct {
	cfg     config.SymbolBlocksConfig
	deps    *Deps
	blocked map[string]bool
}

func NewSymbolBlocks(cfg config.SymbolBlocksConfig, deps *Deps) *SymbolBlocks {
	blocked := make(map[string]bool, len(cfg.BlockedSymbols))
	for _, s := range cfg.BlockedSymbols {
		blocked[s] = true
	}
	return &SymbolBlocks{cfg: cfg, deps: deps, blocked: blocked}
}

func (r *SymbolBlocks) ID() string { return "RULE-011" }

// CheckPosition is called on a position event for contractID.
func (r *SymbolBlocks) CheckPosition(accountID int64, contractID string) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	symbol := symbolRoot(r.deps, contractID)
	if !r.blocked[symbol] {
		return nil
	}
	return &Breach{
		RuleID: r.ID(),
		Reason: fmt.Sprintf("%s is a blocked symbol", symbol),
		ObservedMetrics: map[string]any{
			"kind":        "position",
			"contract_id": contractID,
			"symbol":      symbol,
		},
	}
}

// CheckOrder is called on an order event for orderID/contractID.
func (r *SymbolBlocks) CheckOrder(accountID int64, orderID, contractID string) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	symbol := symbolRoot(r.deps, contractID)
	if !r.blocked[symbol] {
		return nil
	}
	return &Breach{
		RuleID: r.ID(),
		Reason: fmt.Sprintf("%s is a blocked symbol", symbol),
		ObservedMetrics: map[string]any{
			"kind":     "order",
			"order_id": orderID,
			"symbol":   symbol,
		},
	}
}

// Enforce closes the position and installs a permanent symbol lockout (for
// the position path), or cancels the order (for the order path).
func (r *SymbolBlocks) Enforce(ctx context.Context, accountID int64, b Breach) {
	kind, _ := b.ObservedMetrics["kind"].(string)
	symbol, _ := b.ObservedMetrics["symbol"].(string)

	if kind == "order" {
		orderID, _ := b.ObservedMetrics["order_id"].(string)
		r.deps.Enforcement.CancelOrder(ctx, r.ID(), accountID, orderID, b.Reason)
		return
	}

	contractID, _ := b.ObservedMetrics["contract_id"].(string)
	r.deps.Enforcement.ClosePosition(ctx, r.ID(), accountID, contractID, b.Reason)
	r.deps.Lockouts.SetSymbolLockout(accountID, symbol, b.Reason, nil, time.Now())
}
