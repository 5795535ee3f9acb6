package rules

import (
	"context"
	"sync"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// managedPosition is the per-position bookkeeping TradeManagement needs
// across quote ticks: whether breakeven has already been applied, the
// trailing water mark, and the stop order currently protecting the
// position (so a trail update modifies it instead of placing a new one).
type managedPosition struct {
	entryPrice       float64
	direction        domain.Direction
	size             float64
	breakevenApplied bool
	manualStop       bool
	stopOrderID      string
	waterMark        float64
	haveWaterMark    bool
}

// TradeManagement is RULE-012: automated stop-loss management via
// auto-breakeven and trailing stops. Unlike the other rules it never closes
// a position or applies a lockout; it only places and modifies protective
// stops. Grounded on original_source/src/rules/trade_management.py.
type TradeManagement struct {
	cfg  config.TradeManagementConfig
	deps *Deps

	mu        sync.Mutex
	positions map[int64]map[string]*managedPosition // accountID -> contractID -> state
}

func NewTradeManagement(cfg config.TradeManagementConfig, deps *Deps) *TradeManagement {
	return &TradeManagement{
		cfg:       cfg,
		deps:      deps,
		positions: make(map[int64]map[string]*managedPosition),
	}
}

func (r *TradeManagement) ID() string { return "RULE-012" }

func (r *TradeManagement) tracked(accountID int64, contractID string) *managedPosition {
	byContract, ok := r.positions[accountID]
	if !ok {
		return nil
	}
	return byContract[contractID]
}

// OnPositionOpened starts tracking a newly observed non-zero position. A
// position already being tracked is left untouched (a size change on the
// same contract doesn't reset breakeven/trailing progress).
func (r *TradeManagement) OnPositionOpened(accountID int64, contractID string, p domain.Position) {
	if !r.cfg.Enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byContract, ok := r.positions[accountID]
	if !ok {
		byContract = make(map[string]*managedPosition)
		r.positions[accountID] = byContract
	}
	if _, exists := byContract[contractID]; exists {
		return
	}
	byContract[contractID] = &managedPosition{
		entryPrice: p.AveragePrice,
		direction:  p.Direction,
		size:       p.Size,
	}
}

// OnPositionClosed stops tracking a contract once its position returns to
// size 0, so a later re-entry starts breakeven/trailing fresh.
func (r *TradeManagement) OnPositionClosed(accountID int64, contractID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.positions[accountID], contractID)
}

// OnStopOrderObserved records the order protecting a tracked position, and
// whether it was placed manually (outside this rule) — a manual stop is
// left alone when respect_manual_stops is set.
func (r *TradeManagement) OnStopOrderObserved(accountID int64, contractID, orderID string, manual bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mp := r.tracked(accountID, contractID)
	if mp == nil {
		return
	}
	mp.stopOrderID = orderID
	if manual {
		mp.manualStop = true
	}
}

// CheckQuote is called on every quote tick for contractID; it returns at
// most one action (breakeven takes priority over a trailing update on the
// same tick, mirroring the original rule's check order).
func (r *TradeManagement) CheckQuote(accountID int64, contractID string, currentPrice float64) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	mp := r.tracked(accountID, contractID)
	if mp == nil {
		return nil
	}
	if mp.manualStop && r.cfg.RespectManualStops {
		return nil
	}

	contract, ok := r.deps.Contracts.Peek(contractID)
	if !ok || contract.TickSize == 0 {
		return nil
	}

	priceDiff := currentPrice - mp.entryPrice
	if mp.direction == domain.DirectionShort {
		priceDiff = mp.entryPrice - currentPrice
	}
	profitTicks := priceDiff / contract.TickSize

	if !mp.breakevenApplied && r.cfg.ProfitTriggerTicks > 0 && profitTicks >= r.cfg.ProfitTriggerTicks {
		offset := r.cfg.OffsetTicks * contract.TickSize
		stopPrice := mp.entryPrice + offset
		if mp.direction == domain.DirectionShort {
			stopPrice = mp.entryPrice - offset
		}
		mp.breakevenApplied = true
		return &Breach{
			RuleID:   r.ID(),
			Reason:   "profit reached breakeven trigger",
			Terminal: false,
			ObservedMetrics: map[string]any{
				"action":      "apply_breakeven",
				"contract_id": contractID,
				"stop_price":  stopPrice,
				"size":        mp.size,
				"direction":   mp.direction,
			},
		}
	}

	if !r.cfg.TrailingActive {
		return nil
	}
	return r.checkTrailing(mp, contractID, currentPrice, contract.TickSize)
}

// checkTrailing updates the water mark on a favorable tick and, if it
// moved, returns the new trailing stop price. Unfavorable ticks do nothing.
// Caller holds r.mu.
func (r *TradeManagement) checkTrailing(mp *managedPosition, contractID string, currentPrice, tickSize float64) *Breach {
	trail := r.cfg.TrailDistanceTicks * tickSize

	if mp.direction == domain.DirectionShort {
		if !mp.haveWaterMark || currentPrice < mp.waterMark {
			mp.waterMark = currentPrice
			mp.haveWaterMark = true
			return &Breach{
				RuleID:   r.ID(),
				Reason:   "trailing stop advanced",
				Terminal: false,
				ObservedMetrics: map[string]any{
					"action":        "update_trailing_stop",
					"contract_id":   contractID,
					"order_id":      mp.stopOrderID,
					"new_stop_price": currentPrice + trail,
				},
			}
		}
		return nil
	}

	if !mp.haveWaterMark || currentPrice > mp.waterMark {
		mp.waterMark = currentPrice
		mp.haveWaterMark = true
		return &Breach{
			RuleID:   r.ID(),
			Reason:   "trailing stop advanced",
			Terminal: false,
			ObservedMetrics: map[string]any{
				"action":        "update_trailing_stop",
				"contract_id":   contractID,
				"order_id":      mp.stopOrderID,
				"new_stop_price": currentPrice - trail,
			},
		}
	}
	return nil
}

// Enforce places the breakeven stop or modifies the trailing stop. Neither
// path closes a position or touches lockouts.
func (r *TradeManagement) Enforce(ctx context.Context, accountID int64, b Breach) {
	action, _ := b.ObservedMetrics["action"].(string)
	contractID, _ := b.ObservedMetrics["contract_id"].(string)

	switch action {
	case "apply_breakeven":
		stopPrice, _ := b.ObservedMetrics["stop_price"].(float64)
		size, _ := b.ObservedMetrics["size"].(float64)
		direction, _ := b.ObservedMetrics["direction"].(domain.Direction)

		side := domain.OrderSideSell
		if direction == domain.DirectionShort {
			side = domain.OrderSideBuy
		}
		orderID, err := r.deps.Enforcement.PlaceStopLoss(ctx, r.ID(), accountID, contractID, size, stopPrice, side)
		if err == nil {
			r.OnStopOrderObserved(accountID, contractID, orderID, false)
		}

	case "update_trailing_stop":
		orderID, _ := b.ObservedMetrics["order_id"].(string)
		newStopPrice, _ := b.ObservedMetrics["new_stop_price"].(float64)
		if orderID == "" {
			return
		}
		r.deps.Enforcement.ModifyStopLoss(ctx, r.ID(), accountID, orderID, newStopPrice)
	}
}
