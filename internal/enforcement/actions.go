// Package enforcement implements the composite actions rule evaluators use
// to react to a breach (SPEC_FULL.md §4.14): closing positions, cancelling
// orders, reducing size, and placing/modifying protective stops. Every
// terminal call writes one domain.EnforcementLogEntry, successful or not,
// through the injected LogStore.
package enforcement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// PositionSource supplies the account's currently known open positions.
type PositionSource interface {
	OpenPositions(accountID int64) []domain.Position
}

// OrderSource supplies the account's currently known active orders.
type OrderSource interface {
	ActiveOrders(accountID int64) []domain.Order
}

// LogStore persists enforcement log entries.
type LogStore interface {
	SaveEnforcementLogEntry(e domain.EnforcementLogEntry) error
}

// Actions composes domain.BrokerClient calls into the primitives the rule
// evaluators call. It never reads or writes lockouts itself — rules decide
// whether a lockout accompanies an action.
type Actions struct {
	broker    domain.BrokerClient
	positions PositionSource
	orders    OrderSource
	logs      LogStore
	log       zerolog.Logger
}

// New builds an Actions. logs may be nil to skip persistence (tests).
func New(broker domain.BrokerClient, positions PositionSource, orders OrderSource, logs LogStore, log zerolog.Logger) *Actions {
	return &Actions{
		broker:    broker,
		positions: positions,
		orders:    orders,
		logs:      logs,
		log:       log.With().Str("component", "enforcement").Logger(),
	}
}

// Result summarizes a composite action's outcome across however many legs it
// touched.
type Result struct {
	Attempted int
	Succeeded int
	Errors    []error
}

// OK reports whether every leg of the action succeeded (including the
// zero-leg, already-at-target case).
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// CloseAllPositions iterates every open position for account and closes each
// one via the broker. If the account already has no open positions, this is
// a no-op success (idempotency, spec §4.14).
func (a *Actions) CloseAllPositions(ctx context.Context, ruleID string, accountID int64, reason string) Result {
	var res Result
	for _, p := range a.positions.OpenPositions(accountID) {
		if p.Size == 0 {
			continue
		}
		res.Attempted++
		if err := a.broker.ClosePosition(ctx, accountID, p.ContractID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("close %s: %w", p.ContractID, err))
			continue
		}
		res.Succeeded++
	}
	a.logResult(ruleID, accountID, "close_all_positions", reason, res)
	return res
}

// CancelAllOrders iterates every non-terminal order for account and cancels
// each one via the broker.
func (a *Actions) CancelAllOrders(ctx context.Context, ruleID string, accountID int64, reason string) Result {
	var res Result
	for _, o := range a.orders.ActiveOrders(accountID) {
		res.Attempted++
		if err := a.broker.CancelOrder(ctx, accountID, o.OrderID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("cancel %s: %w", o.OrderID, err))
			continue
		}
		res.Succeeded++
	}
	a.logResult(ruleID, accountID, "cancel_all_orders", reason, res)
	return res
}

// ClosePosition closes a single contract's position for account.
func (a *Actions) ClosePosition(ctx context.Context, ruleID string, accountID int64, contractID, reason string) error {
	err := a.broker.ClosePosition(ctx, accountID, contractID)
	a.logSingle(ruleID, accountID, "close_position", reason, err)
	return err
}

// CancelOrder cancels a single order for account.
func (a *Actions) CancelOrder(ctx context.Context, ruleID string, accountID int64, orderID, reason string) error {
	err := a.broker.CancelOrder(ctx, accountID, orderID)
	a.logSingle(ruleID, accountID, "cancel_order", reason, err)
	return err
}

// ReducePosition reduces an open position by reduceBy contracts via an
// opposing market order. If reduceBy is at least the position's full size,
// it closes the position outright instead (at-least-reduce-to-limit, spec
// §4.14).
func (a *Actions) ReducePosition(ctx context.Context, ruleID string, accountID int64, contractID string, reduceBy float64, reason string) error {
	var current *domain.Position
	for _, p := range a.positions.OpenPositions(accountID) {
		if p.ContractID == contractID {
			current = &p
			break
		}
	}
	if current == nil || reduceBy <= 0 {
		a.logSingle(ruleID, accountID, "reduce_position", reason, nil)
		return nil
	}
	if reduceBy >= current.Size {
		return a.ClosePosition(ctx, ruleID, accountID, contractID, reason)
	}

	side := domain.OrderSideSell
	if current.Direction == domain.DirectionShort {
		side = domain.OrderSideBuy
	}
	_, err := a.broker.PlaceOrder(ctx, domain.PlaceOrderRequest{
		AccountID:  accountID,
		ContractID: contractID,
		Type:       domain.OrderTypeMarket,
		Side:       side,
		Size:       reduceBy,
		CustomTag:  ruleID,
	})
	a.logSingle(ruleID, accountID, "reduce_position", reason, err)
	return err
}

// PlaceStopLoss places a protective stop order, returning its order id for
// later modification.
func (a *Actions) PlaceStopLoss(ctx context.Context, ruleID string, accountID int64, contractID string, size, stopPrice float64, side domain.OrderSide) (string, error) {
	orderID, err := a.broker.PlaceOrder(ctx, domain.PlaceOrderRequest{
		AccountID:  accountID,
		ContractID: contractID,
		Type:       domain.OrderTypeStop,
		Side:       side,
		Size:       size,
		StopPrice:  &stopPrice,
		CustomTag:  ruleID,
	})
	a.logSingle(ruleID, accountID, "place_stop_loss", fmt.Sprintf("stop at %.4f", stopPrice), err)
	return orderID, err
}

// ModifyStopLoss moves an existing stop order to a new trigger price.
func (a *Actions) ModifyStopLoss(ctx context.Context, ruleID string, accountID int64, orderID string, newStopPrice float64) error {
	err := a.broker.ModifyOrder(ctx, accountID, orderID, &newStopPrice)
	a.logSingle(ruleID, accountID, "modify_stop_loss", fmt.Sprintf("new stop %.4f", newStopPrice), err)
	return err
}

func (a *Actions) logResult(ruleID string, accountID int64, action, reason string, res Result) {
	entry := domain.EnforcementLogEntry{
		At:        time.Now(),
		AccountID: accountID,
		RuleID:    ruleID,
		Action:    action,
		Reason:    reason,
		Success:   res.OK(),
		ObservedMetrics: map[string]any{
			"attempted": res.Attempted,
			"succeeded": res.Succeeded,
		},
	}
	if !res.OK() {
		a.log.Warn().Str("rule_id", ruleID).Int64("account_id", accountID).Int("attempted", res.Attempted).Int("succeeded", res.Succeeded).Msg("enforcement action had per-leg failures")
	}
	a.save(entry)
}

func (a *Actions) logSingle(ruleID string, accountID int64, action, reason string, err error) {
	entry := domain.EnforcementLogEntry{
		At:        time.Now(),
		AccountID: accountID,
		RuleID:    ruleID,
		Action:    action,
		Reason:    reason,
		Success:   err == nil,
	}
	if err != nil {
		entry.ObservedMetrics = map[string]any{"error": err.Error()}
	}
	a.save(entry)
}

func (a *Actions) save(entry domain.EnforcementLogEntry) {
	if a.logs == nil {
		return
	}
	if err := a.logs.SaveEnforcementLogEntry(entry); err != nil {
		a.log.Error().Err(err).Str("rule_id", entry.RuleID).Msg("failed to persist enforcement log entry")
	}
}
