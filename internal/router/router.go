// Package router implements the single ingress point every stream event
// passes through (SPEC_FULL.md §4.16): translate, mutate state, check the
// lockout short-circuit, run the rule set in fixed order, enforce, log.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/events"
	"github.com/riskd/sentinel-risk-daemon/internal/rules"
)

// ruleCheck is one fixed-order step: evaluate, and if it breaches, enforce.
// Returns the breach (nil if none) so the caller can log/emit it.
type ruleCheck struct {
	ruleID  string
	check   func() *rules.Breach
	enforce func(ctx context.Context, accountID int64, b rules.Breach)
}

// Router wires the eleven rule evaluators to the event bus and owns the
// fixed evaluation order and terminal-breach suppression described in
// SPEC_FULL.md §4.16.
type Router struct {
	deps   *rules.Deps
	broker domain.BrokerClient
	bus    *events.Bus
	log    zerolog.Logger

	maxContracts        *rules.MaxContracts
	maxPerInstrument    *rules.MaxContractsPerInstrument
	dailyRealizedLoss   *rules.DailyRealizedLoss
	dailyUnrealizedLoss *rules.DailyUnrealizedLoss
	maxUnrealizedProfit *rules.MaxUnrealizedProfit
	tradeFrequency      *rules.TradeFrequencyLimit
	noStopLossGrace     *rules.NoStopLossGrace
	sessionBlock        *rules.SessionBlock
	authLossGuard       *rules.AuthLossGuard
	symbolBlocks        *rules.SymbolBlocks
	tradeManagement     *rules.TradeManagement

	accounts []int64

	mu         sync.Mutex
	seenTrades map[string]bool // trade_id dedup, spec §4.16/S6
}

// New builds a Router from the per-rule configuration and wires every
// evaluator over deps. It does not subscribe to the bus until Start is
// called.
func New(cfg *config.RulesConfig, deps *rules.Deps, broker domain.BrokerClient, bus *events.Bus, log zerolog.Logger) *Router {
	return &Router{
		deps:   deps,
		broker: broker,
		bus:    bus,
		log:    log.With().Str("component", "router").Logger(),

		maxContracts:        rules.NewMaxContracts(cfg.MaxContracts, deps),
		maxPerInstrument:    rules.NewMaxContractsPerInstrument(cfg.MaxContractsPerInstrument, deps),
		dailyRealizedLoss:   rules.NewDailyRealizedLoss(cfg.DailyRealizedLoss, deps),
		dailyUnrealizedLoss: rules.NewDailyUnrealizedLoss(cfg.DailyUnrealizedLoss, deps),
		maxUnrealizedProfit: rules.NewMaxUnrealizedProfit(cfg.MaxUnrealizedProfit, deps),
		tradeFrequency:      rules.NewTradeFrequencyLimit(cfg.TradeFrequencyLimit, deps),
		noStopLossGrace:     rules.NewNoStopLossGrace(cfg.NoStopLossGrace, deps),
		sessionBlock:        rules.NewSessionBlock(cfg.SessionBlock, deps),
		authLossGuard:       rules.NewAuthLossGuard(cfg.AuthLossGuard, deps),
		symbolBlocks:        rules.NewSymbolBlocks(cfg.SymbolBlocks, deps),
		tradeManagement:     rules.NewTradeManagement(cfg.TradeManagement, deps),

		accounts:   append([]int64(nil), cfg.Accounts...),
		seenTrades: make(map[string]bool),
	}
}

// Start subscribes every handler to the bus. Safe to call once.
func (rt *Router) Start() {
	rt.bus.Subscribe(events.PositionUpdated, rt.onPositionUpdated)
	rt.bus.Subscribe(events.TradeExecuted, rt.onTradeExecuted)
	rt.bus.Subscribe(events.OrderUpdated, rt.onOrderUpdated)
	rt.bus.Subscribe(events.AccountUpdated, rt.onAccountUpdated)
	rt.bus.Subscribe(events.QuoteUpdated, rt.onQuoteUpdated)
}

// runFixedOrder evaluates checks in their given (already fixed-order)
// sequence, emitting and enforcing each breach. It stops the cycle as soon
// as a terminal breach has been enforced, per §4.16 step 4.
func (rt *Router) runFixedOrder(ctx context.Context, accountID int64, checks []ruleCheck) {
	for _, c := range checks {
		b := c.check()
		if b == nil {
			continue
		}
		rt.emitBreach(accountID, *b)
		c.enforce(ctx, accountID, *b)
		if b.Terminal {
			return
		}
	}
}

func (rt *Router) emitBreach(accountID int64, b rules.Breach) {
	rt.bus.Emit(events.EventWithData{
		Type:      events.RuleBreach,
		Timestamp: time.Now(),
		Data: &events.RuleBreachData{
			AccountID: accountID,
			RuleID:    b.RuleID,
			Reason:    b.Reason,
			Terminal:  b.Terminal,
		},
	})
}

// onPositionUpdated implements steps 2-4 of §4.16 for GatewayUserPosition:
// state mutation, trade-management/no-stop-loss-grace bookkeeping, the
// lockout short-circuit, then RULE-001, 002, 009, 011 in fixed order.
func (rt *Router) onPositionUpdated(evt events.EventWithData) {
	d, ok := evt.Data.(*events.PositionUpdatedData)
	if !ok {
		return
	}
	accountID, contractID := d.AccountID, d.ContractID

	wasTracked := rt.deps.Timers.Has(noStopLossTimerKey(accountID, contractID))
	p := domain.Position{
		AccountID:    accountID,
		ContractID:   contractID,
		PositionID:   contractID, // no separate position id on the wire; contract id is unique per account+contract
		Direction:    directionFromString(d.Direction),
		Size:         d.Size,
		AveragePrice: d.AveragePrice,
	}
	rt.deps.State.ApplyPosition(p)

	if p.Size == 0 {
		rt.tradeManagement.OnPositionClosed(accountID, contractID)
		rt.deps.Timers.Cancel(noStopLossTimerKey(accountID, contractID))
	} else {
		rt.tradeManagement.OnPositionOpened(accountID, contractID, p)
		if !wasTracked {
			rt.noStopLossGrace.OnPositionOpened(accountID, contractID, func() {
				rt.onNoStopLossTimerFired(accountID, contractID)
			})
		}
		rt.sessionBlock.ScheduleSessionEnd(accountID, func() {
			rt.onSessionEndTimerFired(accountID)
		})
	}

	if rt.lockedOut(accountID, contractID) {
		return
	}

	ctx := context.Background()
	rt.runFixedOrder(ctx, accountID, []ruleCheck{
		{ruleID: "RULE-001", check: func() *rules.Breach { return rt.maxContracts.CheckPosition(accountID) }, enforce: rt.maxContracts.Enforce},
		{ruleID: "RULE-002", check: func() *rules.Breach { return rt.maxPerInstrument.CheckPosition(accountID, contractID) }, enforce: rt.maxPerInstrument.Enforce},
		{ruleID: "RULE-009", check: func() *rules.Breach { return rt.sessionBlock.CheckPosition(accountID, contractID) }, enforce: rt.sessionBlock.Enforce},
		{ruleID: "RULE-011", check: func() *rules.Breach { return rt.symbolBlocks.CheckPosition(accountID, contractID) }, enforce: rt.symbolBlocks.Enforce},
	})
}

// onNoStopLossTimerFired is the RULE-008 grace-period callback; it fires on
// its own goroutine (time.AfterFunc), so it re-enters the router through
// its own short fixed-order cycle of one.
func (rt *Router) onNoStopLossTimerFired(accountID int64, contractID string) {
	if rt.lockedOut(accountID, contractID) {
		return
	}
	b := rt.noStopLossGrace.CheckTimerFired(accountID, contractID, contractID)
	if b == nil {
		return
	}
	rt.emitBreach(accountID, *b)
	rt.noStopLossGrace.Enforce(context.Background(), accountID, *b)
}

// onSessionEndTimerFired is the RULE-009 session-end timer callback (the
// dual trigger's second half, alongside onPositionUpdated's CheckPosition
// call): it fires once per account at the configured session boundary and
// closes out anything still open with auto_close_at_end.
func (rt *Router) onSessionEndTimerFired(accountID int64) {
	if rt.lockedOut(accountID, "") {
		return
	}
	b := rt.sessionBlock.CheckSessionEnd(accountID)
	if b == nil {
		return
	}
	rt.emitBreach(accountID, *b)
	rt.sessionBlock.Enforce(context.Background(), accountID, *b)
}

// onTradeExecuted implements §4.16 for GatewayUserTrade: dedupe by
// trade_id, fold realized P&L, record trade frequency, then RULE-003, 006.
func (rt *Router) onTradeExecuted(evt events.EventWithData) {
	d, ok := evt.Data.(*events.TradeExecutedData)
	if !ok {
		return
	}
	accountID := d.AccountID

	if rt.alreadySeen(d.TradeID) {
		return
	}

	now := time.Now()
	if d.RealizedPnL != nil {
		if err := rt.deps.PnL.AddTradePnL(accountID, now.Format("2006-01-02"), *d.RealizedPnL); err != nil {
			rt.log.Error().Err(err).Int64("account_id", accountID).Msg("failed to fold realized pnl")
		}
	}
	counts := rt.deps.Trades.RecordTrade(accountID, now)

	if rt.lockedOut(accountID, "") {
		return
	}

	rt.runFixedOrder(context.Background(), accountID, []ruleCheck{
		{ruleID: "RULE-003", check: func() *rules.Breach { return rt.dailyRealizedLoss.CheckTrade(accountID) }, enforce: rt.dailyRealizedLoss.Enforce},
		{ruleID: "RULE-006", check: func() *rules.Breach { return rt.tradeFrequency.CheckTrade(counts) }, enforce: rt.tradeFrequency.Enforce},
	})
}

// onOrderUpdated implements §4.16 for GatewayUserOrder: state mutation,
// RULE-008 stop-observed bookkeeping, then RULE-011.
func (rt *Router) onOrderUpdated(evt events.EventWithData) {
	d, ok := evt.Data.(*events.OrderUpdatedData)
	if !ok {
		return
	}
	accountID, contractID, orderID := d.AccountID, d.ContractID, d.OrderID

	order := domain.Order{
		OrderID:    orderID,
		AccountID:  accountID,
		ContractID: contractID,
		UpdatedAt:  time.Now(),
		State:      domain.ParseOrderState(d.State),
		Type:       domain.ParseOrderType(d.Type),
		Side:       sideFromString(d.Side),
		CustomTag:  d.CustomTag,
	}
	rt.deps.State.ApplyOrder(order)

	if pos, ok := rt.deps.State.Position(accountID, contractID); ok && rules.HasOppositeStop(order, pos.Direction) {
		rt.noStopLossGrace.OnStopOrderPlaced(accountID, contractID)
		manual := order.CustomTag != "RULE-012"
		rt.tradeManagement.OnStopOrderObserved(accountID, contractID, orderID, manual)
	}

	if rt.lockedOut(accountID, contractID) {
		return
	}

	rt.runFixedOrder(context.Background(), accountID, []ruleCheck{
		{ruleID: "RULE-011", check: func() *rules.Breach { return rt.symbolBlocks.CheckOrder(accountID, orderID, contractID) }, enforce: rt.symbolBlocks.Enforce},
	})
}

// onAccountUpdated implements §4.16 for GatewayUserAccount: RULE-010 is
// exempt from the lockout short-circuit (its restoration path removes the
// very lockout that would otherwise suppress it).
func (rt *Router) onAccountUpdated(evt events.EventWithData) {
	d, ok := evt.Data.(*events.AccountUpdatedData)
	if !ok {
		return
	}
	accountID := d.AccountID
	previous := rt.deps.State.CanTrade(accountID)

	if b := rt.authLossGuard.CheckTransition(previous, d.CanTrade); b != nil {
		rt.emitBreach(accountID, *b)
		rt.authLossGuard.Enforce(context.Background(), accountID, *b)
	} else if rt.authLossGuard.CheckRestoration(previous, d.CanTrade) {
		rt.authLossGuard.Restore(accountID)
	}

	rt.deps.State.SetCanTrade(accountID, d.CanTrade)
}

// onQuoteUpdated implements §4.16 for GatewayQuote: every configured
// account currently holding a position feeds the quote into RULE-004,
// RULE-005 (account-wide) and RULE-012 (per matching contract).
func (rt *Router) onQuoteUpdated(evt events.EventWithData) {
	d, ok := evt.Data.(*events.QuoteUpdatedData)
	if !ok {
		return
	}
	rt.deps.Quotes.OnQuote(domain.Quote{Symbol: d.Symbol, LastPrice: d.LastPrice, LastUpdated: time.Now()})

	for _, accountID := range rt.accounts {
		positions := rt.deps.State.OpenPositions(accountID)
		if len(positions) == 0 {
			continue
		}

		for _, p := range positions {
			if rt.lockedOut(accountID, p.ContractID) {
				continue
			}
			contract, ok := rt.deps.Contracts.Peek(p.ContractID)
			if !ok || contract.SymbolRoot != d.Symbol {
				continue
			}
			if b := rt.tradeManagement.CheckQuote(accountID, p.ContractID, d.LastPrice); b != nil {
				rt.emitBreach(accountID, *b)
				rt.tradeManagement.Enforce(context.Background(), accountID, *b)
			}
		}

		if rt.lockedOut(accountID, "") {
			continue
		}
		rt.runFixedOrder(context.Background(), accountID, []ruleCheck{
			{ruleID: "RULE-004", check: func() *rules.Breach { return rt.dailyUnrealizedLoss.CheckQuote(accountID) }, enforce: rt.dailyUnrealizedLoss.Enforce},
			{ruleID: "RULE-005", check: func() *rules.Breach { return rt.maxUnrealizedProfit.CheckQuote(accountID) }, enforce: rt.maxUnrealizedProfit.Enforce},
		})
	}
}

// CheckStartupAuth implements the RULE-010 startup check (§4.18): the
// orchestrator fetches the account's current canTrade flag over REST before
// the GatewayUserAccount push channel has delivered its first live update,
// and this evaluates it as a transition from the default tradable state so
// an account already restricted at boot is caught immediately rather than
// left open until the brokerage happens to push an update.
func (rt *Router) CheckStartupAuth(ctx context.Context, accountID int64, canTrade bool) {
	if b := rt.authLossGuard.CheckTransition(true, canTrade); b != nil {
		rt.emitBreach(accountID, *b)
		rt.authLossGuard.Enforce(ctx, accountID, *b)
	}
	rt.deps.State.SetCanTrade(accountID, canTrade)
}

// Accounts returns the configured account ids this router serves, for the
// orchestrator's subscription and reconciliation setup.
func (rt *Router) Accounts() []int64 {
	return append([]int64(nil), rt.accounts...)
}

// ReconcileState implements reconcile_state() (§4.16): fetch open positions
// via REST and make the state manager's cache match it exactly for every
// configured account. Wired into stream.Manager.SetReconcileHook.
func (rt *Router) ReconcileState(ctx context.Context) error {
	for _, accountID := range rt.accounts {
		positions, err := rt.broker.SearchOpenPositions(ctx, accountID)
		if err != nil {
			return fmt.Errorf("router: reconciling account %d: %w", accountID, err)
		}
		rt.deps.State.ReplacePositions(accountID, positions)
	}
	return nil
}

// lockedOut is the §4.16 step-3 short-circuit: an account lockout blocks
// every rule; a symbol lockout (contractID non-empty) additionally blocks
// rules scoped to that contract's symbol.
func (rt *Router) lockedOut(accountID int64, contractID string) bool {
	now := time.Now()
	if rt.deps.Lockouts.IsLockedOut(accountID, now) {
		return true
	}
	if contractID == "" {
		return false
	}
	symbol := symbolRootFor(rt.deps, contractID)
	return rt.deps.Lockouts.IsSymbolLocked(accountID, symbol, now)
}

func (rt *Router) alreadySeen(tradeID string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.seenTrades[tradeID] {
		return true
	}
	rt.seenTrades[tradeID] = true
	return false
}

func noStopLossTimerKey(accountID int64, contractID string) string {
	return fmt.Sprintf("no_sl_grace:%d:%s", accountID, contractID)
}

func symbolRootFor(d *rules.Deps, contractID string) string {
	if c, ok := d.Contracts.Peek(contractID); ok {
		return c.SymbolRoot
	}
	return domain.SymbolRoot(contractID)
}

func directionFromString(s string) domain.Direction {
	if s == "SHORT" {
		return domain.DirectionShort
	}
	return domain.DirectionLong
}

func sideFromString(s string) domain.OrderSide {
	if s == "SELL" {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}
