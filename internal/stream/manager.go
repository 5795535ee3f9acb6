package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/brokerapi"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/events"
)

const (
	channelUserTrade    = "GatewayUserTrade"
	channelUserPosition = "GatewayUserPosition"
	channelUserOrder    = "GatewayUserOrder"
	channelUserAccount  = "GatewayUserAccount"
	channelQuote        = "GatewayQuote"
)

// Manager implements domain.PushStream over the brokerage's user and market
// hubs, replaying subscriptions on reconnect and triggering state
// reconciliation after every successful one (SPEC_FULL.md §4.6).
type Manager struct {
	userHub   *hub
	marketHub *hub
	bus       *events.Bus
	log       zerolog.Logger

	reconcile func(ctx context.Context) error
	bgCtx     context.Context
}

// NewManager builds a Manager. userHubURL/marketHubURL are the brokerage's
// two websocket endpoints; tokens supplies the bearer token used to
// authenticate each dial.
func NewManager(userHubURL, marketHubURL string, tokens *brokerapi.TokenManager, bus *events.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		bus: bus,
		log: log.With().Str("component", "stream.manager").Logger(),
	}
	m.userHub = newHub("user", userHubURL, tokens, m.handleUserMessage, m.log)
	m.marketHub = newHub("market", marketHubURL, tokens, m.handleMarketMessage, m.log)
	m.userHub.onReconnected = m.onHubReconnected(events.StreamReconnected, "user")
	m.marketHub.onReconnected = m.onHubReconnected(events.StreamReconnected, "market")
	return m
}

// SetReconcileHook installs the event router's reconcile_state callback,
// invoked after every successful reconnect of either hub.
func (m *Manager) SetReconcileHook(fn func(ctx context.Context) error) {
	m.reconcile = fn
}

// Start implements domain.PushStream.
func (m *Manager) Start(ctx context.Context) error {
	m.bgCtx = ctx
	m.userHub.start(ctx)
	m.marketHub.start(ctx)
	m.emitStreamState(events.StreamConnected, "user", 0, "")
	m.emitStreamState(events.StreamConnected, "market", 0, "")
	return nil
}

// Stop implements domain.PushStream.
func (m *Manager) Stop() error {
	m.userHub.stop()
	m.marketHub.stop()
	return nil
}

// IsConnected implements domain.PushStream: true only when both hubs are up,
// since every rule evaluator depends on both position/order state (user
// hub) and fresh quotes (market hub).
func (m *Manager) IsConnected() bool {
	return m.userHub.isConnected() && m.marketHub.isConnected()
}

// UserHealth and MarketHealth expose per-hub health for the status API
// (SPEC_FULL.md §4.6, §12).
func (m *Manager) UserHealth() HealthStatus   { return m.userHub.health() }
func (m *Manager) MarketHealth() HealthStatus { return m.marketHub.health() }

// SubscribeTrades implements domain.PushStream.
func (m *Manager) SubscribeTrades(accountID int64) error {
	return m.subscribeUser("trades:"+itoa(accountID), []string{channelUserTrade, itoa(accountID)})
}

// SubscribePositions implements domain.PushStream.
func (m *Manager) SubscribePositions(accountID int64) error {
	return m.subscribeUser("positions:"+itoa(accountID), []string{channelUserPosition, itoa(accountID)})
}

// SubscribeOrders implements domain.PushStream.
func (m *Manager) SubscribeOrders(accountID int64) error {
	return m.subscribeUser("orders:"+itoa(accountID), []string{channelUserOrder, itoa(accountID)})
}

// SubscribeAccount implements domain.PushStream: it subscribes to the
// brokerage's GatewayUserAccount channel so live canTrade transitions reach
// RULE-010 (AuthLossGuard) via events.AccountUpdated.
func (m *Manager) SubscribeAccount(accountID int64) error {
	return m.subscribeUser("account:"+itoa(accountID), []string{channelUserAccount, itoa(accountID)})
}

// SubscribeContractQuotes implements domain.PushStream.
func (m *Manager) SubscribeContractQuotes(contractID string) error {
	return m.subscribeMarket("quotes:"+contractID, []string{channelQuote, contractID})
}

func (m *Manager) subscribeUser(label string, frame []string) error {
	return m.subscribe(m.userHub, label, frame)
}

func (m *Manager) subscribeMarket(label string, frame []string) error {
	return m.subscribe(m.marketHub, label, frame)
}

// subscribe records the subscription for replay and, if the hub is
// currently connected, sends it immediately.
func (m *Manager) subscribe(h *hub, label string, frame []string) error {
	h.mu.Lock()
	for _, s := range h.subs {
		if s.label == label {
			h.mu.Unlock()
			return nil
		}
	}
	h.subs = append(h.subs, subscription{label: label, message: frame})
	connected := h.state == StateConnected
	h.mu.Unlock()

	if !connected {
		return nil
	}

	ctx := m.bgCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.send(ctx, frame); err != nil {
		return fmt.Errorf("stream: subscribing %s: %w", label, err)
	}
	return nil
}

func (m *Manager) onHubReconnected(evt events.EventType, hubName string) func() {
	return func() {
		m.emitStreamState(evt, hubName, 0, "")
		if m.reconcile == nil {
			return
		}
		ctx := m.bgCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := m.reconcile(ctx); err != nil {
			m.log.Error().Err(err).Str("hub", hubName).Msg("state reconciliation after reconnect failed")
		} else {
			m.bus.Emit(events.EventWithData{
				Type:      events.ReconciliationComplete,
				Timestamp: time.Now(),
				Data:      &events.StreamStateData{Hub: hubName},
			})
		}
	}
}

func (m *Manager) emitStreamState(evt events.EventType, hubName string, attempt int, reason string) {
	m.bus.Emit(events.EventWithData{
		Type:      evt,
		Timestamp: time.Now(),
		Data:      &events.StreamStateData{Hub: hubName, Attempt: attempt, Reason: reason},
	})
}

func (m *Manager) handleUserMessage(channel string, payload []byte) {
	correlationID := uuid.NewString()

	switch channel {
	case channelUserTrade:
		trade, err := brokerapi.DecodeTrade(payload)
		if err != nil {
			m.logDecodeError(channel, err)
			return
		}
		m.bus.Emit(events.EventWithData{
			Type:      events.TradeExecuted,
			Timestamp: time.Now(),
			Data: &events.TradeExecutedData{
				AccountID:     trade.AccountID,
				ContractID:    trade.ContractID,
				TradeID:       trade.TradeID,
				Side:          trade.Side.String(),
				Size:          trade.Size,
				Price:         trade.Price,
				RealizedPnL:   trade.RealizedPnL,
				CorrelationID: correlationID,
			},
		})
	case channelUserPosition:
		pos, err := brokerapi.DecodePosition(payload)
		if err != nil {
			m.logDecodeError(channel, err)
			return
		}
		m.bus.Emit(events.EventWithData{
			Type:      events.PositionUpdated,
			Timestamp: time.Now(),
			Data: &events.PositionUpdatedData{
				AccountID:     pos.AccountID,
				ContractID:    pos.ContractID,
				Direction:     pos.Direction.String(),
				Size:          pos.Size,
				AveragePrice:  pos.AveragePrice,
				CorrelationID: correlationID,
			},
		})
	case channelUserOrder:
		ord, err := brokerapi.DecodeOrder(payload)
		if err != nil {
			m.logDecodeError(channel, err)
			return
		}
		m.bus.Emit(events.EventWithData{
			Type:      events.OrderUpdated,
			Timestamp: time.Now(),
			Data: &events.OrderUpdatedData{
				AccountID:     ord.AccountID,
				ContractID:    ord.ContractID,
				OrderID:       ord.OrderID,
				State:         ord.State.String(),
				Side:          ord.Side.String(),
				Type:          ord.Type.String(),
				CustomTag:     ord.CustomTag,
				CorrelationID: correlationID,
			},
		})
	case channelUserAccount:
		upd, err := brokerapi.DecodeAccountUpdate(payload)
		if err != nil {
			m.logDecodeError(channel, err)
			return
		}
		m.bus.Emit(events.EventWithData{
			Type:      events.AccountUpdated,
			Timestamp: time.Now(),
			Data: &events.AccountUpdatedData{
				AccountID:     upd.AccountID,
				CanTrade:      upd.CanTrade,
				CorrelationID: correlationID,
			},
		})
	default:
		m.log.Debug().Str("channel", channel).Msg("ignoring unrecognized user hub channel")
	}
}

func (m *Manager) handleMarketMessage(channel string, payload []byte) {
	if channel != channelQuote {
		m.log.Debug().Str("channel", channel).Msg("ignoring unrecognized market hub channel")
		return
	}

	quote, err := brokerapi.DecodeQuote(payload)
	if err != nil {
		m.logDecodeError(channel, err)
		return
	}

	m.bus.Emit(events.EventWithData{
		Type:      events.QuoteUpdated,
		Timestamp: time.Now(),
		Data: &events.QuoteUpdatedData{
			Symbol:    quote.Symbol,
			LastPrice: quote.LastPrice,
		},
	})
}

func (m *Manager) logDecodeError(channel string, err error) {
	m.log.Error().Err(err).Str("channel", channel).Msg("failed to decode push event payload")
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

var _ domain.PushStream = (*Manager)(nil)
