package domain

import "context"

// BrokerClient is the REST-side abstraction every rule's enforcement action
// and every startup reconciliation call goes through. It deliberately names
// only the logical operations the risk core needs (spec: close/cancel/
// place/modify/search) and says nothing about the physical protocol binding
// (HTTP library, signing scheme) — that binding lives in internal/brokerapi
// and is swappable behind this interface, the same way the teacher's
// BrokerClient interface abstracts Tradernet from IBKR.
type BrokerClient interface {
	ClosePosition(ctx context.Context, accountID int64, contractID string) error
	CancelOrder(ctx context.Context, accountID int64, orderID string) error
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (orderID string, err error)
	ModifyOrder(ctx context.Context, accountID int64, orderID string, newStopPrice *float64) error

	SearchOpenPositions(ctx context.Context, accountID int64) ([]Position, error)
	SearchContract(ctx context.Context, contractID string) (Contract, error)
	AccountStatus(ctx context.Context, accountID int64) (canTrade bool, err error)

	IsConnected() bool
}

// PlaceOrderRequest carries the parameters for a new order, including
// protective stop placement used by the enforcement pipeline and by
// RULE-012's breakeven/trailing-stop logic.
type PlaceOrderRequest struct {
	AccountID  int64
	ContractID string
	Type       OrderType
	Side       OrderSide
	Size       float64
	StopPrice  *float64
	LimitPrice *float64
	CustomTag  string
}

// PushStream is the abstraction over the brokerage's two event hubs (user
// and market). The orchestrator wires concrete subscriptions through it;
// internal/stream provides the implementation over nhooyr.io/websocket.
type PushStream interface {
	Start(ctx context.Context) error
	Stop() error

	SubscribeTrades(accountID int64) error
	SubscribePositions(accountID int64) error
	SubscribeOrders(accountID int64) error
	SubscribeAccount(accountID int64) error
	SubscribeContractQuotes(contractID string) error

	IsConnected() bool
}
