package brokerapi

import "time"

// This file defines the brokerage's wire-format request/response bodies.
// Field order in each request struct matches the brokerage's own parameter
// ordering; Go's encoder marshals struct fields in declaration order, so the
// JSON keys go out in that order. Requests are not signed: calls carry the
// session token as a Bearer header.

// loginKeyRequest is the body of POST /Auth/loginKey.
type loginKeyRequest struct {
	UserName string `json:"userName"`
	APIKey   string `json:"apiKey"`
}

type loginKeyResponse struct {
	Token        string `json:"token"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// searchOpenPositionsRequest is the body of POST /Position/searchOpen.
type searchOpenPositionsRequest struct {
	AccountID int64 `json:"accountId"`
}

type wirePosition struct {
	PositionID    string  `json:"positionId"`
	AccountID     int64   `json:"accountId"`
	ContractID    string  `json:"contractId"`
	CreationTS    int64   `json:"creationTimestamp"`
	Type          int     `json:"type"` // 1=Long, 2=Short
	Size          float64 `json:"size"`
	AveragePrice  float64 `json:"averagePrice"`
}

type searchOpenPositionsResponse struct {
	Positions []wirePosition `json:"positions"`
}

// closeContractRequest is the body of POST /Position/closeContract.
type closeContractRequest struct {
	AccountID  int64  `json:"accountId"`
	ContractID string `json:"contractId"`
}

type closeContractResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// placeOrderRequest is the body of POST /Order/place.
type placeOrderRequest struct {
	AccountID  int64    `json:"accountId"`
	ContractID string   `json:"contractId"`
	Type       int      `json:"type"`
	Side       int      `json:"side"`
	Size       float64  `json:"size"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
	TrailPrice *float64 `json:"trailPrice,omitempty"`
	CustomTag  string   `json:"customTag,omitempty"`
}

type placeOrderResponse struct {
	OrderID      string `json:"orderId"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// modifyOrderRequest is the body of POST /Order/modify.
type modifyOrderRequest struct {
	AccountID  int64    `json:"accountId"`
	OrderID    string   `json:"orderId"`
	Size       *float64 `json:"size,omitempty"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
	TrailPrice *float64 `json:"trailPrice,omitempty"`
}

type modifyOrderResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// cancelOrderRequest is the body of POST /Order/cancel.
type cancelOrderRequest struct {
	AccountID int64  `json:"accountId"`
	OrderID   string `json:"orderId"`
}

type cancelOrderResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// searchContractRequest is the body of POST /Contract/searchById.
type searchContractRequest struct {
	ContractID string `json:"contractId"`
}

type wireContract struct {
	ContractID   string  `json:"contractId"`
	SymbolRoot   string  `json:"symbolId"`
	TickSize     float64 `json:"tickSize"`
	TickValue    float64 `json:"tickValue"`
	ContractSize float64 `json:"contractSize"`
}

type searchContractResponse struct {
	Contract wireContract `json:"contract"`
}

// wireOrder appears in searchHistory responses used during reconciliation
// and in user-hub GatewayUserOrder push events.
type wireOrder struct {
	OrderID        string   `json:"orderId"`
	AccountID      int64    `json:"accountId"`
	ContractID     string   `json:"contractId"`
	SymbolID       string   `json:"symbolId"`
	CreationTS     int64    `json:"creationTimestamp"`
	UpdateTS       int64    `json:"updateTimestamp"`
	Status         *int     `json:"status,omitempty"` // 0-6 coding
	State          *int     `json:"state,omitempty"`  // 1-5 coding (search endpoints)
	Type           int      `json:"type"`
	Side           int      `json:"side"`
	Size           float64  `json:"size"`
	LimitPrice     *float64 `json:"limitPrice,omitempty"`
	StopPrice      *float64 `json:"stopPrice,omitempty"`
	FillVolume     float64  `json:"fillVolume"`
	FilledPrice    *float64 `json:"filledPrice,omitempty"`
	CustomTag      string   `json:"customTag,omitempty"`
}

// wireTrade appears in Trade/searchHistory responses and GatewayUserTrade
// push events.
type wireTrade struct {
	TradeID            string   `json:"tradeId"`
	OrderID            string   `json:"orderId"`
	AccountID          int64    `json:"accountId"`
	ContractID         string   `json:"contractId"`
	ExecutionTS        int64    `json:"executionTimestamp"`
	Side               int      `json:"side"`
	Size               float64  `json:"size"`
	Price              float64  `json:"price"`
	Fees               float64  `json:"fees"`
	RealizedProfitLoss *float64 `json:"realizedProfitLoss,omitempty"`
	Voided             bool     `json:"voided,omitempty"`
}

// wireAccountUpdate is the payload of a GatewayUserAccount push event.
type wireAccountUpdate struct {
	AccountID int64 `json:"accountId"`
	CanTrade  bool  `json:"canTrade"`
}

// accountSearchRequest is the body of POST /Account/search, used for the
// RULE-010 startup check (the REST counterpart of the GatewayUserAccount
// push channel).
type accountSearchRequest struct {
	AccountID int64 `json:"accountId"`
}

type wireAccount struct {
	AccountID int64 `json:"accountId"`
	CanTrade  bool  `json:"canTrade"`
}

type accountSearchResponse struct {
	Accounts     []wireAccount `json:"accounts"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// wireQuote is the payload of a GatewayQuote push event.
type wireQuote struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	BestBid   float64 `json:"bestBid"`
	BestAsk   float64 `json:"bestAsk"`
	Timestamp int64   `json:"timestamp"`
}

func tsToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
