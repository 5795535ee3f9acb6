package brokerapi

import (
	"encoding/json"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// This file is the wire ↔ internal field converter: camelCase brokerage
// fields in, snake_case domain.* structs out. Order state is the one field
// that needs a coding-aware conversion (see domain.FromWireOrderStatus /
// domain.FromWireOrderSearchState) since the brokerage exposes two
// different status codings depending on which endpoint returned the order.

func convertPosition(w wirePosition) domain.Position {
	return domain.Position{
		PositionID:   w.PositionID,
		AccountID:    w.AccountID,
		ContractID:   w.ContractID,
		OpenedAt:     tsToTime(w.CreationTS),
		Direction:    domain.FromWirePositionType(w.Type),
		Size:         w.Size,
		AveragePrice: w.AveragePrice,
	}
}

func convertPositions(ws []wirePosition) []domain.Position {
	out := make([]domain.Position, 0, len(ws))
	for _, w := range ws {
		out = append(out, convertPosition(w))
	}
	return out
}

func convertContract(w wireContract) domain.Contract {
	return domain.Contract{
		ContractID:   w.ContractID,
		SymbolRoot:   domain.SymbolRoot(w.ContractID),
		TickSize:     w.TickSize,
		TickValue:    w.TickValue,
		ContractSize: w.ContractSize,
	}
}

func convertOrder(w wireOrder) domain.Order {
	var state domain.OrderState
	switch {
	case w.Status != nil:
		state = domain.FromWireOrderStatus(*w.Status)
	case w.State != nil:
		state = domain.FromWireOrderSearchState(*w.State)
	default:
		state = domain.OrderStatePending
	}

	o := domain.Order{
		OrderID:        w.OrderID,
		AccountID:      w.AccountID,
		ContractID:     w.ContractID,
		SymbolID:       w.SymbolID,
		CreatedAt:      tsToTime(w.CreationTS),
		UpdatedAt:      tsToTime(w.UpdateTS),
		State:          state,
		Side:           domain.FromWireOrderSide(w.Side),
		Size:           w.Size,
		LimitPrice:     w.LimitPrice,
		StopPrice:      w.StopPrice,
		FilledQuantity: w.FillVolume,
		FilledPrice:    w.FilledPrice,
		CustomTag:      w.CustomTag,
	}

	switch w.Type {
	case 1:
		o.Type = domain.OrderTypeLimit
	case 2:
		o.Type = domain.OrderTypeMarket
	case 3:
		o.Type = domain.OrderTypeStopLimit
	case 4:
		o.Type = domain.OrderTypeStop
	case 5:
		o.Type = domain.OrderTypeTrailingStop
	case 6:
		o.Type = domain.OrderTypeJoinBid
	case 7:
		o.Type = domain.OrderTypeJoinAsk
	default:
		o.Type = domain.OrderTypeUnknown
	}

	return o
}

// AccountUpdate is the decoded form of a GatewayUserAccount push event.
type AccountUpdate struct {
	AccountID int64
	CanTrade  bool
}

// DecodePosition parses a GatewayUserPosition push payload (the same shape
// as a searchOpen response element) into a domain.Position. Exported so
// internal/stream can reuse the single field converter rather than
// duplicating the wire format.
func DecodePosition(raw []byte) (domain.Position, error) {
	var w wirePosition
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Position{}, err
	}
	return convertPosition(w), nil
}

// DecodeOrder parses a GatewayUserOrder push payload into a domain.Order.
func DecodeOrder(raw []byte) (domain.Order, error) {
	var w wireOrder
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Order{}, err
	}
	return convertOrder(w), nil
}

// DecodeTrade parses a GatewayUserTrade push payload into a domain.Trade.
func DecodeTrade(raw []byte) (domain.Trade, error) {
	var w wireTrade
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Trade{}, err
	}
	return convertTrade(w), nil
}

// DecodeAccountUpdate parses a GatewayUserAccount push payload.
func DecodeAccountUpdate(raw []byte) (AccountUpdate, error) {
	var w wireAccountUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return AccountUpdate{}, err
	}
	return AccountUpdate{AccountID: w.AccountID, CanTrade: w.CanTrade}, nil
}

// DecodeQuote parses a GatewayQuote push payload into a domain.Quote.
func DecodeQuote(raw []byte) (domain.Quote, error) {
	var w wireQuote
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Quote{}, err
	}
	q := domain.Quote{
		Symbol:    w.Symbol,
		LastPrice: w.LastPrice,
		BestBid:   w.BestBid,
		BestAsk:   w.BestAsk,
	}
	if w.Timestamp != 0 {
		q.LastUpdated = tsToTime(w.Timestamp)
	}
	return q, nil
}

func convertTrade(w wireTrade) domain.Trade {
	return domain.Trade{
		TradeID:     w.TradeID,
		OrderID:     w.OrderID,
		AccountID:   w.AccountID,
		ContractID:  w.ContractID,
		ExecutedAt:  tsToTime(w.ExecutionTS),
		Side:        domain.FromWireOrderSide(w.Side),
		Size:        w.Size,
		Price:       w.Price,
		Fees:        w.Fees,
		RealizedPnL: w.RealizedProfitLoss,
		Voided:      w.Voided,
	}
}
