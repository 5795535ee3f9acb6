package events

import (
	"encoding/json"
	"time"
)

// EventData is implemented by every typed event payload. It mirrors the
// teacher's EventData contract so EventWithData can dispatch to the correct
// concrete type on JSON decode (used when replaying the enforcement log or
// serving the status API).
type EventData interface {
	EventType() EventType
}

// TradeExecutedData carries a fill, including the correlation id threaded
// from stream ingest through to any resulting enforcement.
type TradeExecutedData struct {
	AccountID     int64    `json:"account_id"`
	ContractID    string   `json:"contract_id"`
	TradeID       string   `json:"trade_id"`
	Side          string   `json:"side"`
	Size          float64  `json:"size"`
	Price         float64  `json:"price"`
	RealizedPnL   *float64 `json:"realized_pnl,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// PositionUpdatedData carries a position snapshot from the user hub.
type PositionUpdatedData struct {
	AccountID     int64   `json:"account_id"`
	ContractID    string  `json:"contract_id"`
	Direction     string  `json:"direction"`
	Size          float64 `json:"size"`
	AveragePrice  float64 `json:"average_price"`
	CorrelationID string  `json:"correlation_id"`
}

func (d *PositionUpdatedData) EventType() EventType { return PositionUpdated }

// OrderUpdatedData carries an order snapshot from the user hub.
type OrderUpdatedData struct {
	AccountID     int64  `json:"account_id"`
	ContractID    string `json:"contract_id"`
	OrderID       string `json:"order_id"`
	State         string `json:"state"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	CustomTag     string `json:"custom_tag,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func (d *OrderUpdatedData) EventType() EventType { return OrderUpdated }

// AccountUpdatedData carries a canTrade transition.
type AccountUpdatedData struct {
	AccountID     int64  `json:"account_id"`
	CanTrade      bool   `json:"can_trade"`
	CorrelationID string `json:"correlation_id"`
}

func (d *AccountUpdatedData) EventType() EventType { return AccountUpdated }

// QuoteUpdatedData carries a market-hub quote.
type QuoteUpdatedData struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
}

func (d *QuoteUpdatedData) EventType() EventType { return QuoteUpdated }

// StreamStateData carries push-stream lifecycle transitions.
type StreamStateData struct {
	Hub     string `json:"hub"`
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (d *StreamStateData) EventType() EventType { return StreamConnected }

// RuleBreachData records a rule evaluator firing, independent of whether
// enforcement succeeded.
type RuleBreachData struct {
	AccountID     int64  `json:"account_id"`
	RuleID        string `json:"rule_id"`
	Reason        string `json:"reason"`
	Terminal      bool   `json:"terminal"`
	CorrelationID string `json:"correlation_id"`
}

func (d *RuleBreachData) EventType() EventType { return RuleBreach }

// EnforcementCompletedData records the outcome of an enforcement cycle.
type EnforcementCompletedData struct {
	AccountID int64  `json:"account_id"`
	RuleID    string `json:"rule_id"`
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func (d *EnforcementCompletedData) EventType() EventType { return EnforcementCompleted }

// LockoutChangedData records a lockout being applied or removed.
type LockoutChangedData struct {
	AccountID int64  `json:"account_id"`
	Kind      string `json:"kind"`
	Symbol    string `json:"symbol,omitempty"`
	Reason    string `json:"reason"`
}

func (d *LockoutChangedData) EventType() EventType { return LockoutApplied }

// ErrorEventData carries a non-fatal error surfaced for operator visibility.
type ErrorEventData struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// EventWithData is one bus message: a type tag, timestamp, and typed
// payload. MarshalJSON/UnmarshalJSON follow the teacher's pattern of
// marshalling Data separately and dispatching on Type during unmarshal, so
// the enforcement log and status API can round-trip events to/from JSON
// without a type switch at every call site.
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	var payload EventData
	switch aux.Type {
	case TradeExecuted:
		payload = &TradeExecutedData{}
	case PositionUpdated:
		payload = &PositionUpdatedData{}
	case OrderUpdated:
		payload = &OrderUpdatedData{}
	case AccountUpdated:
		payload = &AccountUpdatedData{}
	case QuoteUpdated:
		payload = &QuoteUpdatedData{}
	case StreamConnected, StreamDisconnected, StreamReconnected:
		payload = &StreamStateData{}
	case RuleBreach:
		payload = &RuleBreachData{}
	case EnforcementCompleted:
		payload = &EnforcementCompletedData{}
	case LockoutApplied, LockoutRemoved:
		payload = &LockoutChangedData{}
	case ErrorOccurred:
		payload = &ErrorEventData{}
	default:
		var raw map[string]interface{}
		if err := json.Unmarshal(aux.Data, &raw); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: raw}
		return nil
	}

	if err := json.Unmarshal(aux.Data, payload); err != nil {
		return err
	}
	e.Data = payload
	return nil
}

// GenericEventData is the fallback for event types this binary doesn't
// recognize (e.g. a newer enforcement log read by an older binary).
type GenericEventData struct {
	Type EventType
	Data map[string]interface{}
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
