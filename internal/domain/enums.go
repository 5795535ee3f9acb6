package domain

// OrderState is the single internal order-lifecycle enum. Two brokerage wire
// codings (a 0-6 status code and a 1-5 state code) both normalize to this set
// at the converter boundary; nothing downstream ever sees a wire code.
type OrderState int

const (
	OrderStatePending OrderState = iota
	OrderStateActive
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
	OrderStateExpired
	OrderStatePartial
)

func (s OrderState) String() string {
	switch s {
	case OrderStatePending:
		return "PENDING"
	case OrderStateActive:
		return "ACTIVE"
	case OrderStateFilled:
		return "FILLED"
	case OrderStateCancelled:
		return "CANCELLED"
	case OrderStateRejected:
		return "REJECTED"
	case OrderStateExpired:
		return "EXPIRED"
	case OrderStatePartial:
		return "PARTIAL"
	default:
		return "UNKNOWN"
	}
}

// ParseOrderState is the inverse of String, used by consumers of the
// internal event bus that only carry the state as text.
func ParseOrderState(s string) OrderState {
	switch s {
	case "ACTIVE":
		return OrderStateActive
	case "FILLED":
		return OrderStateFilled
	case "CANCELLED":
		return OrderStateCancelled
	case "REJECTED":
		return OrderStateRejected
	case "EXPIRED":
		return OrderStateExpired
	case "PARTIAL":
		return OrderStatePartial
	default:
		return OrderStatePending
	}
}

// IsTerminal reports whether no further state transition is possible.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the order is still working at the brokerage.
func (s OrderState) IsActive() bool {
	switch s {
	case OrderStateActive, OrderStatePending, OrderStatePartial:
		return true
	default:
		return false
	}
}

// WireOrderStatus is the brokerage's primary 0-6 order status coding.
type WireOrderStatus int

const (
	WireStatusNone WireOrderStatus = iota
	WireStatusOpen
	WireStatusFilled
	WireStatusCancelled
	WireStatusExpired
	WireStatusRejected
	WireStatusPending
)

// FromWireOrderStatus maps the 0-6 status coding onto the internal enum.
// NONE and PENDING both map to PENDING; OPEN maps to ACTIVE; the rest are
// identity mappings by name.
func FromWireOrderStatus(v int) OrderState {
	switch WireOrderStatus(v) {
	case WireStatusNone, WireStatusPending:
		return OrderStatePending
	case WireStatusOpen:
		return OrderStateActive
	case WireStatusFilled:
		return OrderStateFilled
	case WireStatusCancelled:
		return OrderStateCancelled
	case WireStatusExpired:
		return OrderStateExpired
	case WireStatusRejected:
		return OrderStateRejected
	default:
		return OrderStatePending
	}
}

// WireOrderSearchState is the 1-5 state-only coding used by the search
// endpoints (Order/searchHistory and friends).
type WireOrderSearchState int

const (
	WireSearchStatePending WireOrderSearchState = iota + 1
	WireSearchStateActive
	WireSearchStateFilled
	WireSearchStateCancelled
	WireSearchStateRejected
)

// FromWireOrderSearchState maps the 1-5 state coding onto the internal enum.
func FromWireOrderSearchState(v int) OrderState {
	switch WireOrderSearchState(v) {
	case WireSearchStatePending:
		return OrderStatePending
	case WireSearchStateActive:
		return OrderStateActive
	case WireSearchStateFilled:
		return OrderStateFilled
	case WireSearchStateCancelled:
		return OrderStateCancelled
	case WireSearchStateRejected:
		return OrderStateRejected
	default:
		return OrderStatePending
	}
}

// OrderSide is BUY or SELL. Wire coding: 0=Bid=Buy, 1=Ask=Sell.
type OrderSide int

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

func (s OrderSide) String() string {
	if s == OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

// FromWireOrderSide maps the 0/1 bid/ask coding onto BUY/SELL.
func FromWireOrderSide(v int) OrderSide {
	if v == 1 {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Opposite returns the other side, used when placing protective stops.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType enumerates the brokerage's order type coding (0-7).
type OrderType int

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeStopLimit
	OrderTypeStop
	OrderTypeTrailingStop
	OrderTypeJoinBid
	OrderTypeJoinAsk
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeTrailingStop:
		return "TRAILING_STOP"
	case OrderTypeJoinBid:
		return "JOIN_BID"
	case OrderTypeJoinAsk:
		return "JOIN_ASK"
	default:
		return "UNKNOWN"
	}
}

// ParseOrderType is the inverse of String, used by consumers of the
// internal event bus that only carry the type as text.
func ParseOrderType(s string) OrderType {
	switch s {
	case "LIMIT":
		return OrderTypeLimit
	case "MARKET":
		return OrderTypeMarket
	case "STOP_LIMIT":
		return OrderTypeStopLimit
	case "STOP":
		return OrderTypeStop
	case "TRAILING_STOP":
		return OrderTypeTrailingStop
	case "JOIN_BID":
		return OrderTypeJoinBid
	case "JOIN_ASK":
		return OrderTypeJoinAsk
	default:
		return OrderTypeUnknown
	}
}

// Direction is the position side, LONG or SHORT. Wire coding: 1=Long, 2=Short.
type Direction int

const (
	DirectionLong Direction = iota + 1
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionShort {
		return "SHORT"
	}
	return "LONG"
}

// FromWirePositionType maps the 1/2 long/short coding onto Direction.
func FromWirePositionType(v int) Direction {
	if v == 2 {
		return DirectionShort
	}
	return DirectionLong
}

// LockoutKind distinguishes the three lockout flavours tracked by the
// lockout manager.
type LockoutKind int

const (
	LockoutKindAccount LockoutKind = iota
	LockoutKindSymbol
	LockoutKindCooldown
)

func (k LockoutKind) String() string {
	switch k {
	case LockoutKindSymbol:
		return "SYMBOL"
	case LockoutKindCooldown:
		return "COOLDOWN"
	default:
		return "ACCOUNT"
	}
}
