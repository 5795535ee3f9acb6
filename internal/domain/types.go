// Package domain holds the value types shared by every component of the
// risk daemon: accounts, contracts, orders, positions, trades, quotes, and
// the bookkeeping records (daily P&L, lockouts, timers, enforcement log
// entries) that the rule evaluators read and write.
package domain

import "time"

// Account is one brokerage principal the daemon monitors.
type Account struct {
	AccountID int64
	Name      string
	Balance   float64
	CanTrade  bool
	Visible   bool
	Simulated bool
}

// Contract is immutable once fetched. SymbolRoot is derived once at fetch
// time and cached alongside the rest of the contract, not recomputed on
// every access.
type Contract struct {
	ContractID   string
	SymbolRoot   string
	TickSize     float64
	TickValue    float64
	ContractSize float64
}

// Order mirrors an order at the brokerage. Terminal states are
// FILLED/CANCELLED/REJECTED/EXPIRED; the enforcement pipeline never
// "modifies" an order once it reaches one of these.
type Order struct {
	OrderID         string
	AccountID       int64
	ContractID      string
	SymbolID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	State           OrderState
	Type            OrderType
	Side            OrderSide
	Size            float64
	LimitPrice      *float64
	StopPrice       *float64
	FilledQuantity  float64
	FilledPrice     *float64
	CustomTag       string
}

// Position is the account's current holding in a contract. Size 0 means the
// position is closed; a direction flip always passes through size 0.
type Position struct {
	PositionID   string
	AccountID    int64
	ContractID   string
	OpenedAt     time.Time
	Direction    Direction
	Size         float64
	AveragePrice float64
}

// Trade is an execution. RealizedPnL == nil marks a half-turn (the opening
// leg of a round trip): it still counts toward trade frequency but never
// toward the daily realized loss total.
type Trade struct {
	TradeID     string
	OrderID     string
	AccountID   int64
	ContractID  string
	ExecutedAt  time.Time
	Side        OrderSide
	Size        float64
	Price       float64
	Fees        float64
	RealizedPnL *float64
	Voided      bool
}

// IsHalfTurn reports whether this trade is an opening leg with no realized
// P&L of its own.
func (t Trade) IsHalfTurn() bool {
	return t.RealizedPnL == nil
}

// Quote is the latest observed market price for a symbol. Only LastPrice and
// LastUpdated are required for correctness; bid/ask are carried for
// completeness but no rule depends on them.
type Quote struct {
	Symbol      string
	LastPrice   float64
	BestBid     float64
	BestAsk     float64
	LastUpdated time.Time
}

// DailyPnL is the realized P&L total for one account on one session date.
// The session date rolls at the configured reset time in the configured
// timezone, never at UTC midnight.
type DailyPnL struct {
	AccountID   int64
	Date        string // YYYY-MM-DD in the configured timezone
	RealizedPnL float64
}

// Lockout suppresses enforcement (and, at the brokerage level, new orders)
// for an account or symbol. Until == nil means indefinite. At most one
// ACCOUNT lockout exists per account at a time; SYMBOL lockouts are
// unbounded per account; COOLDOWN is an ACCOUNT lockout with a short Until.
type Lockout struct {
	AccountID int64
	Kind      LockoutKind
	Symbol    string // only set when Kind == LockoutKindSymbol
	Reason    string
	AppliedAt time.Time
	Until     *time.Time
}

// Active reports whether the lockout is still in effect at t.
func (l Lockout) Active(t time.Time) bool {
	if l.Until == nil {
		return true
	}
	return t.Before(*l.Until)
}

// Timer is a scheduled one-shot callback keyed by a deterministic string so
// that scheduling and cancellation are idempotent (e.g.
// "no_sl_grace:<account>:<position>").
type Timer struct {
	Key     string
	FiresAt time.Time
	Payload map[string]any
}

// EnforcementLogEntry is one append-only record of an enforcement decision,
// successful or not.
type EnforcementLogEntry struct {
	At              time.Time
	AccountID       int64
	RuleID          string
	Action          string
	Reason          string
	Success         bool
	ObservedMetrics map[string]any
}
