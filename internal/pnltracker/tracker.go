// Package pnltracker computes realized and unrealized P&L per account
// (SPEC_FULL.md §4.10). Realized P&L accumulates durably across trades;
// unrealized P&L is derived fresh from current positions and quotes on
// every call, never stored.
package pnltracker

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/contracts"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/quotes"
)

// Store persists the daily realized P&L ledger so it survives a restart.
type Store interface {
	SaveDailyPnL(p domain.DailyPnL) error
}

// PositionSource supplies the open positions to sum unrealized P&L over.
type PositionSource interface {
	OpenPositions(accountID int64) []domain.Position
}

// Tracker accumulates realized P&L per account/session-date and derives
// unrealized P&L on demand.
type Tracker struct {
	store     Store
	positions PositionSource
	contracts *contracts.Cache
	quotes    *quotes.Tracker
	log       zerolog.Logger

	mu    sync.Mutex
	daily map[int64]domain.DailyPnL // accountID -> current session's ledger
}

// New builds a Tracker. store may be nil to run in memory-only mode (tests).
func New(store Store, positions PositionSource, contractCache *contracts.Cache, quoteTracker *quotes.Tracker, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		positions: positions,
		contracts: contractCache,
		quotes:    quoteTracker,
		log:       log.With().Str("component", "pnltracker").Logger(),
		daily:     make(map[int64]domain.DailyPnL),
	}
}

// LoadFromStore hydrates today's realized ledger for every account present
// in entries, filtering to today's date so a restart mid-session resumes
// the running total instead of double-counting a stale day.
func (t *Tracker) LoadFromStore(entries []domain.DailyPnL, today string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		if e.Date != today {
			continue
		}
		t.daily[e.AccountID] = e
	}
}

// AddTradePnL accumulates pnl into today's realized total for accountID and
// persists the updated ledger.
func (t *Tracker) AddTradePnL(accountID int64, date string, pnl float64) error {
	t.mu.Lock()
	ledger, ok := t.daily[accountID]
	if !ok || ledger.Date != date {
		ledger = domain.DailyPnL{AccountID: accountID, Date: date}
	}
	ledger.RealizedPnL += pnl
	t.daily[accountID] = ledger
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveDailyPnL(ledger); err != nil {
			t.log.Error().Err(err).Int64("account_id", accountID).Msg("failed to persist daily pnl")
			return err
		}
	}
	return nil
}

// RealizedPnL returns the current session's realized total for accountID.
func (t *Tracker) RealizedPnL(accountID int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.daily[accountID].RealizedPnL
}

// ResetDaily zeroes accountID's realized ledger for the new session date,
// archiving the prior value by returning it to the caller for logging.
func (t *Tracker) ResetDaily(accountID int64, newDate string) (previous domain.DailyPnL) {
	t.mu.Lock()
	previous = t.daily[accountID]
	t.daily[accountID] = domain.DailyPnL{AccountID: accountID, Date: newDate}
	fresh := t.daily[accountID]
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveDailyPnL(fresh); err != nil {
			t.log.Error().Err(err).Int64("account_id", accountID).Msg("failed to persist daily pnl reset")
		}
	}
	return previous
}

// CalculatePerPosition returns each open position's unrealized P&L keyed by
// contract id, skipping (and logging) any position missing its contract or
// a fresh quote rather than failing the whole computation.
func (t *Tracker) CalculatePerPosition(accountID int64) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range t.positions.OpenPositions(accountID) {
		pnl, ok := t.unrealizedForPosition(p)
		if !ok {
			continue
		}
		out[p.ContractID] = pnl
	}
	return out
}

// CalculateUnrealized sums CalculatePerPosition's result for accountID.
func (t *Tracker) CalculateUnrealized(accountID int64) float64 {
	var total float64
	for _, pnl := range t.CalculatePerPosition(accountID) {
		total += pnl
	}
	return total
}

func (t *Tracker) unrealizedForPosition(p domain.Position) (float64, bool) {
	contract, ok := t.contracts.Peek(p.ContractID)
	if !ok {
		t.log.Warn().Str("contract_id", p.ContractID).Msg("skipping unrealized pnl: contract not cached")
		return 0, false
	}
	symbol := contract.SymbolRoot
	q, ok := t.quotes.LastPrice(symbol)
	if !ok {
		t.log.Warn().Str("symbol", symbol).Msg("skipping unrealized pnl: no quote")
		return 0, false
	}
	if contract.TickSize == 0 {
		t.log.Warn().Str("contract_id", p.ContractID).Msg("skipping unrealized pnl: zero tick size")
		return 0, false
	}

	ticks := (q.LastPrice - p.AveragePrice) / contract.TickSize
	if p.Direction == domain.DirectionShort {
		ticks = -ticks
	}
	return ticks * contract.TickValue * p.Size, true
}
