// Package state holds the per-account in-memory views of orders and
// positions that every rule evaluator reads (SPEC_FULL.md §4.9). Mutations
// are applied strictly in stream-receive order per account; an update
// carrying an older UpdatedAt than the cached copy is ignored so a
// reordered or replayed event can never regress state.
package state

import (
	"math"
	"sync"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

type accountState struct {
	orders    map[string]domain.Order    // order_id -> Order
	positions map[string]domain.Position // contract_id -> Position
	canTrade  bool
}

// Manager is the thread-safe, process-wide state store.
type Manager struct {
	mu       sync.RWMutex
	accounts map[int64]*accountState
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{accounts: make(map[int64]*accountState)}
}

func (m *Manager) account(accountID int64) *accountState {
	a, ok := m.accounts[accountID]
	if !ok {
		a = &accountState{
			orders:    make(map[string]domain.Order),
			positions: make(map[string]domain.Position),
			canTrade:  true,
		}
		m.accounts[accountID] = a
	}
	return a
}

// ApplyOrder installs o as the current record for its order id, unless the
// cached copy is already at least as fresh.
func (m *Manager) ApplyOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(o.AccountID)
	if existing, ok := a.orders[o.OrderID]; ok && existing.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	a.orders[o.OrderID] = o
}

// ApplyPosition installs p as the current record for its contract id. A
// position of size 0 is retained (not deleted) so IsTerminal-style queries
// and direction-flip detection still see the closed state; callers that
// only want open positions should filter on Size != 0.
func (m *Manager) ApplyPosition(p domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(p.AccountID)
	a.positions[p.ContractID] = p
}

// SetCanTrade installs the account's current canTrade flag.
func (m *Manager) SetCanTrade(accountID int64, canTrade bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(accountID).canTrade = canTrade
}

// CanTrade reports whether the account is flagged tradable.
func (m *Manager) CanTrade(accountID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return true
	}
	return a.canTrade
}

// Order returns the cached order, if any.
func (m *Manager) Order(accountID int64, orderID string) (domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return domain.Order{}, false
	}
	o, ok := a.orders[orderID]
	return o, ok
}

// Position returns the cached position for a contract, if any.
func (m *Manager) Position(accountID int64, contractID string) (domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return domain.Position{}, false
	}
	p, ok := a.positions[contractID]
	return p, ok
}

// OpenPositions returns every position with a non-zero size for accountID.
func (m *Manager) OpenPositions(accountID int64) []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	out := make([]domain.Position, 0, len(a.positions))
	for _, p := range a.positions {
		if p.Size != 0 {
			out = append(out, p)
		}
	}
	return out
}

// ActiveOrders returns every order in a non-terminal state for accountID.
func (m *Manager) ActiveOrders(accountID int64) []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	out := make([]domain.Order, 0, len(a.orders))
	for _, o := range a.orders {
		if !o.State.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// GetContractCount returns the net absolute size held in contractID for
// accountID (SPEC_FULL.md §4.9).
func (m *Manager) GetContractCount(accountID int64, contractID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return 0
	}
	p, ok := a.positions[contractID]
	if !ok {
		return 0
	}
	return math.Abs(p.Size)
}

// TotalContracts returns the sum of absolute open-position sizes across
// every contract for accountID (used by RULE-001).
func (m *Manager) TotalContracts(accountID int64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return 0
	}
	var total float64
	for _, p := range a.positions {
		total += math.Abs(p.Size)
	}
	return total
}

// ReplacePositions overwrites accountID's entire position set with the REST
// truth fetched during reconciliation: every cached position not present in
// fresh is purged, and every position in fresh is installed (SPEC_FULL.md
// §4.16 reconcile_state).
func (m *Manager) ReplacePositions(accountID int64, fresh []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.account(accountID)
	a.positions = make(map[string]domain.Position, len(fresh))
	for _, p := range fresh {
		a.positions[p.ContractID] = p
	}
}
