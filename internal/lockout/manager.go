// Package lockout tracks account- and symbol-level trading lockouts
// (SPEC_FULL.md §4.12). At most one ACCOUNT lockout (which also covers
// COOLDOWN, a short-lived account lockout) exists per account; SYMBOL
// lockouts are unbounded per account. Lockouts are persisted so they survive
// a daemon restart; expired entries are pruned on load.
package lockout

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// Store persists lockouts so they survive a restart.
type Store interface {
	SaveLockout(l domain.Lockout) error
	DeleteLockout(accountID int64, kind domain.LockoutKind, symbol string) error
	LoadLockouts() ([]domain.Lockout, error)
}

// Manager is the thread-safe, process-wide lockout store. Callers must hold
// no external lock; every method is independently safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	store  Store
	log    zerolog.Logger
	byAcct map[int64]domain.Lockout            // ACCOUNT or COOLDOWN, one per account
	bySym  map[int64]map[string]domain.Lockout // accountID -> symbol -> lockout
}

// New builds a Manager. store may be nil to run in memory-only mode (tests).
func New(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		log:    log.With().Str("component", "lockout").Logger(),
		byAcct: make(map[int64]domain.Lockout),
		bySym:  make(map[int64]map[string]domain.Lockout),
	}
}

// LoadFromStore populates the in-memory maps from the persisted store,
// dropping any lockout that has already expired as of now. It is a no-op if
// no store was configured.
func (m *Manager) LoadFromStore(now time.Time) error {
	if m.store == nil {
		return nil
	}
	lockouts, err := m.store.LoadLockouts()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lockouts {
		if !l.Active(now) {
			continue
		}
		switch l.Kind {
		case domain.LockoutKindSymbol:
			m.putSymbolLocked(l)
		default:
			m.byAcct[l.AccountID] = l
		}
	}
	return nil
}

func (m *Manager) putSymbolLocked(l domain.Lockout) {
	bySym, ok := m.bySym[l.AccountID]
	if !ok {
		bySym = make(map[string]domain.Lockout)
		m.bySym[l.AccountID] = bySym
	}
	bySym[l.Symbol] = l
}

func (m *Manager) persist(l domain.Lockout) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveLockout(l); err != nil {
		m.log.Error().Err(err).Int64("account_id", l.AccountID).Msg("failed to persist lockout")
	}
}

func (m *Manager) persistDelete(accountID int64, kind domain.LockoutKind, symbol string) {
	if m.store == nil {
		return
	}
	if err := m.store.DeleteLockout(accountID, kind, symbol); err != nil {
		m.log.Error().Err(err).Int64("account_id", accountID).Msg("failed to persist lockout removal")
	}
}

// SetLockout installs (or replaces) the ACCOUNT lockout for accountID.
// until == nil means indefinite.
func (m *Manager) SetLockout(accountID int64, reason string, until *time.Time, now time.Time) {
	l := domain.Lockout{AccountID: accountID, Kind: domain.LockoutKindAccount, Reason: reason, AppliedAt: now, Until: until}
	m.mu.Lock()
	m.byAcct[accountID] = l
	m.mu.Unlock()
	m.persist(l)
}

// SetCooldown installs a short-lived ACCOUNT lockout expiring
// durationSeconds after now.
func (m *Manager) SetCooldown(accountID int64, reason string, durationSeconds int, now time.Time) {
	until := now.Add(time.Duration(durationSeconds) * time.Second)
	l := domain.Lockout{AccountID: accountID, Kind: domain.LockoutKindCooldown, Reason: reason, AppliedAt: now, Until: &until}
	m.mu.Lock()
	m.byAcct[accountID] = l
	m.mu.Unlock()
	m.persist(l)
}

// SetSymbolLockout installs (or replaces) the lockout for accountID/symbol.
func (m *Manager) SetSymbolLockout(accountID int64, symbol, reason string, until *time.Time, now time.Time) {
	l := domain.Lockout{AccountID: accountID, Kind: domain.LockoutKindSymbol, Symbol: symbol, Reason: reason, AppliedAt: now, Until: until}
	m.mu.Lock()
	m.putSymbolLocked(l)
	m.mu.Unlock()
	m.persist(l)
}

// IsLockedOut reports whether accountID currently has a live ACCOUNT or
// COOLDOWN lockout.
func (m *Manager) IsLockedOut(accountID int64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byAcct[accountID]
	return ok && l.Active(now)
}

// IsSymbolLocked reports whether accountID currently has a live lockout on
// symbol.
func (m *Manager) IsSymbolLocked(accountID int64, symbol string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySym, ok := m.bySym[accountID]
	if !ok {
		return false
	}
	l, ok := bySym[symbol]
	return ok && l.Active(now)
}

// AccountLockout returns the current ACCOUNT/COOLDOWN lockout for accountID,
// if any, regardless of whether it is still active.
func (m *Manager) AccountLockout(accountID int64) (domain.Lockout, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byAcct[accountID]
	return l, ok
}

// RemoveLockout clears the ACCOUNT/COOLDOWN lockout for accountID.
func (m *Manager) RemoveLockout(accountID int64) {
	m.mu.Lock()
	l, existed := m.byAcct[accountID]
	delete(m.byAcct, accountID)
	m.mu.Unlock()
	if existed {
		m.persistDelete(accountID, l.Kind, "")
	}
}

// RemoveSymbolLockout clears the lockout for accountID/symbol.
func (m *Manager) RemoveSymbolLockout(accountID int64, symbol string) {
	m.mu.Lock()
	bySym, ok := m.bySym[accountID]
	if ok {
		delete(bySym, symbol)
	}
	m.mu.Unlock()
	if ok {
		m.persistDelete(accountID, domain.LockoutKindSymbol, symbol)
	}
}
