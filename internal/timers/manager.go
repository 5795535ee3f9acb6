// Package timers schedules keyed one-shot callbacks (SPEC_FULL.md §4.13),
// used for the RULE-008 no-stop-loss grace period and the RULE-009
// session-end close. Scheduling the same key again cancels and replaces the
// prior timer. Timers are in-memory only and are dropped on shutdown. No
// daily-reset timer is scheduled here; the P&L tracker starts a fresh ledger
// when the session date changes.
package timers

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type entry struct {
	firesAt time.Time
	timer   *time.Timer
}

// Manager is the thread-safe, process-wide timer registry.
type Manager struct {
	mu      sync.Mutex
	log     zerolog.Logger
	entries map[string]*entry
}

// New builds an empty Manager.
func New(log zerolog.Logger) *Manager {
	return &Manager{
		log:     log.With().Str("component", "timers").Logger(),
		entries: make(map[string]*entry),
	}
}

// Schedule installs a one-shot timer under key, firing callback at fireAt.
// A prior timer under the same key is cancelled and replaced.
func (m *Manager) Schedule(key string, fireAt time.Time, callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok {
		existing.timer.Stop()
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	e := &entry{firesAt: fireAt}
	e.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.entries[key] == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		callback()
	})
	m.entries[key] = e
}

// Cancel stops and removes the timer under key, if any.
func (m *Manager) Cancel(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.timer.Stop()
		delete(m.entries, key)
	}
}

// Has reports whether a timer is currently scheduled under key.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Remaining returns the time left until key fires, and whether it exists.
func (m *Manager) Remaining(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	return time.Until(e.firesAt), true
}

// StopAll cancels every scheduled timer, used on daemon shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, key)
	}
}
