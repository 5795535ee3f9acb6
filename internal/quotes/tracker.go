// Package quotes maintains the last observed market price per symbol
// (SPEC_FULL.md §4.8).
package quotes

import (
	"sync"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// staleAfter is how old a quote can be before rules should treat it as
// unreliable for P&L purposes.
const staleAfter = 60 * time.Second

// Tracker is a thread-safe last-price map keyed by symbol root.
type Tracker struct {
	mu   sync.RWMutex
	byID map[string]domain.Quote
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{byID: make(map[string]domain.Quote)}
}

// OnQuote records a newly observed quote, overwriting any prior one for the
// same symbol regardless of timestamp ordering — unlike state.Manager,
// quotes have no monotonic update concept to defend.
func (t *Tracker) OnQuote(q domain.Quote) {
	if q.LastUpdated.IsZero() {
		q.LastUpdated = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[q.Symbol] = q
}

// LastPrice returns the latest quote for symbol and whether it is present.
func (t *Tracker) LastPrice(symbol string) (domain.Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.byID[symbol]
	return q, ok
}

// IsStale reports whether q is older than the staleness threshold.
func IsStale(q domain.Quote) bool {
	return time.Since(q.LastUpdated) > staleAfter
}
