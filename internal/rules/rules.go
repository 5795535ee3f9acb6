// Package rules implements the eleven risk-rule evaluators (SPEC_FULL.md
// §4.15, grounded on original_source/src/rules/*.py — RULE-007 is
// intentionally absent from both the original and this daemon). Every rule
// shares the same shape: a Check* method inspects the triggering event and
// returns an optional Breach; the event router calls Enforce when one is
// produced. A rule with enabled=false in its config never breaches. Fixed
// evaluation order and terminal-breach suppression across rules are the
// event router's responsibility (SPEC_FULL.md §4.16), not this package's —
// each rule here is independent and knows nothing about its neighbors.
package rules

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/contracts"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/enforcement"
	"github.com/riskd/sentinel-risk-daemon/internal/lockout"
	"github.com/riskd/sentinel-risk-daemon/internal/pnltracker"
	"github.com/riskd/sentinel-risk-daemon/internal/quotes"
	"github.com/riskd/sentinel-risk-daemon/internal/state"
	"github.com/riskd/sentinel-risk-daemon/internal/timers"
	"github.com/riskd/sentinel-risk-daemon/internal/tradecounter"
)

// Breach is what a rule's Check method returns when its condition holds.
// Terminal marks a close-all(+cancel-all)(+lockout) breach: the event
// router suppresses every subsequent rule's enforcement for the same event
// once a terminal breach has fired (spec §4.16).
type Breach struct {
	RuleID          string
	Reason          string
	Terminal        bool
	ObservedMetrics map[string]any
}

// Deps bundles every shared component a rule evaluator reads or writes.
// Rules never talk to the broker directly; all brokerage-facing action goes
// through Enforcement.
type Deps struct {
	State       *state.Manager
	Quotes      *quotes.Tracker
	Contracts   *contracts.Cache
	PnL         *pnltracker.Tracker
	Trades      *tradecounter.Counter
	Lockouts    *lockout.Manager
	Timers      *timers.Manager
	Enforcement *enforcement.Actions
	Log         zerolog.Logger
}

// symbolRoot resolves a contract id to its symbol root, preferring the
// cached contract's SymbolRoot (set once at fetch time) and falling back to
// the pure dot-segment parse if the contract has not been fetched yet.
func symbolRoot(d *Deps, contractID string) string {
	if c, ok := d.Contracts.Peek(contractID); ok {
		return c.SymbolRoot
	}
	return domain.SymbolRoot(contractID)
}

// nextReset computes the next occurrence of resetTime (HH:MM) in the given
// timezone, relative to now: today if resetTime is still ahead, else
// tomorrow.
func nextReset(now time.Time, resetTime, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	hour, minute := parseHHMM(resetTime)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func parseHHMM(s string) (hour, minute int) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}
