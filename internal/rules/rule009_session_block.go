package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
)

// SessionBlock is RULE-009: restricts trading to a configured window (with
// per-instrument overrides), honoring a holiday calendar and sessions that
// wrap midnight. Grounded on
// original_source/src/rules/session_block_outside_hours.py.
type SessionBlock struct {
	cfg  config.SessionBlockConfig
	deps *Deps
}

func NewSessionBlock(cfg config.SessionBlockConfig, deps *Deps) *SessionBlock {
	return &SessionBlock{cfg: cfg, deps: deps}
}

func (r *SessionBlock) ID() string { return "RULE-009" }

func (r *SessionBlock) loc() *time.Location {
	loc, err := time.LoadLocation(r.cfg.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r *SessionBlock) sessionFor(symbol string) (start, end string) {
	for _, ih := range r.cfg.InstrumentHours {
		if ih.Symbol == symbol {
			return ih.Start, ih.End
		}
	}
	return r.cfg.Start, r.cfg.End
}

func (r *SessionBlock) isHoliday(t time.Time) bool {
	date := t.Format("2006-01-02")
	for _, h := range r.cfg.Holidays {
		if h == date {
			return true
		}
	}
	return false
}

// inSession reports whether t falls within [start, end) for that
// instrument, handling sessions that wrap past midnight (end < start).
func inSession(t time.Time, start, end string) bool {
	startH, startM := parseHHMM(start)
	endH, endM := parseHHMM(end)
	minutesNow := t.Hour()*60 + t.Minute()
	startMin := startH*60 + startM
	endMin := endH*60 + endM

	if startMin == endMin {
		return true // 24h session
	}
	if startMin < endMin {
		return minutesNow >= startMin && minutesNow < endMin
	}
	// wraps midnight
	return minutesNow >= startMin || minutesNow < endMin
}

// CheckPosition is called on a position-open attempt; it rejects trading
// outside the session window or on a holiday.
func (r *SessionBlock) CheckPosition(accountID int64, contractID string) *Breach {
	if !r.cfg.Enabled {
		return nil
	}
	now := time.Now().In(r.loc())
	if r.isHoliday(now) {
		return &Breach{
			RuleID:   r.ID(),
			Reason:   fmt.Sprintf("%s is a configured holiday", now.Format("2006-01-02")),
			Terminal: true,
		}
	}
	symbol := symbolRoot(r.deps, contractID)
	start, end := r.sessionFor(symbol)
	if inSession(now, start, end) {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   fmt.Sprintf("%s traded outside session window %s-%s %s", symbol, start, end, r.cfg.Timezone),
		Terminal: true,
	}
}

func sessionEndTimerKey(accountID int64) string {
	return fmt.Sprintf("session_end:%d", accountID)
}

// ScheduleSessionEnd arms (or re-arms) the account's session-end timer for
// the next occurrence of the configured session end time, so a position
// left open through the boundary gets auto-closed. The router calls this
// whenever a position opens; rescheduling to the same upcoming boundary is
// a no-op in effect since timers.Manager.Schedule replaces by key.
func (r *SessionBlock) ScheduleSessionEnd(accountID int64, fire func()) {
	if !r.cfg.Enabled || !r.cfg.AutoCloseAtEnd {
		return
	}
	r.deps.Timers.Schedule(sessionEndTimerKey(accountID), r.nextSessionEnd(time.Now().In(r.loc())), fire)
}

// nextSessionEnd returns the next wall-clock instant the account-wide
// session ends at or after now, handling a session that wraps midnight the
// same way inSession does.
func (r *SessionBlock) nextSessionEnd(now time.Time) time.Time {
	endH, endM := parseHHMM(r.cfg.End)
	end := time.Date(now.Year(), now.Month(), now.Day(), endH, endM, 0, 0, r.loc())
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// CheckSessionEnd is called by the router's session-end timer; with
// auto_close_at_end it produces a non-terminal close-all with no lockout.
func (r *SessionBlock) CheckSessionEnd(accountID int64) *Breach {
	if !r.cfg.Enabled || !r.cfg.AutoCloseAtEnd {
		return nil
	}
	return &Breach{
		RuleID:   r.ID(),
		Reason:   "session ended, auto_close_at_end",
		Terminal: false,
		ObservedMetrics: map[string]any{
			"session_end": true,
		},
	}
}

// Enforce closes out the account; a session-end auto-close carries no
// lockout, while trading outside the session locks the account out until
// the next session start.
func (r *SessionBlock) Enforce(ctx context.Context, accountID int64, b Breach) {
	r.deps.Enforcement.CloseAllPositions(ctx, r.ID(), accountID, b.Reason)
	r.deps.Enforcement.CancelAllOrders(ctx, r.ID(), accountID, b.Reason)

	if sessionEnd, _ := b.ObservedMetrics["session_end"].(bool); sessionEnd {
		return
	}

	now := time.Now().In(r.loc())
	startH, startM := parseHHMM(r.cfg.Start)
	until := time.Date(now.Year(), now.Month(), now.Day(), startH, startM, 0, 0, r.loc())
	if !until.After(now) {
		until = until.AddDate(0, 0, 1)
	}
	r.deps.Lockouts.SetLockout(accountID, b.Reason, &until, time.Now())
}
