// Package events provides the in-process publish/subscribe bus that carries
// decoded push-stream events from the stream manager to the event router
// without coupling the two directly.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of EventData carried by an EventWithData.
type EventType string

const (
	TradeExecuted          EventType = "trade_executed"
	PositionUpdated        EventType = "position_updated"
	OrderUpdated           EventType = "order_updated"
	AccountUpdated         EventType = "account_updated"
	QuoteUpdated           EventType = "quote_updated"
	StreamConnected        EventType = "stream_connected"
	StreamDisconnected     EventType = "stream_disconnected"
	StreamReconnected      EventType = "stream_reconnected"
	ReconciliationComplete EventType = "reconciliation_complete"
	RuleBreach             EventType = "rule_breach"
	EnforcementCompleted   EventType = "enforcement_completed"
	LockoutApplied         EventType = "lockout_applied"
	LockoutRemoved         EventType = "lockout_removed"
	TimerFired             EventType = "timer_fired"
	ErrorOccurred          EventType = "error_occurred"
)

// Handler receives every event delivered to a subscription.
type Handler func(EventWithData)

// Bus is a process-wide, thread-safe publish/subscribe hub. Subscribers are
// invoked synchronously and in subscription order on the goroutine that
// calls Emit; callers that need async fan-out are expected to do so inside
// their own handler (mirrors the teacher's websocket_client.go pattern of
// calling eventBus.Emit(...) directly from the read loop).
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler
	log  zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]Handler),
		log:  log.With().Str("component", "events.bus").Logger(),
	}
}

// Subscribe registers fn to be called for every event of type t.
func (b *Bus) Subscribe(t EventType, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], fn)
}

// Emit delivers evt to every subscriber of evt.Type. A panicking handler is
// recovered and logged so one misbehaving subscriber cannot bring down the
// event router.
func (b *Bus) Emit(evt EventWithData) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[evt.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt EventWithData) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(evt.Type)).
				Msg("event subscriber panicked")
		}
	}()
	h(evt)
}
