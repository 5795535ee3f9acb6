// Package stream implements domain.PushStream over the brokerage's two
// websocket hubs (user and market), grounded on the teacher's
// internal/clients/tradernet/websocket_client.go reconnect/read-loop shape.
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ConnState is a position in the push-stream connection state machine
// (SPEC_FULL.md §4.6).
type ConnState string

const (
	StateDisconnected            ConnState = "disconnected"
	StateConnecting              ConnState = "connecting"
	StateConnected               ConnState = "connected"
	StateReconnecting            ConnState = "reconnecting"
	StateTokenRefresh            ConnState = "token_refresh"
	StatePermanentlyDisconnected ConnState = "permanently_disconnected"
)

// HealthStatus summarizes a hub's recent ping history.
type HealthStatus string

const (
	HealthHealthy      HealthStatus = "healthy"
	HealthDegraded     HealthStatus = "degraded"
	HealthUnhealthy    HealthStatus = "unhealthy"
	HealthDisconnected HealthStatus = "disconnected"
)

// reconnectDelays is the saturating backoff schedule: immediate, then 2s,
// 10s, 30s, 60s, holding at 60s for any attempt beyond the table.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second}

const (
	maxReconnectAttempts = 10
	maxReconnectWindow   = 5 * time.Minute
	dialTimeout          = 30 * time.Second
	writeTimeout         = 10 * time.Second
	pingInterval         = 30 * time.Second
	pingTimeout          = 5 * time.Second
	pingHistorySize      = 10
	staleAfter           = 120 * time.Second
)

// tokenProvider is the subset of TokenManager a hub needs to authenticate
// its websocket dial.
type tokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// subscription is one previously-issued subscribe call, replayed in
// registration order after every successful reconnect (SPEC_FULL.md §4.6).
type subscription struct {
	label   string
	message []string
}

// hub owns one websocket connection (user or market) along with its
// reconnect state, ping health history, and subscription replay list.
type hub struct {
	name   string
	url    string
	tokens tokenProvider
	log    zerolog.Logger

	onMessage     func(channel string, payload []byte)
	onReconnected func()

	httpClient *http.Client

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ConnState
	cancel           context.CancelFunc
	stopped          bool
	subs             []subscription
	reconnectAt      time.Time
	lastServerEvent  time.Time
	pingResults      []bool
	pingLatenciesMs  []int64
	consecutiveFails int
}

func newHub(name, url string, tokens tokenProvider, onMessage func(string, []byte), log zerolog.Logger) *hub {
	return &hub{
		name:       name,
		url:        url,
		tokens:     tokens,
		onMessage:  onMessage,
		log:        log.With().Str("hub", name).Logger(),
		httpClient: http1Client(),
		state:      StateDisconnected,
	}
}

// http1Client forces HTTP/1.1 so the TLS ALPN handshake doesn't negotiate
// HTTP/2, which the websocket upgrade cannot ride on.
func http1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// start dials the hub and, on success, launches its read and ping loops in
// the background. A failed initial dial still starts the reconnect loop
// rather than returning an error, matching the teacher's "connect in the
// background, never block Start()" posture.
func (h *hub) start(ctx context.Context) {
	h.mu.Lock()
	h.stopped = false
	h.mu.Unlock()

	if err := h.connect(ctx); err != nil {
		h.log.Warn().Err(err).Msg("initial connection failed, reconnecting in background")
		go h.reconnectLoop(ctx)
		return
	}
	go h.runLoops(ctx)
}

func (h *hub) stop() {
	h.mu.Lock()
	h.stopped = true
	cancel := h.cancel
	conn := h.conn
	h.conn = nil
	h.cancel = nil
	h.state = StateDisconnected
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}

func (h *hub) isConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateConnected
}

// connect dials, replays every stored subscription in order, and installs
// the new connection. A replay failure for one subscription is logged but
// does not abort the rest (SPEC_FULL.md §4.6).
func (h *hub) connect(parent context.Context) error {
	h.mu.Lock()
	h.state = StateConnecting
	h.mu.Unlock()

	token, err := h.tokens.GetToken(parent)
	if err != nil {
		return fmt.Errorf("stream: fetching token for %s hub: %w", h.name, err)
	}

	dialURL := h.url
	if token != "" {
		dialURL += "?SID=" + token
	}

	dialCtx, dialCancel := context.WithTimeout(parent, dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, dialURL, &websocket.DialOptions{HTTPClient: h.httpClient})
	if err != nil {
		h.mu.Lock()
		h.state = StateDisconnected
		h.mu.Unlock()
		return fmt.Errorf("stream: dialing %s hub: %w", h.name, err)
	}

	connCtx, connCancel := context.WithCancel(parent)

	h.mu.Lock()
	h.conn = conn
	h.cancel = connCancel
	h.state = StateConnected
	h.lastServerEvent = time.Now()
	h.pingResults = nil
	h.pingLatenciesMs = nil
	h.consecutiveFails = 0
	subs := append([]subscription(nil), h.subs...)
	h.mu.Unlock()

	for _, s := range subs {
		if err := h.send(connCtx, s.message); err != nil {
			h.log.Error().Err(err).Str("subscription", s.label).Msg("failed to replay subscription after reconnect")
		}
	}

	h.log.Info().Msg("hub connected")
	return nil
}

func (h *hub) runLoops(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.readLoop(ctx)
		close(done)
	}()
	go h.pingLoop(ctx, done)

	<-done

	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if !stopped {
		go h.reconnectLoop(ctx)
	}
}

func (h *hub) readLoop(ctx context.Context) {
	for {
		h.mu.Lock()
		conn := h.conn
		h.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Warn().Err(err).Msg("read error, dropping connection")
			h.mu.Lock()
			h.state = StateDisconnected
			h.conn = nil
			h.mu.Unlock()
			return
		}

		h.mu.Lock()
		h.lastServerEvent = time.Now()
		h.mu.Unlock()

		channel, payload, ok := splitFrame(msg)
		if !ok {
			continue
		}
		if h.onMessage != nil {
			h.onMessage(channel, payload)
		}
	}
}

func (h *hub) pingLoop(ctx context.Context, stop <-chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			h.ping(ctx)
		}
	}
}

func (h *hub) ping(parent context.Context) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, pingTimeout)
	defer cancel()

	start := time.Now()
	err := conn.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	defer h.mu.Unlock()
	ok := err == nil
	h.pingResults = append(h.pingResults, ok)
	h.pingLatenciesMs = append(h.pingLatenciesMs, latency.Milliseconds())
	if len(h.pingResults) > pingHistorySize {
		h.pingResults = h.pingResults[len(h.pingResults)-pingHistorySize:]
		h.pingLatenciesMs = h.pingLatenciesMs[len(h.pingLatenciesMs)-pingHistorySize:]
	}
	if ok {
		h.consecutiveFails = 0
	} else {
		h.consecutiveFails++
	}
}

// health derives the hub's HealthStatus from the retained ping history and
// recency of the last server event (SPEC_FULL.md §4.6).
func (h *hub) health() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consecutiveFails >= 3 || (!h.lastServerEvent.IsZero() && time.Since(h.lastServerEvent) > staleAfter) {
		return HealthDisconnected
	}
	if len(h.pingResults) == 0 {
		if h.state == StateConnected {
			return HealthHealthy
		}
		return HealthDisconnected
	}

	successes := 0
	var totalMs int64
	for i, ok := range h.pingResults {
		if ok {
			successes++
		}
		totalMs += h.pingLatenciesMs[i]
	}
	successRate := float64(successes) / float64(len(h.pingResults))
	avgMs := float64(totalMs) / float64(len(h.pingResults))

	switch {
	case successRate >= 0.95 && avgMs <= 500:
		return HealthHealthy
	case successRate >= 0.80 || (avgMs > 500 && avgMs <= 2000):
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// reconnectLoop retries connect with the saturating backoff schedule,
// bounded by both an attempt count and a total elapsed-time cutoff.
func (h *hub) reconnectLoop(ctx context.Context) {
	h.mu.Lock()
	h.state = StateReconnecting
	h.mu.Unlock()

	deadline := time.Now().Add(maxReconnectWindow)

	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if stopped {
			return
		}
		if time.Now().After(deadline) {
			break
		}

		delay := reconnectDelays[len(reconnectDelays)-1]
		if attempt < len(reconnectDelays) {
			delay = reconnectDelays[attempt]
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}

		h.log.Info().Int("attempt", attempt+1).Msg("attempting reconnect")
		if err := h.connect(ctx); err != nil {
			h.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt failed")
			continue
		}

		go h.runLoops(ctx)
		if h.onReconnected != nil {
			h.onReconnected()
		}
		return
	}

	h.log.Error().Msg("reconnect attempts exhausted, giving up")
	h.mu.Lock()
	h.state = StatePermanentlyDisconnected
	h.mu.Unlock()
}

func (h *hub) send(ctx context.Context, frame []string) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream: %s hub not connected", h.name)
	}

	data, err := marshalFrame(frame)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
