package brokerapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TokenState is a position in the token lifecycle state machine.
type TokenState string

const (
	TokenStateInitial    TokenState = "initial"
	TokenStateValid      TokenState = "valid"
	TokenStateRefreshing TokenState = "refreshing"
	TokenStateError      TokenState = "error"
	TokenStateExpired    TokenState = "expired"
)

// Authenticator performs the brokerage login handshake and, where the API
// supports it, validates that an issued token is still accepted.
type Authenticator interface {
	Authenticate(ctx context.Context) (token string, expiresAt time.Time, err error)
	Validate(ctx context.Context) (bool, error)
}

// refreshBackoff is the exponential retry schedule for a failed proactive
// refresh: 30s, 1m, 2m, 5m.
var refreshBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

const (
	refreshBufferDefault = 2 * time.Hour
	maxQueueDepthDefault = 100
	queueDrainTimeout    = 20 * time.Second
)

// ErrQueueFull is returned by GetToken when the refresh-wait queue is at
// capacity and the caller must not block further.
var ErrQueueFull = errors.New("brokerapi: token request queue is full")

// TokenManager owns the brokerage JWT lifecycle: proactive refresh ahead of
// expiry, a bounded wait queue for callers racing an in-flight refresh, and
// fallback to full re-authentication when refresh retries are exhausted.
type TokenManager struct {
	auth  Authenticator
	store *TokenStore
	log   zerolog.Logger

	refreshBuffer time.Duration
	maxQueueDepth int

	mu             sync.Mutex
	state          TokenState
	token          string
	issuedAt       time.Time
	expiresAt      time.Time
	refreshTrigger time.Time
	waiters        int
	retryCount     int
}

// NewTokenManager builds a TokenManager around auth and store.
func NewTokenManager(auth Authenticator, store *TokenStore, log zerolog.Logger) *TokenManager {
	m := &TokenManager{
		auth:          auth,
		store:         store,
		log:           log.With().Str("component", "token_manager").Logger(),
		refreshBuffer: refreshBufferDefault,
		maxQueueDepth: maxQueueDepthDefault,
		state:         TokenStateInitial,
	}

	if token, expiresAt, err := store.Load(); err == nil && token != "" {
		m.token = token
		m.expiresAt = expiresAt
		m.issuedAt = time.Now()
		m.refreshTrigger = expiresAt.Add(-m.refreshBuffer)
		m.state = TokenStateValid
	}

	return m
}

// GetToken returns a currently valid token, refreshing or re-authenticating
// as needed. Callers racing a refresh already in progress block on it
// (bounded by queueDrainTimeout) rather than triggering a second one.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	if m.state == TokenStateInitial {
		m.mu.Unlock()
		if err := m.initialAuthenticate(ctx); err != nil {
			return "", err
		}
		m.mu.Lock()
		token := m.token
		m.mu.Unlock()
		return token, nil
	}

	if m.needsRefreshLocked() {
		if m.state == TokenStateRefreshing {
			token, err := m.queueAndWaitLocked(ctx)
			m.mu.Unlock()
			return token, err
		}
		if m.state != TokenStateExpired {
			m.mu.Unlock()
			if err := m.refreshToken(ctx); err != nil {
				return "", err
			}
			m.mu.Lock()
		}
	}

	defer m.mu.Unlock()

	switch m.state {
	case TokenStateValid:
		return m.token, nil
	case TokenStateError, TokenStateExpired:
		m.mu.Unlock()
		err := m.fallbackToReauth(ctx)
		m.mu.Lock()
		if err != nil {
			return "", err
		}
		return m.token, nil
	default:
		return "", fmt.Errorf("brokerapi: unexpected token state %q", m.state)
	}
}

// needsRefreshLocked reports whether the token should be refreshed now.
// Caller must hold m.mu.
func (m *TokenManager) needsRefreshLocked() bool {
	now := time.Now()
	if now.After(m.expiresAt) || now.Equal(m.expiresAt) {
		m.transitionLocked(TokenStateExpired)
		return true
	}
	return !now.Before(m.refreshTrigger)
}

// queueAndWaitLocked blocks until the in-flight refresh leaves the
// REFRESHING state, or until ctx is cancelled / the drain timeout elapses.
// Caller must hold m.mu; it is released and re-acquired while waiting.
func (m *TokenManager) queueAndWaitLocked(ctx context.Context) (string, error) {
	if m.waiters >= m.maxQueueDepth {
		return "", ErrQueueFull
	}
	m.waiters++
	defer func() { m.waiters-- }()

	deadline := time.Now().Add(queueDrainTimeout)

	for m.state == TokenStateRefreshing {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("brokerapi: timed out waiting for token refresh")
		}
		// Poll rather than block on a condition variable: refreshToken runs
		// on another goroutine without holding m.mu for its duration, so a
		// short sleep-and-recheck is simpler and safer than coordinating a
		// Cond across unlock/relock boundaries.
		m.mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		m.mu.Lock()
	}

	if m.state == TokenStateValid {
		return m.token, nil
	}
	return "", fmt.Errorf("brokerapi: token refresh failed, state: %s", m.state)
}

func (m *TokenManager) initialAuthenticate(ctx context.Context) error {
	m.log.Info().Msg("performing initial authentication")

	token, expiresAt, err := m.auth.Authenticate(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("initial authentication failed")
		return fmt.Errorf("brokerapi: initial authentication: %w", err)
	}

	m.mu.Lock()
	m.setTokenLocked(token, expiresAt)
	m.transitionLocked(TokenStateValid)
	m.mu.Unlock()

	if err := m.store.Store(token, expiresAt); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist token after initial authentication")
	}

	return nil
}

// refreshToken runs the bounded retry loop, falling back to full
// re-authentication when retries are exhausted.
func (m *TokenManager) refreshToken(ctx context.Context) error {
	m.mu.Lock()
	if m.state == TokenStateValid && !m.needsRefreshLocked() {
		m.mu.Unlock()
		return nil
	}
	m.transitionLocked(TokenStateRefreshing)
	m.retryCount = 0
	m.mu.Unlock()

	maxRetries := len(refreshBackoff)
	for attempt := 0; attempt < maxRetries; attempt++ {
		m.mu.Lock()
		m.retryCount = attempt + 1
		m.mu.Unlock()

		ok, err := m.auth.Validate(ctx)
		if err == nil && ok {
			m.mu.Lock()
			m.transitionLocked(TokenStateValid)
			m.retryCount = 0
			m.mu.Unlock()
			return nil
		}
		if err != nil {
			m.log.Error().Err(err).Int("attempt", attempt+1).Msg("token refresh error")
		}

		if attempt < maxRetries-1 {
			delay := refreshBackoff[attempt]
			m.log.Warn().Dur("delay", delay).Int("attempt", attempt+1).Msg("token refresh failed, backing off")
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}

	m.log.Error().Msg("token refresh exhausted retries, falling back to re-authentication")
	m.mu.Lock()
	m.transitionLocked(TokenStateError)
	m.mu.Unlock()

	return m.fallbackToReauth(ctx)
}

// fallbackToReauth discards the current token and re-authenticates from
// scratch.
func (m *TokenManager) fallbackToReauth(ctx context.Context) error {
	m.log.Warn().Msg("falling back to full re-authentication")

	m.mu.Lock()
	m.token = ""
	m.retryCount = 0
	m.mu.Unlock()

	token, expiresAt, err := m.auth.Authenticate(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("re-authentication failed, system cannot continue")
		m.mu.Lock()
		m.transitionLocked(TokenStateExpired)
		m.waiters = 0
		m.mu.Unlock()
		return fmt.Errorf("brokerapi: re-authentication failed: %w", err)
	}

	m.mu.Lock()
	m.setTokenLocked(token, expiresAt)
	m.transitionLocked(TokenStateValid)
	m.mu.Unlock()

	if err := m.store.Store(token, expiresAt); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist token after re-authentication")
	}

	return nil
}

// setTokenLocked installs a freshly issued token. Caller must hold m.mu.
func (m *TokenManager) setTokenLocked(token string, expiresAt time.Time) {
	m.token = token
	m.issuedAt = time.Now()
	m.expiresAt = expiresAt
	m.refreshTrigger = expiresAt.Add(-m.refreshBuffer)
}

// transitionLocked moves to newState, logging the edge. Caller must hold m.mu.
func (m *TokenManager) transitionLocked(newState TokenState) {
	old := m.state
	m.state = newState
	if old != newState {
		m.log.Info().Str("from", string(old)).Str("to", string(newState)).Msg("token state transition")
	}
}

// State returns the current lifecycle state.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TimeUntilExpiry returns the duration until the current token expires.
func (m *TokenManager) TimeUntilExpiry() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Until(m.expiresAt)
}

// QueueDepth returns the number of callers currently blocked on an
// in-flight refresh.
func (m *TokenManager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters
}

// Invalidate marks the current token unusable, forcing the next GetToken
// call to re-authenticate rather than serve the cached token. Used by the
// REST client when a call is rejected with 401 despite the manager
// believing the token still valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(TokenStateExpired)
}

// CurrentToken returns whatever token is cached right now, without
// triggering refresh or re-authentication. Used by an Authenticator's own
// Validate implementation, which runs during a refresh already in
// progress and must not re-enter GetToken's refresh-wait logic.
func (m *TokenManager) CurrentToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}
