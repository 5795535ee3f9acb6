package brokerapi

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	authenticateCalls int32
	validateCalls     int32
	authErr           error
	validateResult    bool
	validateErr       error
	tokenPrefix       string
	ttl               time.Duration
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context) (string, time.Time, error) {
	atomic.AddInt32(&f.authenticateCalls, 1)
	if f.authErr != nil {
		return "", time.Time{}, f.authErr
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return f.tokenPrefix + "-" + time.Now().String(), time.Now().Add(ttl), nil
}

func (f *fakeAuthenticator) Validate(ctx context.Context) (bool, error) {
	atomic.AddInt32(&f.validateCalls, 1)
	return f.validateResult, f.validateErr
}

func newTestManager(t *testing.T, auth *fakeAuthenticator) *TokenManager {
	t.Helper()
	store, err := NewTokenStore(filepath.Join(t.TempDir(), "tokens.enc"), "salt", false)
	require.NoError(t, err)
	return NewTokenManager(auth, store, zerolog.Nop())
}

func TestGetTokenInitialAuthentication(t *testing.T) {
	auth := &fakeAuthenticator{tokenPrefix: "jwt"}
	m := newTestManager(t, auth)

	token, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, TokenStateValid, m.State())
	assert.EqualValues(t, 1, auth.authenticateCalls)
}

func TestGetTokenReturnsCachedTokenWithoutRefresh(t *testing.T) {
	auth := &fakeAuthenticator{tokenPrefix: "jwt"}
	m := newTestManager(t, auth)

	_, err := m.GetToken(context.Background())
	require.NoError(t, err)

	_, err = m.GetToken(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, auth.authenticateCalls)
}

func TestGetTokenProactiveRefreshWhenWithinBuffer(t *testing.T) {
	auth := &fakeAuthenticator{tokenPrefix: "jwt", validateResult: true}
	m := newTestManager(t, auth)
	_, err := m.GetToken(context.Background())
	require.NoError(t, err)

	// Force the token into the refresh window.
	m.mu.Lock()
	m.refreshTrigger = time.Now().Add(-time.Second)
	m.mu.Unlock()

	token, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.GreaterOrEqual(t, auth.validateCalls, int32(1))
}

func TestRefreshFallsBackToReauthAfterExhaustedRetries(t *testing.T) {
	auth := &fakeAuthenticator{tokenPrefix: "jwt", validateResult: false}
	m := newTestManager(t, auth)

	m.refreshBuffer = time.Hour * 1000 // always "needs refresh"
	orig := refreshBackoff
	refreshBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { refreshBackoff = orig }()

	_, err := m.GetToken(context.Background())
	require.NoError(t, err)

	token, err := m.GetToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, TokenStateValid, m.State())
	assert.GreaterOrEqual(t, auth.authenticateCalls, int32(2))
}

func TestGetTokenPropagatesAuthenticationFailure(t *testing.T) {
	auth := &fakeAuthenticator{authErr: errors.New("boom")}
	m := newTestManager(t, auth)

	_, err := m.GetToken(context.Background())
	assert.Error(t, err)
}
