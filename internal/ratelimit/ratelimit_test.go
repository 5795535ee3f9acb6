package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		endpoint string
		want     Class
	}{
		{"/api/Position/searchHistory", ClassHistory},
		{"/api/Order/searchHistory", ClassHistory},
		{"/api/Trade/searchHistory", ClassHistory},
		{"/api/Position/searchOpen", ClassGeneral},
		{"/api/Order/place", ClassGeneral},
		{"/api/Auth/loginKey", ClassGeneral},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.endpoint), c.endpoint)
	}
}

func TestAcquireNoWaitUnderLimit(t *testing.T) {
	l := New()
	ctx := context.Background()

	wait, err := l.Acquire(ctx, "/api/Order/place")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)

	stats := l.Stats()[ClassGeneral]
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, 1, stats.UsedInWindow)
}

func TestAcquireBlocksAtLimit(t *testing.T) {
	l := New()
	// Shrink the general window's limit so the test doesn't need 200 calls.
	l.general.limit = 2
	l.general.tokens = 2
	l.general.windowSize = 50 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		wait, err := l.Acquire(ctx, "/api/Order/place")
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), wait)
	}

	start := time.Now()
	wait, err := l.Acquire(ctx, "/api/Order/place")
	require.NoError(t, err)
	assert.Greater(t, wait, time.Duration(0))
	assert.GreaterOrEqual(t, time.Since(start), wait-5*time.Millisecond)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New()
	l.general.limit = 1
	l.general.tokens = 0
	l.general.timestamps = []time.Time{time.Now()}
	l.general.windowSize = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, "/api/Order/place")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReset(t *testing.T) {
	l := New()
	ctx := context.Background()
	_, err := l.Acquire(ctx, "/api/Order/place")
	require.NoError(t, err)

	l.Reset()

	stats := l.Stats()[ClassGeneral]
	assert.Equal(t, int64(0), stats.TotalRequests)
	assert.Equal(t, 0, stats.UsedInWindow)
	assert.Equal(t, float64(generalLimit), stats.Tokens)
}

func TestCleanupDropsExpiredTimestamps(t *testing.T) {
	w := newWindow(5, 20*time.Millisecond)
	w.timestamps = append(w.timestamps, time.Now().Add(-time.Hour))
	w.cleanup()
	assert.Empty(t, w.timestamps)
}
