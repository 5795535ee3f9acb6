package brokerapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByStatusCode(t *testing.T) {
	c := NewClassifier()

	cat, retryAfter := c.Classify(401, "")
	assert.Equal(t, CategoryAuthentication, cat)
	assert.Zero(t, retryAfter)

	cat, retryAfter = c.Classify(429, "retry-after: 30")
	assert.Equal(t, CategoryRateLimit, cat)
	assert.Equal(t, 30*time.Second, retryAfter)

	cat, _ = c.Classify(503, "")
	assert.Equal(t, CategoryTransient, cat)

	cat, _ = c.Classify(404, "")
	assert.Equal(t, CategoryPermanent, cat)
}

func TestClassifyByMessagePattern(t *testing.T) {
	c := NewClassifier()

	cat, _ := c.Classify(0, "connection timeout while contacting upstream")
	assert.Equal(t, CategoryTransient, cat)

	cat, _ = c.Classify(0, "invalid account id supplied")
	assert.Equal(t, CategoryPermanent, cat)

	cat, _ = c.Classify(0, "totally unrecognized failure")
	assert.Equal(t, CategoryUnknown, cat)
}

func TestHandleErrorRecordsHistory(t *testing.T) {
	c := NewClassifier()

	err, retry := c.HandleError(500, "internal error", "/api/Order/place", "POST")
	assert.True(t, retry)
	assert.Equal(t, CategoryTransient, err.Category)

	_, retry = c.HandleError(404, "not found", "/api/Contract/searchById", "GET")
	assert.False(t, retry)

	stats := c.Statistics()
	assert.Equal(t, 2, stats.TotalErrors)
	assert.Equal(t, 1, stats.ByCategory["transient"])
	assert.Equal(t, 1, stats.ByCategory["permanent"])
}

func TestShouldRetryRespectsMaxAttempts(t *testing.T) {
	c := NewClassifier()
	err := &APIError{Category: CategoryTransient}

	assert.True(t, c.ShouldRetry(err, 0))
	assert.True(t, c.ShouldRetry(err, 4))
	assert.False(t, c.ShouldRetry(err, 5))
}

func TestRetryDelayUsesRetryAfterHint(t *testing.T) {
	c := NewClassifier()
	err := &APIError{Category: CategoryRateLimit, RetryAfter: 45 * time.Second}

	assert.Equal(t, 45*time.Second, c.RetryDelay(0, err))
}

func TestRetryDelayExponentialWithCap(t *testing.T) {
	c := NewClassifier()

	for attempt := 0; attempt < 10; attempt++ {
		d := c.RetryDelay(attempt, nil)
		assert.LessOrEqual(t, d, 66*time.Second) // maxBackoff + 10% jitter headroom
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestClearHistory(t *testing.T) {
	c := NewClassifier()
	c.HandleError(500, "boom", "/api/x", "GET")
	assert.Equal(t, 1, c.Statistics().TotalErrors)

	c.ClearHistory()
	assert.Equal(t, 0, c.Statistics().TotalErrors)
}
