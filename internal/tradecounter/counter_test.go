package tradecounter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordTradeCountsAllWindows(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	counts := c.RecordTrade(1, base)
	assert.Equal(t, Counts{Minute: 1, Hour: 1, Session: 1}, counts)

	counts = c.RecordTrade(1, base.Add(10*time.Second))
	assert.Equal(t, Counts{Minute: 2, Hour: 2, Session: 2}, counts)
}

func TestMinuteWindowExpires(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	counts := c.RecordTrade(1, base.Add(90*time.Second))

	assert.Equal(t, 1, counts.Minute)
	assert.Equal(t, 2, counts.Hour)
}

func TestHourWindowExpires(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	counts := c.RecordTrade(1, base.Add(61*time.Minute))

	assert.Equal(t, 1, counts.Minute)
	assert.Equal(t, 1, counts.Hour)
}

func TestSessionCountSurvivesHourWindowPruning(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	counts := c.RecordTrade(1, base.Add(2*time.Hour))

	assert.Equal(t, 2, counts.Session)
	assert.Equal(t, 1, counts.Hour)
}

func TestResetSessionZeroesSessionCountOnly(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	c.RecordTrade(1, base.Add(5*time.Second))
	c.ResetSession(1, base.Add(10*time.Second))

	counts := c.RecordTrade(1, base.Add(15*time.Second))
	assert.Equal(t, 1, counts.Session)
	assert.Equal(t, 3, counts.Minute)
}

func TestCountsWithoutRecordingDoesNotMutate(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	first := c.Counts(1, base.Add(time.Second))
	second := c.Counts(1, base.Add(2*time.Second))

	assert.Equal(t, first, second)
}

func TestCountsForUnknownAccountIsZero(t *testing.T) {
	c := New()
	assert.Equal(t, Counts{}, c.Counts(42, time.Now()))
}

func TestSeparateAccountsAreIndependent(t *testing.T) {
	c := New()
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	c.RecordTrade(1, base)
	c.RecordTrade(1, base)

	counts := c.Counts(2, base)
	assert.Equal(t, Counts{}, counts)
}
