package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFiresWithinOneSecondOfDeadline(t *testing.T) {
	m := New(zerolog.Nop())
	fired := make(chan time.Time, 1)

	deadline := time.Now().Add(100 * time.Millisecond)
	m.Schedule("k1", deadline, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		assert.WithinDuration(t, deadline, at, time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestHasReflectsScheduledState(t *testing.T) {
	m := New(zerolog.Nop())
	assert.False(t, m.Has("k1"))

	m.Schedule("k1", time.Now().Add(time.Hour), func() {})
	assert.True(t, m.Has("k1"))
}

func TestCancelRemovesTimerAndPreventsFire(t *testing.T) {
	m := New(zerolog.Nop())
	var fired int32

	m.Schedule("k1", time.Now().Add(50*time.Millisecond), func() { atomic.AddInt32(&fired, 1) })
	m.Cancel("k1")

	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
	assert.False(t, m.Has("k1"))
}

func TestScheduleSameKeyReplacesPriorTimer(t *testing.T) {
	m := New(zerolog.Nop())
	var firstFired, secondFired int32

	m.Schedule("k1", time.Now().Add(50*time.Millisecond), func() { atomic.AddInt32(&firstFired, 1) })
	m.Schedule("k1", time.Now().Add(100*time.Millisecond), func() { atomic.AddInt32(&secondFired, 1) })

	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&firstFired))
	assert.EqualValues(t, 1, atomic.LoadInt32(&secondFired))
}

func TestRemainingReportsDurationUntilFire(t *testing.T) {
	m := New(zerolog.Nop())
	m.Schedule("k1", time.Now().Add(time.Hour), func() {})

	remaining, ok := m.Remaining("k1")
	require.True(t, ok)
	assert.Greater(t, remaining, 59*time.Minute)
}

func TestRemainingMissingKey(t *testing.T) {
	m := New(zerolog.Nop())
	_, ok := m.Remaining("missing")
	assert.False(t, ok)
}

func TestStopAllCancelsEverything(t *testing.T) {
	m := New(zerolog.Nop())
	var fired int32
	m.Schedule("k1", time.Now().Add(30*time.Millisecond), func() { atomic.AddInt32(&fired, 1) })
	m.Schedule("k2", time.Now().Add(30*time.Millisecond), func() { atomic.AddInt32(&fired, 1) })

	m.StopAll()
	time.Sleep(100 * time.Millisecond)

	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
	assert.False(t, m.Has("k1"))
	assert.False(t, m.Has("k2"))
}
